package clipper

import (
	"testing"
)

func TestVideoScaler_NoScaling(t *testing.T) {
	frame := NewI420Frame(640, 480)
	frame.PTS = 12345

	scaler := NewVideoScaler(640, 480, 640, 480, ScaleModeStretch)
	out := scaler.Scale(frame)

	// Should return same frame when no scaling needed
	if out != frame {
		t.Error("Expected same frame when no scaling needed")
	}
}

func TestVideoScaler_Downscale(t *testing.T) {
	srcW, srcH := 1280, 720
	dstW, dstH := 640, 360

	frame := createGradientFrame(srcW, srcH)
	frame.PTS = 42

	scaler := NewVideoScaler(srcW, srcH, dstW, dstH, ScaleModeStretch)
	out := scaler.Scale(frame)

	if out.Width != dstW || out.Height != dstH {
		t.Errorf("Expected %dx%d, got %dx%d", dstW, dstH, out.Width, out.Height)
	}
	if len(out.Data[0]) != dstW*dstH {
		t.Errorf("Y plane size mismatch: expected %d, got %d", dstW*dstH, len(out.Data[0]))
	}
	if len(out.Data[1]) != (dstW/2)*(dstH/2) {
		t.Errorf("U plane size mismatch")
	}
	if out.PTS != 42 {
		t.Errorf("PTS not carried: got %d", out.PTS)
	}
	// Gradient must stay monotone left to right.
	if out.Data[0][0] > out.Data[0][dstW-1] {
		t.Errorf("gradient lost: left %d right %d", out.Data[0][0], out.Data[0][dstW-1])
	}
}

func TestVideoScaler_ReturnsFreshBuffers(t *testing.T) {
	frame := createGradientFrame(64, 48)
	scaler := NewVideoScaler(64, 48, 32, 24, ScaleModeStretch)

	a := scaler.Scale(frame)
	b := scaler.Scale(frame)
	a.Data[0][0] = 7
	if b.Data[0][0] == 7 && &a.Data[0][0] == &b.Data[0][0] {
		t.Error("scaler reused its output buffer")
	}
}

func TestVideoScaler_FitLetterbox(t *testing.T) {
	// 16:9 source into a 4:3 frame leaves bars at the top and bottom.
	frame := createGradientFrame(320, 180)
	for i := range frame.Data[0] {
		frame.Data[0][i] = 200
	}
	scaler := NewVideoScaler(320, 180, 160, 120, ScaleModeFit)
	out := scaler.Scale(frame)

	if out.Width != 160 || out.Height != 120 {
		t.Fatalf("Expected 160x120, got %dx%d", out.Width, out.Height)
	}
	if out.Data[0][0] != 0 {
		t.Errorf("top bar should be black, got %d", out.Data[0][0])
	}
	if mid := out.Data[0][60*160+80]; mid != 200 {
		t.Errorf("picture area should keep luma 200, got %d", mid)
	}
}

func TestVideoScaler_Fill(t *testing.T) {
	frame := createGradientFrame(1920, 1080)

	scaler := NewVideoScaler(1920, 1080, 640, 480, ScaleModeFill)
	out := scaler.Scale(frame)

	if out.Width != 640 || out.Height != 480 {
		t.Errorf("Expected 640x480, got %dx%d", out.Width, out.Height)
	}
}

func TestCalculateScaledSize(t *testing.T) {
	tests := []struct {
		name             string
		srcW, srcH       int
		maxW, maxH       int
		mode             ScaleMode
		expectW, expectH int
	}{
		{"16:9 to 4:3 fit", 1920, 1080, 640, 480, ScaleModeFit, 640, 360},
		{"4:3 to 16:9 fit", 640, 480, 1280, 720, ScaleModeFit, 960, 720},
		{"same aspect", 1280, 720, 640, 360, ScaleModeFit, 640, 360},
		{"fill mode", 1920, 1080, 640, 480, ScaleModeFill, 640, 480},
		{"stretch mode", 1920, 1080, 640, 480, ScaleModeStretch, 640, 480},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := CalculateScaledSize(tt.srcW, tt.srcH, tt.maxW, tt.maxH, tt.mode)
			if w != tt.expectW || h != tt.expectH {
				t.Errorf("Expected %dx%d, got %dx%d", tt.expectW, tt.expectH, w, h)
			}
		})
	}
}

func createGradientFrame(width, height int) *VideoFrame {
	frame := NewI420Frame(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			frame.Data[0][y*width+x] = byte(x * 255 / width)
		}
	}
	for p := 1; p < 3; p++ {
		for i := range frame.Data[p] {
			frame.Data[p][i] = 128
		}
	}
	return frame
}

func BenchmarkVideoScaler_1080pTo720p(b *testing.B) {
	frame := createGradientFrame(1920, 1080)
	scaler := NewVideoScaler(1920, 1080, 1280, 720, ScaleModeFill)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		scaler.Scale(frame)
	}
}
