package clipper

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ScaleMode defines how scaling should handle aspect ratio mismatches.
type ScaleMode int

const (
	// ScaleModeStretch scales to exactly match target dimensions (may distort).
	ScaleModeStretch ScaleMode = iota
	// ScaleModeFit preserves aspect ratio and pads with black bars.
	ScaleModeFit
	// ScaleModeFill preserves aspect ratio and crops the source.
	ScaleModeFill
)

func (m ScaleMode) String() string {
	switch m {
	case ScaleModeFit:
		return "fit"
	case ScaleModeFill:
		return "fill"
	default:
		return "stretch"
	}
}

// ParseScaleMode parses "stretch", "fit" or "fill". The empty string is
// stretch.
func ParseScaleMode(s string) (ScaleMode, error) {
	switch s {
	case "", "stretch":
		return ScaleModeStretch, nil
	case "fit":
		return ScaleModeFit, nil
	case "fill":
		return ScaleModeFill, nil
	}
	return ScaleModeStretch, fmt.Errorf("unknown scale mode %q", s)
}

func (m ScaleMode) MarshalYAML() (any, error) { return m.String(), nil }

func (m *ScaleMode) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := ParseScaleMode(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// VideoScaler scales I420 video frames with bilinear interpolation.
// Every call returns a newly allocated frame so downstream stages may keep it.
type VideoScaler struct {
	srcWidth, srcHeight int
	dstWidth, dstHeight int
	mode                ScaleMode
}

// NewVideoScaler creates a new scaler for the given dimensions.
func NewVideoScaler(srcWidth, srcHeight, dstWidth, dstHeight int, mode ScaleMode) *VideoScaler {
	return &VideoScaler{
		srcWidth:  srcWidth,
		srcHeight: srcHeight,
		dstWidth:  dstWidth,
		dstHeight: dstHeight,
		mode:      mode,
	}
}

// Scale scales an I420 frame to the target dimensions.
func (s *VideoScaler) Scale(frame *VideoFrame) *VideoFrame {
	if frame.Width == s.dstWidth && frame.Height == s.dstHeight {
		return frame
	}

	out := NewI420Frame(s.dstWidth, s.dstHeight)
	out.PTS = frame.PTS
	out.Duration = frame.Duration

	srcX, srcY, srcW, srcH := s.sourceRegion(frame.Width, frame.Height)
	dstX, dstY, dstW, dstH := s.destRegion(frame.Width, frame.Height)
	if dstW != s.dstWidth || dstH != s.dstHeight {
		fillBlack(out)
	}

	scalePlane(frame.Data[0], frame.Stride[0], srcX, srcY, srcW, srcH,
		out.Data[0], out.Stride[0], dstX, dstY, dstW, dstH)
	for p := 1; p < 3; p++ {
		scalePlane(frame.Data[p], frame.Stride[p], srcX/2, srcY/2, srcW/2, srcH/2,
			out.Data[p], out.Stride[p], dstX/2, dstY/2, dstW/2, dstH/2)
	}
	return out
}

// sourceRegion returns the part of the source that is sampled.
func (s *VideoScaler) sourceRegion(srcW, srcH int) (x, y, w, h int) {
	if s.mode != ScaleModeFill {
		return 0, 0, srcW, srcH
	}
	srcAspect := float64(srcW) / float64(srcH)
	dstAspect := float64(s.dstWidth) / float64(s.dstHeight)

	if srcAspect > dstAspect {
		newW := int(float64(srcH)*dstAspect) &^ 1
		return ((srcW - newW) / 2) &^ 1, 0, newW, srcH
	} else if srcAspect < dstAspect {
		newH := int(float64(srcW)/dstAspect) &^ 1
		return 0, ((srcH - newH) / 2) &^ 1, srcW, newH
	}
	return 0, 0, srcW, srcH
}

// destRegion returns the part of the output that receives the picture.
func (s *VideoScaler) destRegion(srcW, srcH int) (x, y, w, h int) {
	if s.mode != ScaleModeFit {
		return 0, 0, s.dstWidth, s.dstHeight
	}
	w, h = CalculateScaledSize(srcW, srcH, s.dstWidth, s.dstHeight, ScaleModeFit)
	w, h = min(w, s.dstWidth), min(h, s.dstHeight)
	return ((s.dstWidth - w) / 2) &^ 1, ((s.dstHeight - h) / 2) &^ 1, w, h
}

func fillBlack(f *VideoFrame) {
	clear(f.Data[0])
	for p := 1; p < 3; p++ {
		for i := range f.Data[p] {
			f.Data[p][i] = 128
		}
	}
}

// scalePlane scales a single plane using 16.16 fixed-point bilinear interpolation.
func scalePlane(src []byte, srcStride, srcX, srcY, srcW, srcH int,
	dst []byte, dstStride, dstX, dstY, dstW, dstH int) {

	if srcW <= 0 || srcH <= 0 || dstW <= 0 || dstH <= 0 {
		return
	}

	xRatio := (srcW << 16) / dstW
	yRatio := (srcH << 16) / dstH

	for y := 0; y < dstH; y++ {
		srcYFP := y * yRatio
		y0 := (srcYFP >> 16) + srcY
		y1 := y0 + 1
		if y1 >= srcY+srcH {
			y1 = y0
		}
		yWeight := srcYFP & 0xFFFF
		row := (y + dstY) * dstStride

		for x := 0; x < dstW; x++ {
			srcXFP := x * xRatio
			x0 := (srcXFP >> 16) + srcX
			x1 := x0 + 1
			if x1 >= srcX+srcW {
				x1 = x0
			}
			xWeight := srcXFP & 0xFFFF

			p00 := int(src[y0*srcStride+x0])
			p10 := int(src[y0*srcStride+x1])
			p01 := int(src[y1*srcStride+x0])
			p11 := int(src[y1*srcStride+x1])

			top := (p00*(0x10000-xWeight) + p10*xWeight) >> 16
			bottom := (p01*(0x10000-xWeight) + p11*xWeight) >> 16
			dst[row+x+dstX] = byte((top*(0x10000-yWeight) + bottom*yWeight) >> 16)
		}
	}
}

// CalculateScaledSize returns the picture dimensions when scaling with a given mode.
func CalculateScaledSize(srcW, srcH, maxW, maxH int, mode ScaleMode) (w, h int) {
	if mode != ScaleModeFit {
		return maxW, maxH
	}
	srcAspect := float64(srcW) / float64(srcH)
	dstAspect := float64(maxW) / float64(maxH)

	if srcAspect > dstAspect {
		w = maxW
		h = int(float64(maxW) / srcAspect)
	} else {
		h = maxH
		w = int(float64(maxH) * srcAspect)
	}
	// Even dimensions for 4:2:0 chroma
	w = (w + 1) &^ 1
	h = (h + 1) &^ 1
	return w, h
}
