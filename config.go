package clipper

import (
	"os"

	"github.com/ansel1/merry/v2"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Job is one input file and the clips cut from it.
type Job struct {
	Input string      `yaml:"input"`
	Clips []*ClipSpec `yaml:"clips"`
}

// Config is the YAML document read by the clip-export tool.
type Config struct {
	LogLevel      string `yaml:"log_level"`
	MaxConcurrent int    `yaml:"max_concurrent"` // Jobs exported in parallel
	Jobs          []Job  `yaml:"jobs"`
}

// DefaultConfig returns the configuration used for unset fields.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:      "info",
		MaxConcurrent: 2,
	}
}

// LoadConfig reads a YAML configuration and fills in defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, merry.Prependf(err, "read config %s", path)
	}
	return ParseConfig(data)
}

// ParseConfig decodes a YAML configuration and fills in defaults.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, merry.Prepend(err, "parse config")
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultConfig().MaxConcurrent
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every job and clip.
func (c *Config) Validate() error {
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return merry.Wrap(err, merry.WithMessagef("log_level %q", c.LogLevel))
	}
	for i, job := range c.Jobs {
		if job.Input == "" {
			return merry.Errorf("job %d has no input", i)
		}
		if len(job.Clips) == 0 {
			return merry.Errorf("job %d (%s) has no clips", i, job.Input)
		}
		for _, clip := range job.Clips {
			if clip == nil {
				return merry.Errorf("job %d (%s) has an empty clip", i, job.Input)
			}
			if err := clip.Validate(); err != nil {
				return merry.Prepend(err, job.Input)
			}
		}
	}
	return nil
}

// Level returns the configured log level.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
