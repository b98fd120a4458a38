package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kirill555101/paperclip/pkg/thumbnail"
)

// Processor runners accepted by ProcessorConfig.Runner.
const (
	RunnerExec   = "exec"
	RunnerNative = "native"
)

const (
	EnvProcessorRunner   = "PROCESSOR_RUNNER"
	EnvProcessorConvert  = "PROCESSOR_CONVERT"
	EnvProcessorIdentify = "PROCESSOR_IDENTIFY"
	EnvProcessorTempDir  = "PROCESSOR_TEMP_DIR"
)

// ProcessorConfig selects how style derivatives are produced. The exec
// runner shells out to ImageMagick; the native runner decodes and resizes
// in process.
type ProcessorConfig struct {
	Runner   string `toml:"runner"`
	Convert  string `toml:"convert"`
	Identify string `toml:"identify"`
	TempDir  string `toml:"temp_dir"`
	Timeout  string `toml:"timeout"`
}

// TimeoutDuration returns the per-command timeout; zero means none.
func (c *ProcessorConfig) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// Thumbnail converts the configuration for thumbnail.NewProcessor.
func (c *ProcessorConfig) Thumbnail() thumbnail.Config {
	return thumbnail.Config{
		Convert:  c.Convert,
		Identify: c.Identify,
		TempDir:  c.TempDir,
		Timeout:  c.TimeoutDuration(),
	}
}

func (c *ProcessorConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

func (c *ProcessorConfig) Merge(overlay *ProcessorConfig) {
	if overlay.Runner != "" {
		c.Runner = overlay.Runner
	}
	if overlay.Convert != "" {
		c.Convert = overlay.Convert
	}
	if overlay.Identify != "" {
		c.Identify = overlay.Identify
	}
	if overlay.TempDir != "" {
		c.TempDir = overlay.TempDir
	}
	if overlay.Timeout != "" {
		c.Timeout = overlay.Timeout
	}
}

func (c *ProcessorConfig) loadDefaults() {
	if c.Runner == "" {
		c.Runner = RunnerExec
	}
	if c.Convert == "" {
		c.Convert = "convert"
	}
	if c.Identify == "" {
		c.Identify = "identify"
	}
	if c.Timeout == "" {
		c.Timeout = "2m"
	}
}

func (c *ProcessorConfig) loadEnv() {
	if v := os.Getenv(EnvProcessorRunner); v != "" {
		c.Runner = v
	}
	if v := os.Getenv(EnvProcessorConvert); v != "" {
		c.Convert = v
	}
	if v := os.Getenv(EnvProcessorIdentify); v != "" {
		c.Identify = v
	}
	if v := os.Getenv(EnvProcessorTempDir); v != "" {
		c.TempDir = v
	}
}

func (c *ProcessorConfig) validate() error {
	switch c.Runner {
	case RunnerExec, RunnerNative:
	default:
		return fmt.Errorf("invalid runner: %s (must be exec or native)", c.Runner)
	}
	if d, err := time.ParseDuration(c.Timeout); err != nil || d < 0 {
		return fmt.Errorf("invalid timeout: %q", c.Timeout)
	}
	return nil
}
