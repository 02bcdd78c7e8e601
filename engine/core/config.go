package core

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

type AppConfig struct {
	Name string `toml:"name"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type RendererConfig struct {
	// Backend is either "vulkan" or "null".
	Backend    string `toml:"backend"`
	Validation bool   `toml:"validation"`
	// Frames is how many frames the demo executes before exiting.
	Frames int    `toml:"frames"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
}

type DescriptorConfig struct {
	BlockSize uint32 `toml:"block_size"`
}

type JobsConfig struct {
	Workers   int `toml:"workers"`
	QueueSize int `toml:"queue_size"`
}

type AssetsConfig struct {
	ShaderDir string `toml:"shader_dir"`
	Watch     bool   `toml:"watch"`
}

type Config struct {
	App        AppConfig        `toml:"app"`
	Log        LogConfig        `toml:"log"`
	Renderer   RendererConfig   `toml:"renderer"`
	Descriptor DescriptorConfig `toml:"descriptor"`
	Jobs       JobsConfig       `toml:"jobs"`
	Assets     AssetsConfig     `toml:"assets"`
}

const (
	BackendVulkan = "vulkan"
	BackendNull   = "null"

	DefaultDescriptorBlockSize uint32 = 50
)

func DefaultConfig() Config {
	return Config{
		App: AppConfig{Name: "framegraph"},
		Log: LogConfig{Level: "info"},
		Renderer: RendererConfig{
			Backend: BackendNull,
			Frames:  3,
			Width:   1280,
			Height:  720,
		},
		Descriptor: DescriptorConfig{BlockSize: DefaultDescriptorBlockSize},
		Jobs:       JobsConfig{Workers: 2, QueueSize: 16},
		Assets:     AssetsConfig{ShaderDir: "assets/shaders"},
	}
}

// ParseConfig decodes TOML on top of DefaultConfig, so omitted keys keep
// their defaults.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		err = fmt.Errorf("failed to read config %s: %w", path, err)
		LogError(err.Error())
		return Config{}, err
	}
	return ParseConfig(data)
}

func (c Config) Validate() error {
	switch c.Renderer.Backend {
	case BackendVulkan, BackendNull:
	default:
		return fmt.Errorf("unknown renderer backend %q", c.Renderer.Backend)
	}
	if c.Descriptor.BlockSize == 0 {
		return fmt.Errorf("descriptor block_size must be positive")
	}
	if c.Jobs.Workers <= 0 {
		return fmt.Errorf("jobs workers must be positive, got %d", c.Jobs.Workers)
	}
	if c.Jobs.QueueSize < 0 {
		return fmt.Errorf("jobs queue_size must not be negative, got %d", c.Jobs.QueueSize)
	}
	if _, err := ParseLogLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// Marshal encodes the configuration back to TOML.
func (c Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}
