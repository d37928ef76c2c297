package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration. Every field has a default, so the
// file is optional and may set only what it wants to change.
type Config struct {
	Audio       AudioConfig       `yaml:"audio"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Usage       UsageConfig       `yaml:"usage"`
	Output      OutputConfig      `yaml:"output"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Publish     PublishConfig     `yaml:"publish"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type AudioConfig struct {
	Device     int `yaml:"device"` // -1 = system default
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`
	FrameSize  int `yaml:"frame_size"` // samples
}

type RecognitionConfig struct {
	Backend         string        `yaml:"backend"` // google | deepgram
	Language        string        `yaml:"language"`
	Model           string        `yaml:"model"`
	Punctuation     bool          `yaml:"punctuation"`
	SingleUtterance bool          `yaml:"single_utterance"`
	DrainTimeout    time.Duration `yaml:"drain_timeout"`
}

type UsageConfig struct {
	PricePerChunk  float64       `yaml:"price_per_chunk"` // USD
	ChunkSeconds   float64       `yaml:"chunk_seconds"`
	UpdateInterval time.Duration `yaml:"update_interval"`
}

type OutputConfig struct {
	AutoOutput   bool          `yaml:"auto_output"`
	UseClipboard bool          `yaml:"use_clipboard"`
	RestoreDelay time.Duration `yaml:"restore_delay"`
}

type MetricsConfig struct {
	Address string `yaml:"address"` // empty disables the endpoint
}

type PublishConfig struct {
	NATSURL string `yaml:"nats_url"` // empty disables publishing
	Subject string `yaml:"subject"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	Path  string `yaml:"path"`
}

func Default() Config {
	return Config{
		Audio: AudioConfig{
			Device:     0,
			SampleRate: 16000,
			Channels:   1,
			FrameSize:  1024,
		},
		Recognition: RecognitionConfig{
			Backend:      "google",
			Language:     "en-US",
			Punctuation:  true,
			DrainTimeout: 5 * time.Second,
		},
		Usage: UsageConfig{
			PricePerChunk:  0.006,
			ChunkSeconds:   15,
			UpdateInterval: time.Second,
		},
		Output: OutputConfig{
			AutoOutput:   true,
			RestoreDelay: 600 * time.Millisecond,
		},
		Publish: PublishConfig{
			Subject: "speechtext",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads path on top of the defaults and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.Recognition.Validate(); err != nil {
		return fmt.Errorf("recognition config: %w", err)
	}
	if err := c.Usage.Validate(); err != nil {
		return fmt.Errorf("usage config: %w", err)
	}
	if err := c.Output.Validate(); err != nil {
		return fmt.Errorf("output config: %w", err)
	}
	if err := c.Publish.Validate(); err != nil {
		return fmt.Errorf("publish config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

func (a *AudioConfig) Validate() error {
	if a.Device < -1 {
		return fmt.Errorf("device must be -1 (system default) or a device index, got %d", a.Device)
	}
	switch a.SampleRate {
	case 8000, 16000, 22050, 24000, 32000, 44100, 48000:
	default:
		return fmt.Errorf("unsupported sample_rate %d", a.SampleRate)
	}
	if a.Channels != 1 {
		return fmt.Errorf("channels must be 1 (mono), got %d", a.Channels)
	}
	if a.FrameSize < 128 || a.FrameSize > 8192 {
		return fmt.Errorf("frame_size must be between 128 and 8192 samples, got %d", a.FrameSize)
	}
	return nil
}

func (r *RecognitionConfig) Validate() error {
	switch r.Backend {
	case "google", "deepgram", "fake":
	default:
		return fmt.Errorf("unknown backend %q (use google or deepgram)", r.Backend)
	}
	if r.Language == "" {
		return fmt.Errorf("language cannot be empty")
	}
	if r.DrainTimeout < 0 {
		return fmt.Errorf("drain_timeout cannot be negative")
	}
	return nil
}

func (u *UsageConfig) Validate() error {
	if u.PricePerChunk < 0 {
		return fmt.Errorf("price_per_chunk cannot be negative, got %v", u.PricePerChunk)
	}
	if u.ChunkSeconds <= 0 {
		return fmt.Errorf("chunk_seconds must be positive, got %v", u.ChunkSeconds)
	}
	if u.UpdateInterval < 100*time.Millisecond {
		return fmt.Errorf("update_interval must be at least 100ms, got %v", u.UpdateInterval)
	}
	return nil
}

func (o *OutputConfig) Validate() error {
	if o.RestoreDelay < 0 {
		return fmt.Errorf("restore_delay cannot be negative")
	}
	return nil
}

func (p *PublishConfig) Validate() error {
	if p.NATSURL != "" && p.Subject == "" {
		return fmt.Errorf("subject cannot be empty when nats_url is set")
	}
	return nil
}

func (l *LoggingConfig) Validate() error {
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", l.Level)
	}
	return nil
}
