// Package config loads epubtrans settings from defaults, an optional YAML
// file and EPUBTRANS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Failure policies for segments whose transformation keeps failing.
const (
	OnFailureKeepOriginal = "keep-original"
	OnFailureAbort        = "abort"
)

// Config is the complete epubtrans configuration.
type Config struct {
	// WorkDir holds extraction output and the progress store when a
	// command is not given an explicit directory.
	WorkDir   string          `mapstructure:"work_dir" yaml:"work_dir"`
	Segment   SegmentConfig   `mapstructure:"segment" yaml:"segment"`
	Extract   ExtractConfig   `mapstructure:"extract" yaml:"extract"`
	Transform TransformConfig `mapstructure:"transform" yaml:"transform"`
	Rebuild   RebuildConfig   `mapstructure:"rebuild" yaml:"rebuild"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

// SegmentConfig bounds segment sizes in characters.
type SegmentConfig struct {
	MinSize int `mapstructure:"min_size" yaml:"min_size"`
	MaxSize int `mapstructure:"max_size" yaml:"max_size"`
}

// ExtractConfig selects which spine documents are extracted.
type ExtractConfig struct {
	SkipFrontMatter bool `mapstructure:"skip_front_matter" yaml:"skip_front_matter"`
	SkipLicense     bool `mapstructure:"skip_license" yaml:"skip_license"`
}

// TransformConfig configures the transformation service and the driver.
type TransformConfig struct {
	BaseURL        string  `mapstructure:"base_url" yaml:"base_url"`
	APIKey         string  `mapstructure:"api_key" yaml:"api_key"` // supports ${ENV_VAR}
	Model          string  `mapstructure:"model" yaml:"model"`
	Temperature    float64 `mapstructure:"temperature" yaml:"temperature"`
	Genre          string  `mapstructure:"genre" yaml:"genre"`
	TargetLanguage string  `mapstructure:"target_language" yaml:"target_language"`

	MaxRetries        int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryDelay        time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	Concurrency       int           `mapstructure:"concurrency" yaml:"concurrency"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"` // 0 disables pacing
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	OnFailure         string        `mapstructure:"on_failure" yaml:"on_failure"`
}

// RebuildConfig controls the metadata written to the output package.
type RebuildConfig struct {
	TitleSuffix string `mapstructure:"title_suffix" yaml:"title_suffix"`
	Contributor string `mapstructure:"contributor" yaml:"contributor"`
	Note        string `mapstructure:"note" yaml:"note"`
}

// LogConfig selects the log level and format ("text" or "json").
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		WorkDir: "epubtrans-work",
		Segment: SegmentConfig{MinSize: 1000, MaxSize: 2000},
		Extract: ExtractConfig{SkipFrontMatter: true, SkipLicense: true},
		Transform: TransformConfig{
			BaseURL:           "http://localhost:11434/v1",
			APIKey:            "${OPENAI_API_KEY}",
			Model:             "phi4:latest",
			Temperature:       0.1,
			Genre:             "fantasy",
			TargetLanguage:    "ko",
			MaxRetries:        3,
			RetryDelay:        2 * time.Second,
			Concurrency:       2,
			RequestsPerSecond: 0,
			Timeout:           5 * time.Minute,
			OnFailure:         OnFailureKeepOriginal,
		},
		Rebuild: RebuildConfig{
			Contributor: "epubtrans",
			Note:        "Machine translated with epubtrans.",
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// setDefaults registers every leaf key so that environment variables can
// override keys that appear in no config file.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("work_dir", d.WorkDir)

	v.SetDefault("segment.min_size", d.Segment.MinSize)
	v.SetDefault("segment.max_size", d.Segment.MaxSize)

	v.SetDefault("extract.skip_front_matter", d.Extract.SkipFrontMatter)
	v.SetDefault("extract.skip_license", d.Extract.SkipLicense)

	v.SetDefault("transform.base_url", d.Transform.BaseURL)
	v.SetDefault("transform.api_key", d.Transform.APIKey)
	v.SetDefault("transform.model", d.Transform.Model)
	v.SetDefault("transform.temperature", d.Transform.Temperature)
	v.SetDefault("transform.genre", d.Transform.Genre)
	v.SetDefault("transform.target_language", d.Transform.TargetLanguage)
	v.SetDefault("transform.max_retries", d.Transform.MaxRetries)
	v.SetDefault("transform.retry_delay", d.Transform.RetryDelay)
	v.SetDefault("transform.concurrency", d.Transform.Concurrency)
	v.SetDefault("transform.requests_per_second", d.Transform.RequestsPerSecond)
	v.SetDefault("transform.timeout", d.Transform.Timeout)
	v.SetDefault("transform.on_failure", d.Transform.OnFailure)

	v.SetDefault("rebuild.title_suffix", d.Rebuild.TitleSuffix)
	v.SetDefault("rebuild.contributor", d.Rebuild.Contributor)
	v.SetDefault("rebuild.note", d.Rebuild.Note)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Load reads the configuration. With an empty cfgFile it looks for
// epubtrans.yaml in the current directory and in $HOME/.epubtrans; a
// missing file is not an error. The result is validated.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix("EPUBTRANS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("epubtrans")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.epubtrans")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first unusable setting.
func (c *Config) Validate() error {
	switch {
	case c.Segment.MinSize <= 0 || c.Segment.MaxSize <= 0:
		return fmt.Errorf("segment sizes must be positive (min_size=%d, max_size=%d)", c.Segment.MinSize, c.Segment.MaxSize)
	case c.Segment.MinSize >= c.Segment.MaxSize:
		return fmt.Errorf("segment.min_size (%d) must be smaller than segment.max_size (%d)", c.Segment.MinSize, c.Segment.MaxSize)
	case c.Transform.MaxRetries < 0:
		return fmt.Errorf("transform.max_retries must not be negative, got %d", c.Transform.MaxRetries)
	case c.Transform.Concurrency < 1:
		return fmt.Errorf("transform.concurrency must be at least 1, got %d", c.Transform.Concurrency)
	case c.Transform.RequestsPerSecond < 0:
		return fmt.Errorf("transform.requests_per_second must not be negative, got %g", c.Transform.RequestsPerSecond)
	case c.Transform.Temperature < 0 || c.Transform.Temperature > 2:
		return fmt.Errorf("transform.temperature must be within [0, 2], got %g", c.Transform.Temperature)
	case c.Transform.TargetLanguage == "":
		return errors.New("transform.target_language is required")
	}

	switch c.Transform.OnFailure {
	case OnFailureKeepOriginal, OnFailureAbort:
	default:
		return fmt.Errorf("transform.on_failure must be %q or %q, got %q", OnFailureKeepOriginal, OnFailureAbort, c.Transform.OnFailure)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// APIKey returns the transformation API key with ${ENV_VAR} references
// expanded.
func (c *Config) APIKey() string {
	return ResolveEnvVars(c.Transform.APIKey)
}

var envRef = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveEnvVars expands ${ENV_VAR} references in value. Unset variables
// expand to the empty string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	return envRef.ReplaceAllStringFunc(value, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}

// WriteDefault writes the default configuration as YAML to path. An
// existing file is never overwritten.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	header := []byte(`# epubtrans configuration
# Values can be overridden with EPUBTRANS_<SECTION>_<KEY>, e.g. EPUBTRANS_TRANSFORM_MODEL.
# api_key accepts ${ENV_VAR} references.

`)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	if _, err := f.Write(append(header, data...)); err != nil {
		f.Close()
		return fmt.Errorf("write config file: %w", err)
	}
	return f.Close()
}
