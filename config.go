package slicescan

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the tunables of a verification session.
//
// The zero value is not usable; start from DefaultConfig or LoadConfig.
type Config struct {
	// FailMax is the number of CRC-only matches (CRC equal, MD5 different)
	// that arms the degenerate-run guard.
	FailMax int `yaml:"fail_max" mapstructure:"fail_max"`

	// FailSpan is the byte span those matches must fall in. Sparser false
	// positives are ordinary collisions and never trigger the guard.
	FailSpan int `yaml:"fail_span" mapstructure:"fail_span"`

	// FailTime is how long the scanner must already have been sliding
	// through the current region before the guard skips ahead.
	FailTime time.Duration `yaml:"fail_time" mapstructure:"fail_time"`

	// OverlapShift scales the overlap limit with the position inside the
	// current block span: overlapping hits are abandoned once their count
	// reaches both FailMax and offset>>OverlapShift.
	OverlapShift uint `yaml:"overlap_shift" mapstructure:"overlap_shift"`

	// MissLimit is the minimum number of consecutive aligned misses after
	// which the simple mode stops scanning forward.
	MissLimit int `yaml:"miss_limit" mapstructure:"miss_limit"`

	// CorrectLimit bounds the window length searched by the corrector.
	CorrectLimit int `yaml:"correct_limit" mapstructure:"correct_limit"`

	// FragmentMemory is the memory budget of the fragment pool in bytes. Half
	// of it is used.
	FragmentMemory int64 `yaml:"fragment_memory" mapstructure:"fragment_memory"`

	// ProgressInterval is the wall-clock period between progress callbacks
	// and cancellation polls.
	ProgressInterval time.Duration `yaml:"progress_interval" mapstructure:"progress_interval"`

	// ReadAttempts is how many times the background reader tries a failing
	// read before the file is abandoned.
	ReadAttempts uint `yaml:"read_attempts" mapstructure:"read_attempts"`

	// Workers bounds VerifyParallel. Zero means one worker per CPU.
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// DefaultConfig returns the tuning used when nothing else is configured.
func DefaultConfig() Config {
	return Config{
		FailMax:          8,
		FailSpan:         8 << 10,
		FailTime:         128 * time.Millisecond,
		OverlapShift:     10,
		MissLimit:        6,
		CorrectLimit:     DefaultCorrectLimit,
		FragmentMemory:   512 << 20,
		ProgressInterval: time.Second,
		ReadAttempts:     3,
	}
}

var ErrInvalidConfig = errors.New("invalid configuration")

// Validate rejects values the scanner cannot work with.
func (c Config) Validate() error {
	var errs []error
	if c.FailMax <= 0 {
		errs = append(errs, fmt.Errorf("fail_max must be positive, got %d", c.FailMax))
	}
	if c.FailSpan <= 0 {
		errs = append(errs, fmt.Errorf("fail_span must be positive, got %d", c.FailSpan))
	}
	if c.FailTime < 0 {
		errs = append(errs, fmt.Errorf("fail_time must not be negative, got %s", c.FailTime))
	}
	if c.OverlapShift > 30 {
		errs = append(errs, fmt.Errorf("overlap_shift must be at most 30, got %d", c.OverlapShift))
	}
	if c.MissLimit <= 0 {
		errs = append(errs, fmt.Errorf("miss_limit must be positive, got %d", c.MissLimit))
	}
	if c.CorrectLimit < 0 {
		errs = append(errs, fmt.Errorf("correct_limit must not be negative, got %d", c.CorrectLimit))
	}
	if c.FragmentMemory < 0 {
		errs = append(errs, fmt.Errorf("fragment_memory must not be negative, got %d", c.FragmentMemory))
	}
	if c.ProgressInterval <= 0 {
		errs = append(errs, fmt.Errorf("progress_interval must be positive, got %s", c.ProgressInterval))
	}
	if c.ReadAttempts == 0 {
		errs = append(errs, errors.New("read_attempts must be at least 1"))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", c.Workers))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// LoadConfig reads a YAML configuration file on top of DefaultConfig.
// Environment variables prefixed with SLICESCAN_ (for example
// SLICESCAN_FAIL_MAX) override file values. An empty path loads defaults
// and environment only.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	def := DefaultConfig()
	v.SetDefault("fail_max", def.FailMax)
	v.SetDefault("fail_span", def.FailSpan)
	v.SetDefault("fail_time", def.FailTime)
	v.SetDefault("overlap_shift", def.OverlapShift)
	v.SetDefault("miss_limit", def.MissLimit)
	v.SetDefault("correct_limit", def.CorrectLimit)
	v.SetDefault("fragment_memory", def.FragmentMemory)
	v.SetDefault("progress_interval", def.ProgressInterval)
	v.SetDefault("read_attempts", def.ReadAttempts)
	v.SetDefault("workers", def.Workers)

	v.SetEnvPrefix("slicescan")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
