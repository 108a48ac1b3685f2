// Package flaky reruns a test command and reports tests that fail in some
// runs but not others.
package flaky

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultFailPatterns match failing Go tests and packages in `go test` output.
var DefaultFailPatterns = []string{
	`--- FAIL: (\S+)`,
	`(?m)^FAIL[ \t]+(\S+)[ \t]`,
}

// Config controls a detection session.
type Config struct {
	Command      string        `mapstructure:"command"`
	Dir          string        `mapstructure:"dir"`
	Runs         int           `mapstructure:"runs"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailPatterns []string      `mapstructure:"fail_patterns"`
	Report       string        `mapstructure:"report"`
	StopOnClean  bool          `mapstructure:"stop_on_clean"`
}

// LoadConfig reads path (optional; "" skips the file) and FLAKEHUNT_* env vars.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("command", "go test ./... -count=1")
	v.SetDefault("dir", ".")
	v.SetDefault("runs", 10)
	v.SetDefault("timeout", 10*time.Minute)
	v.SetDefault("fail_patterns", DefaultFailPatterns)
	v.SetDefault("report", "flakehunt-report.yaml")
	v.SetDefault("stop_on_clean", false)

	v.SetEnvPrefix("FLAKEHUNT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks run counts, the timeout and the fail patterns.
func (c *Config) Validate() error {
	if len(strings.Fields(c.Command)) == 0 {
		return errors.New("flaky: command is required")
	}
	if c.Runs < 2 {
		return fmt.Errorf("flaky: runs must be at least 2, got %d", c.Runs)
	}
	if c.Timeout <= 0 {
		return errors.New("flaky: timeout must be positive")
	}
	if _, err := compilePatterns(c.FailPatterns); err != nil {
		return err
	}
	return nil
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	if len(patterns) == 0 {
		return nil, errors.New("flaky: at least one fail pattern is required")
	}
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("flaky: fail pattern %q: %w", p, err)
		}
		if re.NumSubexp() < 1 {
			return nil, fmt.Errorf("flaky: fail pattern %q needs a capture group naming the test", p)
		}
		out = append(out, re)
	}
	return out, nil
}
