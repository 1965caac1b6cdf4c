package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"areazero/internal/runtime"
)

const (
	DefaultExecutable   = "./multirole"
	DefaultGracePeriod  = 3 * time.Second
	DefaultPollInterval = time.Second

	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Environment variables consulted by FromEnv.
const (
	EnvExecutable   = "AREAZERO_EXEC"
	EnvWorkdir      = "AREAZERO_WORKDIR"
	EnvGracePeriod  = "AREAZERO_GRACE_PERIOD"
	EnvPollInterval = "AREAZERO_POLL_INTERVAL"
	EnvSpawnRetries = "AREAZERO_SPAWN_RETRIES"
	EnvProcessGroup = "AREAZERO_PROCESS_GROUP"
	EnvLogFormat    = "AREAZERO_LOG_FORMAT"
)

// Duration wraps time.Duration for YAML rendering.
type Duration struct {
	time.Duration
}

// UnmarshalText parses a textual duration, accepting empty strings.
func (d *Duration) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = dur
	return nil
}

// MarshalText renders the duration using time.Duration formatting.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Settings holds the supervisor's startup parameters.
type Settings struct {
	Executable   string   `yaml:"executable"`
	Args         []string `yaml:"args,omitempty"`
	Workdir      string   `yaml:"workdir,omitempty"`
	GracePeriod  Duration `yaml:"gracePeriod"`
	PollInterval Duration `yaml:"pollInterval"`
	SpawnRetries int      `yaml:"spawnRetries"`
	ProcessGroup bool     `yaml:"processGroup"`
	LogFormat    string   `yaml:"logFormat"`

	envErrs []error
}

// Default returns the settings used when nothing is overridden.
func Default() Settings {
	return Settings{
		Executable:   DefaultExecutable,
		GracePeriod:  Duration{DefaultGracePeriod},
		PollInterval: Duration{DefaultPollInterval},
		LogFormat:    LogFormatText,
	}
}

// FromEnv returns the defaults overridden by AREAZERO_* environment
// variables. A value that fails to parse leaves the default in place and is
// reported by Validate.
func FromEnv() Settings {
	s := Default()
	if value := strings.TrimSpace(os.Getenv(EnvExecutable)); value != "" {
		s.Executable = value
	}
	if value := strings.TrimSpace(os.Getenv(EnvWorkdir)); value != "" {
		s.Workdir = value
	}
	if value := os.Getenv(EnvGracePeriod); value != "" {
		if d, err := time.ParseDuration(value); err != nil {
			s.envErrs = append(s.envErrs, fmt.Errorf("%s: %w", EnvGracePeriod, err))
		} else {
			s.GracePeriod.Duration = d
		}
	}
	if value := os.Getenv(EnvPollInterval); value != "" {
		if d, err := time.ParseDuration(value); err != nil {
			s.envErrs = append(s.envErrs, fmt.Errorf("%s: %w", EnvPollInterval, err))
		} else {
			s.PollInterval.Duration = d
		}
	}
	if value := os.Getenv(EnvSpawnRetries); value != "" {
		if n, err := strconv.Atoi(value); err != nil {
			s.envErrs = append(s.envErrs, fmt.Errorf("%s: %w", EnvSpawnRetries, err))
		} else {
			s.SpawnRetries = n
		}
	}
	if value := os.Getenv(EnvProcessGroup); value != "" {
		if enabled, err := strconv.ParseBool(value); err != nil {
			s.envErrs = append(s.envErrs, fmt.Errorf("%s: %w", EnvProcessGroup, err))
		} else {
			s.ProcessGroup = enabled
		}
	}
	if value := strings.TrimSpace(os.Getenv(EnvLogFormat)); value != "" {
		s.LogFormat = strings.ToLower(value)
	}
	return s
}

// Validate reports every invalid field at once.
func (s Settings) Validate() error {
	errs := append([]error(nil), s.envErrs...)
	if strings.TrimSpace(s.Executable) == "" {
		errs = append(errs, errors.New("executable must not be empty"))
	}
	if s.GracePeriod.Duration < 0 {
		errs = append(errs, fmt.Errorf("gracePeriod must not be negative (got %s)", s.GracePeriod.Duration))
	}
	if s.PollInterval.Duration <= 0 {
		errs = append(errs, fmt.Errorf("pollInterval must be positive (got %s)", s.PollInterval.Duration))
	}
	if s.SpawnRetries < 0 {
		errs = append(errs, fmt.Errorf("spawnRetries must not be negative (got %d)", s.SpawnRetries))
	}
	switch s.LogFormat {
	case LogFormatText, LogFormatJSON:
	default:
		errs = append(errs, fmt.Errorf("logFormat must be %q or %q (got %q)", LogFormatText, LogFormatJSON, s.LogFormat))
	}
	return errors.Join(errs...)
}

// Spec converts the settings into a launch specification.
func (s Settings) Spec() runtime.Spec {
	spec := runtime.Spec{
		Path:         s.Executable,
		Dir:          s.Workdir,
		ProcessGroup: s.ProcessGroup,
	}
	if len(s.Args) > 0 {
		spec.Args = append([]string(nil), s.Args...)
	}
	return spec
}

// YAML renders the settings as a YAML document.
func (s Settings) YAML() ([]byte, error) {
	out, err := yaml.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode settings: %w", err)
	}
	return out, nil
}
