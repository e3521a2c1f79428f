package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/quantfold/deskd/internal/logger"
	"github.com/quantfold/deskd/internal/process"
	"github.com/quantfold/deskd/internal/readiness"
)

// Config is the top-level TOML structure. The process list is static and
// loaded once at startup; there is no hot-reload.
type Config struct {
	Supervisor SupervisorConfig `toml:"supervisor" mapstructure:"supervisor"`
	Env        []string         `toml:"env" mapstructure:"env"`
	Log        *LogConfig       `toml:"log" mapstructure:"log"`
	Processes  []ProcConfig     `toml:"processes" mapstructure:"processes"`
}

// SupervisorConfig tunes the daemon around the process stack.
type SupervisorConfig struct {
	Listen      string        `toml:"listen" mapstructure:"listen"`             // control API address, default 127.0.0.1:9090
	StateDir    string        `toml:"state_dir" mapstructure:"state_dir"`       // persisted volume root
	JournalPath string        `toml:"journal" mapstructure:"journal"`           // sqlite lifecycle journal; empty disables
	StopTimeout time.Duration `toml:"stop_timeout" mapstructure:"stop_timeout"` // SIGTERM->SIGKILL escalation
	LogLevel    string        `toml:"log_level" mapstructure:"log_level"`
}

type LogConfig struct {
	Dir        string `toml:"dir" mapstructure:"dir"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
	RingLines  int    `toml:"ring_lines" mapstructure:"ring_lines"`
}

type ProcConfig struct {
	Name        string          `toml:"name" mapstructure:"name"`
	Command     string          `toml:"command" mapstructure:"command"`
	WorkDir     string          `toml:"workdir" mapstructure:"workdir"`
	Env         []string        `toml:"env" mapstructure:"env"`
	DependsOn   []string        `toml:"depends_on" mapstructure:"depends_on"`
	Required    bool            `toml:"required" mapstructure:"required"`
	Restart     string          `toml:"restart" mapstructure:"restart"`
	MaxRestarts int             `toml:"max_restarts" mapstructure:"max_restarts"`
	ResetAfter  time.Duration   `toml:"reset_after" mapstructure:"reset_after"`
	StopSignal  string          `toml:"stop_signal" mapstructure:"stop_signal"`
	Readiness   ReadinessConfig `toml:"readiness" mapstructure:"readiness"`
	Backoff     BackoffConfig   `toml:"backoff" mapstructure:"backoff"`
	Log         *LogConfig      `toml:"log" mapstructure:"log"`
}

type ReadinessConfig struct {
	Type     string        `toml:"type" mapstructure:"type"`
	Host     string        `toml:"host" mapstructure:"host"`
	Port     int           `toml:"port" mapstructure:"port"`
	Pattern  string        `toml:"pattern" mapstructure:"pattern"`
	Delay    time.Duration `toml:"delay" mapstructure:"delay"`
	Interval time.Duration `toml:"interval" mapstructure:"interval"`
	Timeout  time.Duration `toml:"timeout" mapstructure:"timeout"`
}

type BackoffConfig struct {
	Initial    time.Duration `toml:"initial" mapstructure:"initial"`
	Multiplier float64       `toml:"multiplier" mapstructure:"multiplier"`
	Cap        time.Duration `toml:"cap" mapstructure:"cap"`
}

// Load parses the TOML config at path and validates everything that does not
// need the dependency graph (graph validation happens in supervisor.New, also
// before anything spawns).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	if c.Supervisor.Listen == "" {
		c.Supervisor.Listen = "127.0.0.1:9090"
	}
	if c.Supervisor.LogLevel == "" {
		c.Supervisor.LogLevel = "info"
	}
	if len(c.Processes) == 0 {
		return nil, process.Configf("config %s defines no processes", path)
	}
	return &c, nil
}

// Specs converts the process list into validated process.Spec values,
// merging per-process log settings over the top-level defaults.
func (c *Config) Specs() ([]process.Spec, error) {
	specs := make([]process.Spec, 0, len(c.Processes))
	for _, pc := range c.Processes {
		logCfg := mergeLog(c.Log, pc.Log)
		s := process.Spec{
			Name:      pc.Name,
			Command:   pc.Command,
			WorkDir:   pc.WorkDir,
			Env:       pc.Env,
			DependsOn: pc.DependsOn,
			Required:  pc.Required,
			Readiness: readiness.Config{
				Type:     pc.Readiness.Type,
				Host:     pc.Readiness.Host,
				Port:     pc.Readiness.Port,
				Pattern:  pc.Readiness.Pattern,
				Delay:    pc.Readiness.Delay,
				Interval: pc.Readiness.Interval,
				Timeout:  pc.Readiness.Timeout,
			},
			Restart: process.RestartPolicy(pc.Restart),
			Backoff: process.Backoff{
				Initial:    pc.Backoff.Initial,
				Multiplier: pc.Backoff.Multiplier,
				Cap:        pc.Backoff.Cap,
			},
			MaxRestarts: pc.MaxRestarts,
			ResetAfter:  pc.ResetAfter,
			StopSignal:  pc.StopSignal,
			Log:         logCfg,
		}
		if err := s.Validate(); err != nil {
			return nil, process.Configf("%v", err)
		}
		specs = append(specs, s)
	}
	return specs, nil
}

func mergeLog(top, proc *LogConfig) logger.Config {
	var out logger.Config
	if top != nil {
		out = logger.Config{
			Dir:        top.Dir,
			MaxSizeMB:  top.MaxSizeMB,
			MaxBackups: top.MaxBackups,
			MaxAgeDays: top.MaxAgeDays,
			Compress:   top.Compress,
			RingLines:  top.RingLines,
		}
	}
	if proc != nil {
		if proc.Dir != "" {
			out.Dir = proc.Dir
		}
		if proc.MaxSizeMB != 0 {
			out.MaxSizeMB = proc.MaxSizeMB
		}
		if proc.MaxBackups != 0 {
			out.MaxBackups = proc.MaxBackups
		}
		if proc.MaxAgeDays != 0 {
			out.MaxAgeDays = proc.MaxAgeDays
		}
		if proc.Compress {
			out.Compress = true
		}
		if proc.RingLines != 0 {
			out.RingLines = proc.RingLines
		}
	}
	return out
}

// Validate runs spec conversion and returns the first error, used by the
// `validate` CLI command.
func (c *Config) Validate() error {
	specs, err := c.Specs()
	if err != nil {
		return err
	}
	names := make(map[string]bool, len(specs))
	for _, s := range specs {
		if names[s.Name] {
			return process.Configf("duplicate process name %q", s.Name)
		}
		names[s.Name] = true
	}
	for _, s := range specs {
		for _, dep := range s.DependsOn {
			if !names[dep] {
				return process.Configf("%s depends on unknown process %q", s.Name, dep)
			}
		}
	}
	return nil
}
