package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// DefaultInterval is the reconciliation poll cadence when --interval is
// not given.
const DefaultInterval = 200 * time.Millisecond

// CustomAttribute is one name=expression pair. The expression is compiled
// later; parsing only splits and checks shape.
type CustomAttribute struct {
	Name       string
	Expression string
}

// Config holds the parsed command-line configuration.
type Config struct {
	// Command is the executable to launch as the monitored root.
	Command string
	// Args are the arguments passed to the command.
	Args []string
	// AttachPID selects an already-running root instead of launching one.
	AttachPID int32
	// Interval is the reconciliation poll cadence, always positive.
	Interval time.Duration
	// TraceID is the raw --trace-id value; derivation into a valid trace
	// ID happens at reporting time.
	TraceID string
	// CustomAttributes are evaluated per record on the exported spans.
	CustomAttributes []CustomAttribute
	// Live redraws the process table at the poll cadence instead of
	// printing per-tick counters.
	Live bool
	// NoHash skips executable digests; records carry the sentinel.
	NoHash bool
	// ShowVersion prints version information and exits.
	ShowVersion bool
}

// EnvConfig carries flag fallbacks from the environment, for callers that
// wrap this tool in scripts or CI. CLI flags win over these; attribute
// lists merge with the environment entries first.
type EnvConfig struct {
	TraceID    string `env:"PROCWATCH_TRACE_ID" envDefault:""`
	Attributes string `env:"PROCWATCH_ATTRIBUTES" envDefault:""`
	Interval   string `env:"PROCWATCH_INTERVAL" envDefault:""`
}

// ParseEnvConfig parses PROCWATCH_* environment variables.
func ParseEnvConfig() (*EnvConfig, error) {
	var cfg EnvConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment config: %w", err)
	}
	return &cfg, nil
}

// ParseArgs parses command-line arguments and returns a Config.
// Expected format: program [flags] -- <command> [args...]
// or, to monitor an existing process: program [flags] --pid <pid>
func ParseArgs(args []string) (*Config, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("no arguments provided")
	}

	programName := args[0]

	envCfg, err := ParseEnvConfig()
	if err != nil {
		return nil, err
	}
	envAttrs, err := ParseAttributeString(envCfg.Attributes)
	if err != nil {
		return nil, fmt.Errorf("PROCWATCH_ATTRIBUTES: %w", err)
	}

	cfg := &Config{
		Interval:         DefaultInterval,
		TraceID:          envCfg.TraceID,
		CustomAttributes: envAttrs,
	}
	if envCfg.Interval != "" {
		interval, err := parseInterval(envCfg.Interval)
		if err != nil {
			return nil, fmt.Errorf("PROCWATCH_INTERVAL: %w", err)
		}
		cfg.Interval = interval
	}

	// Find the "--" separator, collecting flags on the way
	cmdStart := -1
	for i := 1; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			cmdStart = i + 1
			break
		}

		switch arg {
		case "-i", "--interval":
			value, err := flagValue(args, &i)
			if err != nil {
				return nil, err
			}
			interval, err := parseInterval(value)
			if err != nil {
				return nil, err
			}
			cfg.Interval = interval

		case "--pid":
			value, err := flagValue(args, &i)
			if err != nil {
				return nil, err
			}
			pid, err := strconv.ParseInt(value, 10, 32)
			if err != nil || pid <= 0 {
				return nil, fmt.Errorf("--pid requires a positive process ID, got %q", value)
			}
			cfg.AttachPID = int32(pid)

		case "-a", "--attribute":
			value, err := flagValue(args, &i)
			if err != nil {
				return nil, err
			}
			attr, err := parseAttribute(value)
			if err != nil {
				return nil, err
			}
			cfg.CustomAttributes = append(cfg.CustomAttributes, attr)

		case "-t", "--trace-id":
			value, err := flagValue(args, &i)
			if err != nil {
				return nil, err
			}
			cfg.TraceID = value

		case "--live":
			cfg.Live = true

		case "--no-hash":
			cfg.NoHash = true

		case "--version":
			cfg.ShowVersion = true
			return cfg, nil

		default:
			return nil, fmt.Errorf("unknown flag %q", arg)
		}
	}

	hasCommand := cmdStart != -1 && cmdStart < len(args)
	switch {
	case hasCommand && cfg.AttachPID > 0:
		return nil, fmt.Errorf("--pid and a command are mutually exclusive")
	case !hasCommand && cfg.AttachPID == 0:
		return nil, usageError(programName)
	case hasCommand:
		cfg.Command = args[cmdStart]
		cfg.Args = args[cmdStart+1:]
	}

	return cfg, nil
}

// ParseAttributeString parses a semicolon-separated attribute list, the
// format PROCWATCH_ATTRIBUTES uses: "name=expr;name2=expr2". Empty
// sections are skipped.
func ParseAttributeString(s string) ([]CustomAttribute, error) {
	if s == "" {
		return nil, nil
	}

	var attrs []CustomAttribute
	for _, part := range strings.Split(s, ";") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		attr, err := parseAttribute(part)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, attr)
	}
	return attrs, nil
}

// flagValue consumes the value following the flag at *i.
func flagValue(args []string, i *int) (string, error) {
	if *i+1 >= len(args) {
		return "", fmt.Errorf("%s requires a value", args[*i])
	}
	*i++
	return args[*i], nil
}

// parseInterval accepts a Go duration ("250ms", "1s") or a bare integer
// meaning milliseconds. Zero and negative cadences are rejected.
func parseInterval(value string) (time.Duration, error) {
	if ms, err := strconv.Atoi(value); err == nil {
		if ms <= 0 {
			return 0, fmt.Errorf("interval must be positive, got %q", value)
		}
		return time.Duration(ms) * time.Millisecond, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q: %v", value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("interval must be positive, got %q", value)
	}
	return d, nil
}

func parseAttribute(value string) (CustomAttribute, error) {
	name, expression, ok := strings.Cut(value, "=")
	if !ok {
		return CustomAttribute{}, fmt.Errorf("invalid attribute format %q: expected NAME=EXPR", value)
	}
	name = strings.TrimSpace(name)
	expression = strings.TrimSpace(expression)
	if name == "" {
		return CustomAttribute{}, fmt.Errorf("attribute name cannot be empty in %q", value)
	}
	if expression == "" {
		return CustomAttribute{}, fmt.Errorf("attribute expression cannot be empty in %q", value)
	}
	return CustomAttribute{Name: name, Expression: expression}, nil
}

func usageError(programName string) error {
	return fmt.Errorf(`no command specified

Usage: %s [flags] -- <command> [args...]
   or: %s [flags] --pid <pid>

Flags:
  -i, --interval <dur>    poll cadence, duration or milliseconds (default 200ms)
      --pid <pid>         monitor an already-running process tree
  -a, --attribute n=expr  add an expr-evaluated span attribute (repeatable)
  -t, --trace-id <id>     32-hex trace ID, or any token to derive one from
      --live              redraw the process table every poll
      --no-hash           skip executable digests
      --version           print version and exit

Example: %s -- bash -c 'echo hello'`,
		programName, programName, programName)
}

// FullCommand returns the command and all its arguments as a slice.
func (c *Config) FullCommand() []string {
	return append([]string{c.Command}, c.Args...)
}
