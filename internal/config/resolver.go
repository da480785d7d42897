package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type ValueSource string

const (
	SourceUnknown ValueSource = "unknown"
	SourceConfig  ValueSource = "config"
	SourceDotenv  ValueSource = "dotenv"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
	SourceDefault ValueSource = "default"
)

type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

type ResolveOptions struct {
	ConfigPath string
	EnvFile    string // dotenv file; empty means ".env" in the working directory

	CLIDBPath    string
	CLIAliases   string
	CLIOverrides string
	CLIWorkers   string
	CLILogLevel  string
}

type ResolvedConfig struct {
	ConfigPath string `json:"config_path"`

	DBPath        ResolvedValue `json:"db_path"`
	AliasesPath   ResolvedValue `json:"aliases_path"`
	OverridesPath ResolvedValue `json:"overrides_path"`
	Workers       ResolvedValue `json:"workers"`
	LogLevel      ResolvedValue `json:"log_level"`
}

type fileConfig struct {
	DBPath    string `yaml:"db_path"`
	Aliases   string `yaml:"aliases"`
	Overrides string `yaml:"overrides"`
	Workers   *int   `yaml:"workers"`
	LogLevel  string `yaml:"log_level"`
}

const (
	envDB        = "CONTEST_DB"
	envAliases   = "CONTEST_ALIASES"
	envOverrides = "CONTEST_OVERRIDES"
	envWorkers   = "CONTEST_WORKERS"
	envLogLevel  = "CONTEST_LOG_LEVEL"
)

func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".contest", "config.yaml")
}

func DefaultDBPath() string {
	return "~/.contest/contest.db"
}

// ResolveConfig layers built-in defaults, the YAML config file, the dotenv
// file, the process environment and CLI flags, later layers winning. Each
// value remembers where it came from.
func ResolveConfig(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = DefaultConfigPath()
	}

	out := ResolvedConfig{ConfigPath: path}
	apply(&out.DBPath, DefaultDBPath(), SourceDefault, "built-in default")
	apply(&out.Workers, "0", SourceDefault, "built-in default")
	apply(&out.LogLevel, "info", SourceDefault, "built-in default")

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}

	if cfg != nil {
		apply(&out.DBPath, cfg.DBPath, SourceConfig, path)
		apply(&out.AliasesPath, relativeTo(path, cfg.Aliases), SourceConfig, path)
		apply(&out.OverridesPath, relativeTo(path, cfg.Overrides), SourceConfig, path)
		if cfg.Workers != nil {
			apply(&out.Workers, strconv.Itoa(*cfg.Workers), SourceConfig, path)
		}
		apply(&out.LogLevel, cfg.LogLevel, SourceConfig, path)
	}

	envFile := strings.TrimSpace(opts.EnvFile)
	if envFile == "" {
		envFile = ".env"
	}
	dotenv, err := loadDotenv(envFile)
	if err != nil {
		return out, err
	}
	for dst, key := range map[*ResolvedValue]string{
		&out.DBPath:        envDB,
		&out.AliasesPath:   envAliases,
		&out.OverridesPath: envOverrides,
		&out.Workers:       envWorkers,
		&out.LogLevel:      envLogLevel,
	} {
		apply(dst, dotenv[key], SourceDotenv, envFile+":"+key)
		applyEnv(dst, key)
	}

	apply(&out.DBPath, opts.CLIDBPath, SourceCLI, "--db")
	apply(&out.AliasesPath, opts.CLIAliases, SourceCLI, "--aliases")
	apply(&out.OverridesPath, opts.CLIOverrides, SourceCLI, "--overrides")
	apply(&out.Workers, opts.CLIWorkers, SourceCLI, "--workers")
	apply(&out.LogLevel, opts.CLILogLevel, SourceCLI, "--log-level")

	for _, v := range []*ResolvedValue{&out.DBPath, &out.AliasesPath, &out.OverridesPath} {
		if v.Value != "" {
			v.Value = expandUserPath(v.Value)
		}
	}

	if _, err := out.WorkerCount(); err != nil {
		return out, err
	}
	return out, nil
}

// WorkerCount parses the resolved worker setting. Zero means one worker per CPU.
func (r ResolvedConfig) WorkerCount() (int, error) {
	v := strings.TrimSpace(r.Workers.Value)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("workers from %s (%s): %q is not a non-negative integer", r.Workers.Source, r.Workers.From, v)
	}
	return n, nil
}

func apply(dst *ResolvedValue, raw string, source ValueSource, from string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	*dst = ResolvedValue{Value: v, Source: source, From: from}
}

func applyEnv(dst *ResolvedValue, envKey string) {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		*dst = ResolvedValue{Value: v, Source: SourceEnv, From: envKey}
	}
}

func loadConfig(path string) (*fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

// loadDotenv reads KEY=VALUE pairs without touching the process environment.
func loadDotenv(path string) (map[string]string, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	vals, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return vals, nil
}

// relativeTo resolves a data-file path from the config file against the config
// file's directory.
func relativeTo(configPath, p string) string {
	p = strings.TrimSpace(p)
	if p == "" || filepath.IsAbs(p) || strings.HasPrefix(p, "~/") {
		return p
	}
	return filepath.Join(filepath.Dir(configPath), p)
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
