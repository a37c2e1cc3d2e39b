// Package config holds the options of one fix invocation. Values are
// layered: an optional YAML file, then AUTOFIX_* environment variables,
// then command-line flags applied by the caller.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"autofix/internal/diag"
	"autofix/internal/fault"
	"autofix/internal/logging"
	"autofix/internal/project"
	"autofix/internal/session"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "AUTOFIX_"

const maxConfigFileSize = 1 << 20

type Config struct {
	ProjectPath      string            `koanf:"project"`
	Language         string            `koanf:"language"`
	Rules            []string          `koanf:"rules"`
	Modules          []string          `koanf:"modules"`
	ExcludeModules   []string          `koanf:"exclude_modules"`
	AdditionalFiles  []string          `koanf:"additional_files"`
	SettingsFile     string            `koanf:"settings_file"`
	NoWarn           []string          `koanf:"nowarn"`
	WarningsAsErrors []string          `koanf:"warnaserror"`
	RuleSet          string            `koanf:"ruleset"`
	Symbols          []string          `koanf:"symbols"`
	GlobalProperties map[string]string `koanf:"properties"`
	ReaderPath       string            `koanf:"reader"`
	ReaderTimeout    time.Duration     `koanf:"reader_timeout"`
	Lifetime         string            `koanf:"lifetime"`
	Jobs             int               `koanf:"jobs"`
	MaxPasses        int               `koanf:"max_passes"`
	Log              logging.Options   `koanf:"log"`
}

// listKeys are split with SplitList when they come from the environment.
var listKeys = map[string]bool{
	"rules":            true,
	"modules":          true,
	"exclude_modules":  true,
	"additional_files": true,
	"nowarn":           true,
	"warnaserror":      true,
	"symbols":          true,
}

// Load reads file (skipped when empty) and the environment. The result is
// not validated; flags usually still have to be applied.
func Load(file string) (*Config, error) {
	k := koanf.New(".")
	if file != "" {
		info, err := os.Stat(file)
		if err != nil {
			return nil, fault.Wrap(err, fault.KindConfiguration, diag.InvalidConfig, "config file")
		}
		if info.Size() > maxConfigFileSize {
			return nil, fault.Newf(fault.KindConfiguration, diag.InvalidConfig,
				"config file %s is larger than %d bytes", file, maxConfigFileSize)
		}
		content, err := os.ReadFile(file)
		if err != nil {
			return nil, fault.Wrap(err, fault.KindConfiguration, diag.InvalidConfig, "config file")
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fault.Wrap(err, fault.KindConfiguration, diag.InvalidConfig, "parse config file "+file)
		}
	}

	// AUTOFIX_EXCLUDE_MODULES -> exclude_modules, AUTOFIX_LOG_LEVEL -> log.level
	err := k.Load(env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, any) {
		key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
		if rest, ok := strings.CutPrefix(key, "log_"); ok {
			return "log." + rest, value
		}
		if listKeys[key] {
			return key, SplitList(value)
		}
		return key, value
	}), nil)
	if err != nil {
		return nil, fault.Wrap(err, fault.KindConfiguration, diag.InvalidConfig, "environment")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fault.Wrap(err, fault.KindConfiguration, diag.InvalidConfig, "decode config")
	}
	return &cfg, nil
}

// Validate checks what must hold before a session may start.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fault.Newf(fault.KindConfiguration, diag.InvalidConfig, format, args...)
	}
	switch {
	case strings.TrimSpace(c.ProjectPath) == "":
		return invalid("project path is required")
	case !project.IsFile(c.ProjectPath):
		return invalid("project %s is not a file", c.ProjectPath)
	case strings.TrimSpace(c.Language) == "":
		return invalid("language is required")
	case c.RuleSet != "" && !project.IsFile(c.RuleSet):
		return invalid("rule set %s is not a file", c.RuleSet)
	case c.SettingsFile != "" && !project.IsFile(c.SettingsFile):
		return invalid("settings file %s is not a file", c.SettingsFile)
	case c.Jobs < 0:
		return invalid("jobs must not be negative")
	case c.MaxPasses < 0:
		return invalid("max passes must not be negative")
	case c.ReaderTimeout < 0:
		return invalid("reader timeout must not be negative")
	}
	if _, err := session.ParseLifetime(c.Lifetime); err != nil {
		return invalid("%v", err)
	}
	if c.SettingsFile != "" {
		if _, err := project.LoadSettings(c.SettingsFile); err != nil {
			return fault.Wrap(err, fault.KindConfiguration, diag.InvalidConfig, "unreadable settings file")
		}
	}
	for _, f := range c.AdditionalFiles {
		if !project.IsFile(f) {
			return invalid("additional file %s is not a file", f)
		}
	}
	return nil
}

// Overrides merges the project's own levels with the rule set file and the
// suppress and escalate lists.
func (c *Config) Overrides(projectLevels map[string]string) (diag.Overrides, error) {
	base, err := diag.ParseOverrides(projectLevels)
	if err != nil {
		return nil, fault.Wrap(err, fault.KindConfiguration, diag.InvalidConfig, "project diagnostic options")
	}
	var ruleSet diag.Overrides
	if c.RuleSet != "" {
		ruleSet, err = diag.LoadRuleSet(c.RuleSet)
		if err != nil {
			return nil, fault.Wrap(err, fault.KindConfiguration, diag.InvalidConfig, "rule set")
		}
	}
	return diag.Merge(base, ruleSet, c.NoWarn, c.WarningsAsErrors), nil
}

// SplitList splits ';' or ',' separated values, trimming blanks and
// dropping empty and repeated entries.
func SplitList(values ...string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, v := range values {
		for _, item := range strings.FieldsFunc(v, func(r rune) bool { return r == ';' || r == ',' }) {
			item = strings.TrimSpace(item)
			if item == "" || seen[item] {
				continue
			}
			seen[item] = true
			out = append(out, item)
		}
	}
	return out
}

// ParseProperties turns "Name=Value" pairs into a map.
func ParseProperties(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fault.Newf(fault.KindConfiguration, diag.InvalidConfig, "property %q is not Name=Value", p)
		}
		out[name] = strings.TrimSpace(value)
	}
	return out, nil
}

func (c *Config) String() string {
	return fmt.Sprintf("project=%s language=%s rules=%s", c.ProjectPath, c.Language, strings.Join(c.Rules, ";"))
}
