package diag

import (
	"fmt"
	"maps"
	"sort"

	"github.com/BurntSushi/toml"
)

// Overrides maps rule ids to report levels.
type Overrides map[string]ReportLevel

type ruleSetFile struct {
	Rules map[string]string `toml:"rules"`
}

// LoadRuleSet reads a TOML rule-set file:
//
//	[rules]
//	AF1001 = "error"
//	AF1002 = "none"
func LoadRuleSet(path string) (Overrides, error) {
	var raw ruleSetFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("rule set %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("rule set %s: unknown key %q", path, undecoded[0].String())
	}
	return ParseOverrides(raw.Rules)
}

// ParseOverrides converts a rule→level string map.
func ParseOverrides(raw map[string]string) (Overrides, error) {
	out := make(Overrides, len(raw))
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, rule := range keys {
		lvl, err := ParseReportLevel(raw[rule])
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", rule, err)
		}
		out[rule] = lvl
	}
	return out, nil
}

// Strings renders overrides back to their string form, e.g. for the
// project metadata schema.
func (o Overrides) Strings() map[string]string {
	if len(o) == 0 {
		return nil
	}
	out := make(map[string]string, len(o))
	for k, v := range o {
		out[k] = v.String()
	}
	return out
}

// Merge builds the effective overrides of an invocation. Later layers win:
// the project's own options, then the rule set, then the suppress list,
// then the escalate list. A rule both suppressed and escalated ends up as
// an error.
func Merge(project, ruleSet Overrides, suppress, escalate []string) Overrides {
	out := make(Overrides, len(project)+len(ruleSet)+len(suppress)+len(escalate))
	maps.Copy(out, project)
	for k, v := range ruleSet {
		if v == LevelDefault {
			continue
		}
		out[k] = v
	}
	for _, id := range suppress {
		out[id] = LevelSuppress
	}
	for _, id := range escalate {
		out[id] = LevelError
	}
	return out
}

// Resolve returns the effective severity of rule given its default.
func (o Overrides) Resolve(rule string, def Severity) (Severity, bool) {
	lvl, ok := o[rule]
	if !ok {
		return def, true
	}
	return lvl.Apply(def)
}
