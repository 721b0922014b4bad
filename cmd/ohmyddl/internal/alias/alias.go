// Package alias shortens long course names for table output.
package alias

import "strings"

// Rule maps a course name pattern to a short name. A pattern ending in "*" matches by prefix,
// one starting with "*" matches by suffix, anything else must match exactly.
type Rule struct {
	Pattern string `mapstructure:"pattern" yaml:"pattern"`
	Alias   string `mapstructure:"alias" yaml:"alias"`
}

// DefaultRules is the table shipped with the tool.
var DefaultRules = []Rule{
	{Pattern: "毛泽东思想和中国特色社会主义理论体系概论*", Alias: "毛概"},
	{Pattern: "马克思主义基本原理概论*", Alias: "马原"},
	{Pattern: "中国近现代史纲要*", Alias: "中近纲"},
	{Pattern: "数据结构与算法", Alias: "数据结构"},
	{Pattern: "电路*", Alias: "电路"},
	{Pattern: "数字电子技术", Alias: "数电"},
	{Pattern: "模拟电子技术*", Alias: "模电"},
}

// Table resolves course names against an ordered list of rules.
type Table struct {
	rules []Rule
}

// New builds a Table. Rules are tried in order after exact matches.
func New(rules []Rule) *Table {
	return &Table{rules: append([]Rule(nil), rules...)}
}

// Lookup returns the alias of name, or name itself when no rule applies.
func (t *Table) Lookup(name string) string {
	if t == nil {
		return name
	}
	for _, r := range t.rules {
		if r.Pattern == name {
			return r.Alias
		}
	}
	for _, r := range t.rules {
		switch {
		case len(r.Pattern) > 1 && strings.HasSuffix(r.Pattern, "*"):
			if strings.HasPrefix(name, strings.TrimSuffix(r.Pattern, "*")) {
				return r.Alias
			}
		case len(r.Pattern) > 1 && strings.HasPrefix(r.Pattern, "*"):
			if strings.HasSuffix(name, strings.TrimPrefix(r.Pattern, "*")) {
				return r.Alias
			}
		}
	}
	return name
}
