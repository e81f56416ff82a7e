package tools

import "regexp"

// CommandPolicy flags shell commands that must never run, regardless of
// state or approval. The default set is the floor; embedders may extend it
// but not shrink it below the defaults.
type CommandPolicy struct {
	patterns []*regexp.Regexp
}

var defaultDangerous = []*regexp.Regexp{
	regexp.MustCompile(`\brm\s+(-[a-zA-Z]*r[a-zA-Z]*f|-[a-zA-Z]*f[a-zA-Z]*r)\s+/`),
	regexp.MustCompile(`\bsudo\b`),
	regexp.MustCompile(`\bcurl\b[^|]*\|\s*(bash|sh)\b`),
	regexp.MustCompile(`\bwget\b[^|]*\|\s*(bash|sh)\b`),
}

// NewCommandPolicy returns the default policy extended with extra patterns.
// Invalid extra patterns are skipped; the defaults always apply.
func NewCommandPolicy(extra ...string) *CommandPolicy {
	policy := &CommandPolicy{patterns: defaultDangerous}
	for _, raw := range extra {
		re, err := regexp.Compile(raw)
		if err != nil {
			continue
		}
		policy.patterns = append(policy.patterns, re)
	}
	return policy
}

// Dangerous reports whether the command matches any flagged pattern, along
// with the pattern that fired.
func (p *CommandPolicy) Dangerous(command string) (string, bool) {
	for _, re := range p.patterns {
		if re.MatchString(command) {
			return re.String(), true
		}
	}
	return "", false
}

// fastAllowList holds the command prefixes that run without approval in
// fast mode.
var fastAllowList = []*regexp.Regexp{
	regexp.MustCompile(`^(npm|pnpm|yarn)\s+(test|run\s+test)\b`),
	regexp.MustCompile(`^git\s+(status|diff|log)\b`),
	regexp.MustCompile(`^(ls|dir|pwd|echo)\b`),
}

// FastAllowed reports whether a shell command is on the fast-mode
// allow-list.
func FastAllowed(command string) bool {
	for _, re := range fastAllowList {
		if re.MatchString(command) {
			return true
		}
	}
	return false
}
