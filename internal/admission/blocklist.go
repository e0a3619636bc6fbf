package admission

import "regexp"

// Blocklist screens request fields against known attack patterns before
// any further processing. Defense in depth only; downstream collaborators
// still treat all input as untrusted.
type Blocklist struct {
	patterns []*regexp.Regexp
}

// defaultAttackPatterns cover injection attempts riding in the URL or
// cookie fields.
var defaultAttackPatterns = []string{
	`(?i)<\s*script`,
	`(?i)javascript\s*:`,
	`(?i)data:text/html`,
	`(?i)\bunion\s+select\b`,
	`(?i)\bdrop\s+table\b`,
	`\.\./\.\./`,
	`%00`,
	`(?i)%0d%0a`,
	"[\x00-\x08\x0b\x0c\x0e-\x1f]",
}

// NewBlocklist compiles the default attack patterns plus any configured
// extras. Invalid extras are skipped rather than failing startup.
func NewBlocklist(extra []string) *Blocklist {
	b := &Blocklist{}
	for _, raw := range append(append([]string{}, defaultAttackPatterns...), extra...) {
		re, err := regexp.Compile(raw)
		if err != nil {
			continue
		}
		b.patterns = append(b.patterns, re)
	}
	return b
}

// Matches reports whether any field trips an attack pattern.
func (b *Blocklist) Matches(fields ...string) bool {
	if b == nil {
		return false
	}
	for _, field := range fields {
		if field == "" {
			continue
		}
		for _, re := range b.patterns {
			if re.MatchString(field) {
				return true
			}
		}
	}
	return false
}
