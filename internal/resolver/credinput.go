package resolver

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CookieEntry is one structured cookie supplied by a caller.
type CookieEntry struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain,omitempty"`
}

// CredentialInput accepts the three caller-supplied cookie shapes (raw
// header string, structured list, single entry) and normalizes them into
// one canonical secret representation.
type CredentialInput struct {
	raw     string
	entries []CookieEntry
}

// RawCredentialInput wraps a raw cookie-header string.
func RawCredentialInput(raw string) CredentialInput {
	return CredentialInput{raw: raw}
}

// StructuredCredentialInput wraps structured cookie entries.
func StructuredCredentialInput(entries ...CookieEntry) CredentialInput {
	return CredentialInput{entries: entries}
}

// IsZero reports whether no cookie material was supplied.
func (c CredentialInput) IsZero() bool {
	return c.raw == "" && len(c.entries) == 0
}

// Normalize produces the canonical "name=value; name=value" secret string.
func (c CredentialInput) Normalize() (string, error) {
	if c.raw != "" {
		raw := strings.TrimSpace(c.raw)
		if raw == "" {
			return "", fmt.Errorf("cookie string is empty")
		}
		return raw, nil
	}
	if len(c.entries) == 0 {
		return "", fmt.Errorf("no cookie material supplied")
	}
	pairs := make([]string, 0, len(c.entries))
	for _, e := range c.entries {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			return "", fmt.Errorf("cookie entry is missing a name")
		}
		pairs = append(pairs, name+"="+e.Value)
	}
	return strings.Join(pairs, "; "), nil
}

// UnmarshalJSON accepts a JSON string, an array of entries, or a single
// entry object.
func (c *CredentialInput) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*c = CredentialInput{}
		return nil
	}
	switch trimmed[0] {
	case '"':
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("decode cookie string: %w", err)
		}
		*c = CredentialInput{raw: raw}
		return nil
	case '[':
		var entries []CookieEntry
		if err := json.Unmarshal(data, &entries); err != nil {
			return fmt.Errorf("decode cookie list: %w", err)
		}
		*c = CredentialInput{entries: entries}
		return nil
	case '{':
		var entry CookieEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			return fmt.Errorf("decode cookie entry: %w", err)
		}
		*c = CredentialInput{entries: []CookieEntry{entry}}
		return nil
	default:
		return fmt.Errorf("unsupported cookie input shape")
	}
}

// MarshalJSON round-trips the accepted shape.
func (c CredentialInput) MarshalJSON() ([]byte, error) {
	switch {
	case c.raw != "":
		return json.Marshal(c.raw)
	case len(c.entries) > 0:
		return json.Marshal(c.entries)
	default:
		return []byte("null"), nil
	}
}
