// Package policy decides which free-form query parameters may become
// attribute filters.
package policy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kopimap/kopimap-api/internal/domain/search/filter"
)

// Mode is the attribute admission strategy.
type Mode string

// Policy modes.
const (
	// AllowList admits only configured attributes, each optionally bound to
	// an enumerated value domain.
	AllowList Mode = "allowlist"
	// Open admits any well-formed attribute key with any scalar value.
	Open Mode = "open"
)

// IsValid checks if the mode is one of the supported values.
func (m Mode) IsValid() bool {
	return m == AllowList || m == Open
}

// Attribute is a filterable attribute with an optional value domain.
type Attribute struct {
	name      string
	values    []string
	canonical map[string]string // lower-cased value -> configured casing
}

// Name returns the attribute name.
func (a Attribute) Name() string { return a.name }

// Values returns the enumerated domain (empty means any value).
func (a Attribute) Values() []string { return a.values }

// Policy is an immutable, versioned attribute admission rule set.
// The zero value is an allow-list with no attributes.
type Policy struct {
	mode    Mode
	version string
	attrs   map[string]Attribute
}

// New validates and creates a Policy. attrs is ignored in Open mode.
func New(m Mode, version string, attrs map[string][]string) (Policy, error) {
	if m == "" {
		m = AllowList
	}
	if !m.IsValid() {
		return Policy{}, fmt.Errorf("invalid filter policy mode: %q", m)
	}
	if m == Open {
		return Policy{mode: Open, version: version}, nil
	}

	built := make(map[string]Attribute, len(attrs))
	for name, values := range attrs {
		if !filter.ValidAttribute(name) {
			return Policy{}, fmt.Errorf("invalid attribute name %q", name)
		}
		a := Attribute{name: name, canonical: make(map[string]string, len(values))}
		for _, v := range values {
			v = strings.TrimSpace(v)
			if v == "" {
				return Policy{}, fmt.Errorf("attribute %q: empty value in domain", name)
			}
			key := strings.ToLower(v)
			if _, dup := a.canonical[key]; dup {
				return Policy{}, fmt.Errorf("attribute %q: duplicate value %q", name, v)
			}
			a.canonical[key] = v
			a.values = append(a.values, v)
		}
		built[name] = a
	}
	return Policy{mode: AllowList, version: version, attrs: built}, nil
}

// NewOpen creates an Open policy.
func NewOpen(version string) Policy {
	return Policy{mode: Open, version: version}
}

// Mode returns the admission strategy.
func (p Policy) Mode() Mode {
	if p.mode == "" {
		return AllowList
	}
	return p.mode
}

// Version returns the configured policy version label.
func (p Policy) Version() string { return p.version }

// Attributes returns the allow-listed attributes sorted by name.
func (p Policy) Attributes() []Attribute {
	out := make([]Attribute, 0, len(p.attrs))
	for _, a := range p.attrs {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// Allows reports whether key may be used as an attribute filter.
func (p Policy) Allows(key string) bool {
	if !filter.ValidAttribute(key) {
		return false
	}
	if p.Mode() == Open {
		return true
	}
	_, ok := p.attrs[key]
	return ok
}

// Normalize returns the value to filter on, or false when the value is not
// admissible for attr. Enumerated domains match case-insensitively and yield
// the configured casing.
func (p Policy) Normalize(attr, value string) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" || !p.Allows(attr) {
		return "", false
	}
	if p.Mode() == Open {
		return value, true
	}
	a := p.attrs[attr]
	if len(a.canonical) == 0 {
		return value, true
	}
	canon, ok := a.canonical[strings.ToLower(value)]
	return canon, ok
}
