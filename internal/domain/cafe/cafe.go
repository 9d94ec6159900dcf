package cafe

import (
	"fmt"
	"regexp"
)

// MaxIDLength is the longest document identifier the index accepts.
const MaxIDLength = 511

var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// FieldID is the primary key attribute of a cafe document.
const FieldID = "id"

// Cafe is a cafe document as stored in the search index. Apart from the id
// its attributes are schemaless.
type Cafe struct {
	id     string
	fields map[string]any
}

// ValidateID checks a cafe (place) identifier.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("cafe ID is required")
	}
	if len(id) > MaxIDLength {
		return fmt.Errorf("cafe ID too long (max %d)", MaxIDLength)
	}
	if !idRegex.MatchString(id) {
		return fmt.Errorf("cafe ID must be alphanumeric with underscores and hyphens")
	}
	return nil
}

// Reconstruct creates a Cafe from stored attributes without validation.
func Reconstruct(fields map[string]any) Cafe {
	c := Cafe{fields: fields}
	switch v := fields[FieldID].(type) {
	case string:
		c.id = v
	case fmt.Stringer:
		c.id = v.String()
	case float64:
		c.id = fmt.Sprintf("%.0f", v)
	}
	return c
}

// ID returns the document identifier.
func (c *Cafe) ID() string { return c.id }

// Fields returns all stored attributes, id included.
func (c *Cafe) Fields() map[string]any { return c.fields }

// Get returns a single attribute.
func (c *Cafe) Get(name string) (any, bool) {
	v, ok := c.fields[name]
	return v, ok
}
