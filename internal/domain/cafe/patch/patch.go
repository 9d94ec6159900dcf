package patch

import (
	"fmt"
	"maps"

	"github.com/kopimap/kopimap-api/internal/domain/cafe"
)

// FieldPlaceID carries the target document id in update payloads.
const FieldPlaceID = "place_id"

// MaxFields bounds the number of attributes in one update.
const MaxFields = 256

// Patch is a partial cafe update. Listed attributes are replaced, the rest of
// the stored document is left untouched.
type Patch struct {
	id     string
	fields map[string]any
}

// New validates and creates a Patch from a decoded update payload.
// The payload must carry place_id; it may not set id directly.
func New(payload map[string]any) (Patch, error) {
	raw, ok := payload[FieldPlaceID]
	if !ok {
		return Patch{}, fmt.Errorf("%s is required", FieldPlaceID)
	}
	id, ok := raw.(string)
	if !ok {
		return Patch{}, fmt.Errorf("%s must be a string", FieldPlaceID)
	}
	if err := cafe.ValidateID(id); err != nil {
		return Patch{}, err
	}
	if _, ok := payload[cafe.FieldID]; ok {
		return Patch{}, fmt.Errorf("%q cannot be updated, use %s", cafe.FieldID, FieldPlaceID)
	}

	fields := make(map[string]any, len(payload))
	for k, v := range payload {
		if k == FieldPlaceID {
			continue
		}
		if k == "" {
			return Patch{}, fmt.Errorf("empty attribute name")
		}
		fields[k] = v
	}
	if len(fields) > MaxFields {
		return Patch{}, fmt.Errorf("too many attributes (max %d)", MaxFields)
	}
	return Patch{id: id, fields: fields}, nil
}

// ID returns the target cafe id.
func (p Patch) ID() string { return p.id }

// Fields returns the attributes to replace.
func (p Patch) Fields() map[string]any { return p.fields }

// Document renders the partial document sent to the index: the fields plus
// the primary key.
func (p Patch) Document() map[string]any {
	doc := make(map[string]any, len(p.fields)+1)
	maps.Copy(doc, p.fields)
	doc[cafe.FieldID] = p.id
	return doc
}
