// Package params models the flat query-string parameters a search is built from.
package params

import (
	"net/url"
	"sort"
	"strings"
)

// Set is an ordered parameter mapping. Keys keep the position of their first
// occurrence; when a key repeats, the last value wins.
type Set struct {
	keys   []string
	values map[string]string
}

// Of builds a Set from alternating key/value pairs. A trailing key without a
// value is ignored.
func Of(pairs ...string) Set {
	s := Set{values: make(map[string]string, len(pairs)/2)}
	for i := 0; i+1 < len(pairs); i += 2 {
		s.put(pairs[i], pairs[i+1])
	}
	return s
}

// Parse decodes a raw query string ("a=1&b=2"). Undecodable pairs are skipped.
func Parse(rawQuery string) Set {
	s := Set{values: make(map[string]string)}
	for rawQuery != "" {
		var part string
		part, rawQuery, _ = strings.Cut(rawQuery, "&")
		if part == "" {
			continue
		}
		rawKey, rawValue, _ := strings.Cut(part, "=")
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			continue
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			continue
		}
		s.put(key, value)
	}
	return s
}

// FromValues converts url.Values. Keys are sorted because url.Values carries
// no order; the last value of each key wins.
func FromValues(v url.Values) Set {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	s := Set{values: make(map[string]string, len(keys))}
	for _, k := range keys {
		if vals := v[k]; len(vals) > 0 {
			s.put(k, vals[len(vals)-1])
		}
	}
	return s
}

func (s *Set) put(key, value string) {
	if key == "" {
		return
	}
	if s.values == nil {
		s.values = make(map[string]string)
	}
	if _, ok := s.values[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.values[key] = value
}

// Get returns the value for key and whether it was present.
func (s Set) Get(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Value returns the value for key, or "" when absent.
func (s Set) Value(key string) string { return s.values[key] }

// First returns the value of the first present key among keys.
func (s Set) First(keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := s.values[k]; ok {
			return v, true
		}
	}
	return "", false
}

// Keys returns the keys in order.
func (s Set) Keys() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Len returns the number of distinct keys.
func (s Set) Len() int { return len(s.keys) }
