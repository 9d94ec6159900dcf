// Package filter renders predicates in the Meilisearch filter grammar.
//
// Every constructor produces a self-contained expression; a list of
// expressions is AND-combined by the search backend, so OR groups are always
// kept inside a single expression.
package filter

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/kopimap/kopimap-api/internal/domain/geo"
)

// Filter limits.
const (
	// MaxExpressions caps the number of expressions compiled from one request.
	MaxExpressions = 32
	// MaxAnyOfValues caps the members of one disjunction.
	MaxAnyOfValues = 32
)

var attributeRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// Expression is an immutable filter fragment.
type Expression struct {
	text string
}

// String returns the expression in backend grammar.
func (e Expression) String() string { return e.text }

// IsZero reports whether the expression is empty.
func (e Expression) IsZero() bool { return e.text == "" }

// ValidAttribute reports whether name is safe to interpolate as an attribute.
func ValidAttribute(name string) bool {
	return attributeRe.MatchString(name)
}

// AtLeast renders "attr >= v".
func AtLeast(attr string, v float64) Expression {
	return Expression{text: attr + " >= " + FormatNumber(v)}
}

// EqualNumber renders "attr = v" with a bare number.
func EqualNumber(attr string, v float64) Expression {
	return Expression{text: attr + " = " + FormatNumber(v)}
}

// EqualString renders "attr = 'v'".
func EqualString(attr, v string) Expression {
	return Expression{text: attr + " = " + Quote(v)}
}

// AnyOf renders "attr = ['v1' OR 'v2']". It returns false when values is empty.
func AnyOf(attr string, values []string) (Expression, bool) {
	if len(values) == 0 {
		return Expression{}, false
	}
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = Quote(v)
	}
	return Expression{text: attr + " = [" + strings.Join(quoted, " OR ") + "]"}, true
}

// GeoRadius renders "_geoRadius(lat, lng, meters)".
func GeoRadius(p geo.Point, meters float64) Expression {
	return Expression{text: "_geoRadius(" + FormatNumber(p.Lat) + ", " +
		FormatNumber(p.Lng) + ", " + FormatNumber(meters) + ")"}
}

// SortByDistance renders the ascending distance sort rule for p.
func SortByDistance(p geo.Point) string {
	return "_geoPoint(" + FormatNumber(p.Lat) + ", " + FormatNumber(p.Lng) + "):asc"
}

// Quote wraps v in single quotes, escaping backslashes and quotes.
func Quote(v string) string {
	var b strings.Builder
	b.Grow(len(v) + 2)
	b.WriteByte('\'')
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c == '\'' || c == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	b.WriteByte('\'')
	return b.String()
}

// ParseNumber parses a finite float. NaN and infinities are rejected.
func ParseNumber(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// FormatNumber renders v in the shortest form that round-trips ("4.50" -> "4.5").
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Strings converts expressions to their text form.
func Strings(exprs []Expression) []string {
	out := make([]string, len(exprs))
	for i, e := range exprs {
		out[i] = e.text
	}
	return out
}
