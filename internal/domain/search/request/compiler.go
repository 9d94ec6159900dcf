package request

import (
	"strconv"
	"strings"

	"github.com/kopimap/kopimap-api/internal/domain/geo"
	"github.com/kopimap/kopimap-api/internal/domain/search/filter"
	"github.com/kopimap/kopimap-api/internal/domain/search/params"
	"github.com/kopimap/kopimap-api/internal/domain/search/policy"
)

// Compiler turns query parameters into a Compiled search. It holds only
// immutable configuration and is safe for concurrent use.
type Compiler struct {
	policy      policy.Policy
	defaultHits int
	maxHits     int
}

// NewCompiler creates a compiler that admits attribute filters through p.
func NewCompiler(p policy.Policy) *Compiler {
	return &Compiler{
		policy:      p,
		defaultHits: DefaultHitsPerPage,
		maxHits:     MaxHitsPerPage,
	}
}

// WithPagination overrides the default and maximum page size.
// Non-positive values keep the built-in defaults.
func (c *Compiler) WithPagination(defaultHits, maxHits int) *Compiler {
	if maxHits > 0 {
		c.maxHits = maxHits
	}
	if defaultHits > 0 {
		c.defaultHits = defaultHits
	}
	if c.defaultHits > c.maxHits {
		c.defaultHits = c.maxHits
	}
	return c
}

// Policy returns the attribute policy in use.
func (c *Compiler) Policy() policy.Policy { return c.policy }

// Compile builds the search. It never fails: unparseable values drop the
// filter they would have produced.
func (c *Compiler) Compile(ps params.Set) Compiled {
	term := strings.TrimSpace(ps.Value(ParamQuery))

	exprs := make([]filter.Expression, 0, 4)
	if v, ok := firstNumber(ps, ParamMinRating, ParamMinRatingLegacy); ok {
		exprs = append(exprs, filter.AtLeast(AttrRating, v))
	}
	if v, ok := firstInt(ps, ParamMinReviews, ParamMinReviewsLegacy); ok {
		exprs = append(exprs, filter.AtLeast(AttrTotalReviews, float64(v)))
	}

	for _, key := range ps.Keys() {
		if IsReserved(key) {
			continue
		}
		if len(exprs) >= filter.MaxExpressions {
			break
		}
		if e, ok := c.attributeFilter(key, ps.Value(key)); ok {
			exprs = append(exprs, e)
		}
	}

	var sortRules []string
	if p, ok := point(ps); ok {
		sortRules = []string{filter.SortByDistance(p)}
		// A hard radius cutoff combined with text relevance tends to empty
		// the result set, so the radius only applies to browse queries.
		if term == "" {
			if r, ok := filter.ParseNumber(ps.Value(ParamRadius)); ok && geo.ValidRadius(r) {
				exprs = append(exprs, filter.GeoRadius(p, r))
			}
		}
	}

	var attrs []string
	if ps.Value(ParamIncludeDetails) != "true" {
		attrs = MinimalAttributes()
	}

	page, hits := c.pagination(ps)

	return Compiled{
		term:                 term,
		filters:              exprs,
		sort:                 sortRules,
		limit:                hits,
		offset:               (page - 1) * hits,
		page:                 page,
		hitsPerPage:          hits,
		attributesToRetrieve: attrs,
	}
}

func (c *Compiler) attributeFilter(key, raw string) (filter.Expression, bool) {
	if !c.policy.Allows(key) {
		return filter.Expression{}, false
	}

	if n, ok := filter.ParseNumber(raw); ok {
		if _, ok := c.policy.Normalize(key, raw); !ok {
			return filter.Expression{}, false
		}
		return filter.EqualNumber(key, n), true
	}

	if strings.Contains(raw, ",") {
		parts := strings.Split(raw, ",")
		values := make([]string, 0, len(parts))
		seen := make(map[string]struct{}, len(parts))
		for _, part := range parts {
			v, ok := c.policy.Normalize(key, part)
			if !ok {
				continue
			}
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			values = append(values, v)
			if len(values) == filter.MaxAnyOfValues {
				break
			}
		}
		return filter.AnyOf(key, values)
	}

	v, ok := c.policy.Normalize(key, raw)
	if !ok {
		return filter.Expression{}, false
	}
	return filter.EqualString(key, v), true
}

func (c *Compiler) pagination(ps params.Set) (page, hits int) {
	page = 1
	if n, err := strconv.Atoi(strings.TrimSpace(ps.Value(ParamPage))); err == nil && n > 1 {
		page = min(n, MaxPage)
	}
	hits = c.defaultHits
	if n, err := strconv.Atoi(strings.TrimSpace(ps.Value(ParamHitsPerPage))); err == nil && n > 0 {
		hits = min(n, c.maxHits)
	}
	return page, hits
}

func point(ps params.Set) (geo.Point, bool) {
	lat, ok := filter.ParseNumber(ps.Value(ParamLat))
	if !ok {
		return geo.Point{}, false
	}
	lng, ok := filter.ParseNumber(ps.Value(ParamLng))
	if !ok {
		return geo.Point{}, false
	}
	return geo.NewPoint(lat, lng)
}

func firstNumber(ps params.Set, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := filter.ParseNumber(ps.Value(k)); ok {
			return v, true
		}
	}
	return 0, false
}

func firstInt(ps params.Set, keys ...string) (int64, bool) {
	for _, k := range keys {
		if n, err := strconv.ParseInt(strings.TrimSpace(ps.Value(k)), 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}
