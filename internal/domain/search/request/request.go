package request

import (
	"github.com/kopimap/kopimap-api/internal/domain/search/filter"
)

// Reserved query parameters. They are consumed by dedicated logic and never
// become generic attribute filters.
const (
	ParamQuery          = "q"
	ParamPage           = "page"
	ParamHitsPerPage    = "hitsPerPage"
	ParamLat            = "lat"
	ParamLng            = "lng"
	ParamRadius         = "radius"
	ParamMinRating      = "minRating"
	ParamMinReviews     = "minReviews"
	ParamIncludeDetails = "isIncludeDetails"

	// Legacy spellings still sent by older clients.
	ParamMinRatingLegacy  = "gmaps_rating"
	ParamMinReviewsLegacy = "gmaps_total_reviews"
)

// Indexed cafe attributes the compiler refers to.
const (
	AttrID           = "id"
	AttrName         = "name"
	AttrGeo          = "_geo"
	AttrRating       = "gmaps_rating"
	AttrTotalReviews = "gmaps_total_reviews"
)

// Pagination limits.
const (
	DefaultHitsPerPage = 20
	MaxHitsPerPage     = 100
	MaxPage            = 10_000
)

var reserved = map[string]struct{}{
	ParamQuery:            {},
	ParamPage:             {},
	ParamHitsPerPage:      {},
	ParamLat:              {},
	ParamLng:              {},
	ParamRadius:           {},
	ParamMinRating:        {},
	ParamMinReviews:       {},
	ParamIncludeDetails:   {},
	ParamMinRatingLegacy:  {},
	ParamMinReviewsLegacy: {},
}

// IsReserved reports whether key is a structural parameter.
func IsReserved(key string) bool {
	_, ok := reserved[key]
	return ok
}

// MinimalAttributes is the projection used unless details are requested.
func MinimalAttributes() []string {
	return []string{AttrID, AttrRating, AttrGeo, AttrName}
}

// Compiled is a search ready to hand to the backend.
type Compiled struct {
	term                 string
	filters              []filter.Expression
	sort                 []string
	limit                int
	offset               int
	page                 int
	hitsPerPage          int
	attributesToRetrieve []string
}

// Term returns the free-text search term ("" when absent).
func (c *Compiled) Term() string { return c.term }

// Filters returns the AND-combined filter expressions.
func (c *Compiled) Filters() []filter.Expression { return c.filters }

// FilterStrings returns the filters in backend grammar.
func (c *Compiled) FilterStrings() []string { return filter.Strings(c.filters) }

// Sort returns sort rules (nil when unsorted).
func (c *Compiled) Sort() []string { return c.sort }

// Limit returns the page size sent to the backend.
func (c *Compiled) Limit() int { return c.limit }

// Offset returns the number of hits to skip.
func (c *Compiled) Offset() int { return c.offset }

// Page returns the 1-based page number.
func (c *Compiled) Page() int { return c.page }

// HitsPerPage returns the effective page size.
func (c *Compiled) HitsPerPage() int { return c.hitsPerPage }

// AttributesToRetrieve returns the projection (nil means all fields).
func (c *Compiled) AttributesToRetrieve() []string { return c.attributesToRetrieve }
