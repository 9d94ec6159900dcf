package result

// Hit is one projected cafe document returned by a search.
type Hit = map[string]any

// Page is one page of search hits.
type Page struct {
	hits             []Hit
	totalHits        int64
	page             int
	hitsPerPage      int
	processingTimeMs int64
}

// New creates a search result page. A nil hits slice is normalized to empty.
func New(hits []Hit, totalHits int64, page, hitsPerPage int, processingTimeMs int64) Page {
	if hits == nil {
		hits = []Hit{}
	}
	return Page{
		hits: hits, totalHits: totalHits,
		page: page, hitsPerPage: hitsPerPage,
		processingTimeMs: processingTimeMs,
	}
}

// Hits returns the documents on this page.
func (p *Page) Hits() []Hit { return p.hits }

// TotalHits returns the backend's estimate of all matches.
func (p *Page) TotalHits() int64 { return p.totalHits }

// Page returns the 1-based page number.
func (p *Page) Page() int { return p.page }

// HitsPerPage returns the page size.
func (p *Page) HitsPerPage() int { return p.hitsPerPage }

// ProcessingTimeMs returns the backend processing time.
func (p *Page) ProcessingTimeMs() int64 { return p.processingTimeMs }
