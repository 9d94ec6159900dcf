package kopimap

import (
	"time"

	"github.com/kopimap/kopimap-api/internal/domain/search/result"
)

// SearchPage is one page of projected cafe documents.
type SearchPage struct {
	Hits           []map[string]any
	TotalHits      int64
	Page           int
	HitsPerPage    int
	ProcessingTime time.Duration
}

func pageFromResult(p *result.Page) SearchPage {
	return SearchPage{
		Hits:           p.Hits(),
		TotalHits:      p.TotalHits(),
		Page:           p.Page(),
		HitsPerPage:    p.HitsPerPage(),
		ProcessingTime: time.Duration(p.ProcessingTimeMs()) * time.Millisecond,
	}
}

// Pages returns the number of pages needed for TotalHits.
func (p SearchPage) Pages() int {
	if p.HitsPerPage <= 0 || p.TotalHits <= 0 {
		return 0
	}
	return int((p.TotalHits + int64(p.HitsPerPage) - 1) / int64(p.HitsPerPage))
}
