// Package kopimap embeds the kopimap cafe search core in a Go program,
// talking to Meilisearch directly instead of going through the HTTP API.
//
// Query parameters use the same vocabulary as GET /api/search:
//
//	client, _ := kopimap.New(ctx,
//	    kopimap.WithMeilisearch("http://localhost:7700", key),
//	    kopimap.WithRateLimit(time.Minute, 100),
//	)
//	defer client.Close()
//
//	q := url.Values{"q": {"latte"}, "wifi": {"true"}, "lat": {"3.14"}, "lng": {"101.69"}}
//	page, err := client.Search(ctx, "batch-job", q)
//	if d, ok := kopimap.RetryAfter(err); ok {
//	    time.Sleep(d)
//	}
//
// Cafe documents are plain maps; updates merge fields into the stored document:
//
//	_ = client.UpdateCafe(ctx, map[string]any{"place_id": "ChIJ...", "wifi": true})
package kopimap
