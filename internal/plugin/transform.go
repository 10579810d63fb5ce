package plugin

import (
	"fmt"
	"time"

	"github.com/ingestctl/ingestor/api/ingestion"
)

// DefaultTransformer is used whenever a source plugin type has no
// transformer registered. It is lenient about the raw item shape: a
// map with "id"/"content" keys is read directly, anything else is
// stringified into Content with a generated positional id.
func DefaultTransformer(raw []any, payload ingestion.Payload) []ingestion.IngestionRecord {
	fetchedAt, _ := payload["fetchedAt"].(time.Time)
	if fetchedAt.IsZero() {
		fetchedAt = time.Now()
	}

	out := make([]ingestion.IngestionRecord, 0, len(raw))
	for i, item := range raw {
		rec := ingestion.IngestionRecord{
			StatusCode: 200,
			FetchedAt:  fetchedAt,
		}
		switch v := item.(type) {
		case map[string]any:
			if id, ok := v["id"].(string); ok {
				rec.ID = id
			}
			if content, ok := v["content"].(string); ok {
				rec.Content = content
			}
			if url, ok := v["url"].(string); ok {
				rec.URL = url
			}
			rec.Metadata = v
		case string:
			rec.Content = v
		default:
			rec.Content = fmt.Sprintf("%v", v)
		}
		if rec.ID == "" {
			rec.ID = fmt.Sprintf("item-%d", i)
		}
		out = append(out, rec)
	}
	return out
}
