package search

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/index/scorch"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/derek809/mailtriage/internal/storage"
)

const defaultLimit = 10

var storedFields = []string{
	"source_text", "final_text", "pattern", "outcome",
	"sender_email", "edit_percentage", "scored_at",
}

// Indexer manages the reply-history index.
type Indexer struct {
	bleveIndex bleve.Index
	mu         sync.RWMutex
	indexPath  string
}

// NewIndexer creates an in-memory index.
func NewIndexer() (*Indexer, error) {
	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create bleve index: %w", err)
	}

	return &Indexer{bleveIndex: index}, nil
}

// NewIndexerWithPath opens the index at indexPath, creating it if needed.
func NewIndexerWithPath(indexPath string) (*Indexer, error) {
	if err := os.MkdirAll(filepath.Dir(indexPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	index, err := bleve.NewUsing(indexPath, buildIndexMapping(), scorch.Name, scorch.Name, nil)
	if err != nil {
		// Already exists: open it.
		index, err = bleve.Open(indexPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open/create index: %w", err)
		}
	}

	return &Indexer{
		bleveIndex: index,
		indexPath:  indexPath,
	}, nil
}

// buildIndexMapping creates the Bleve index mapping.
func buildIndexMapping() mapping.IndexMapping {
	replyMapping := bleve.NewDocumentMapping()

	replyMapping.AddFieldMappingsAt("source_text", bleve.NewTextFieldMapping())
	replyMapping.AddFieldMappingsAt("final_text", bleve.NewTextFieldMapping())

	// Exact-match filters.
	for _, field := range []string{"pattern", "outcome", "sender_email"} {
		kw := bleve.NewKeywordFieldMapping()
		kw.IncludeInAll = false
		replyMapping.AddFieldMappingsAt(field, kw)
	}

	pct := bleve.NewNumericFieldMapping()
	pct.IncludeInAll = false
	replyMapping.AddFieldMappingsAt("edit_percentage", pct)

	scoredAt := bleve.NewTextFieldMapping()
	scoredAt.Index = false
	scoredAt.IncludeInAll = false
	replyMapping.AddFieldMappingsAt("scored_at", scoredAt)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = replyMapping
	return indexMapping
}

func toDocument(rec storage.DraftRecord) (replyDocument, bool) {
	if !rec.Scored() || rec.FinalText == nil {
		return replyDocument{}, false
	}

	doc := replyDocument{
		SourceText:  rec.SourceText,
		FinalText:   *rec.FinalText,
		Pattern:     rec.MatchedPattern,
		Outcome:     string(rec.Outcome),
		SenderEmail: rec.SenderEmail,
	}
	if rec.EditPercentage != nil {
		doc.EditPercentage = *rec.EditPercentage
	}
	if rec.ScoredAt != nil {
		doc.ScoredAt = rec.ScoredAt.UTC().Format(time.RFC3339Nano)
	}
	return doc, true
}

// IndexReply adds or replaces one scored draft. Unscored drafts are ignored.
func (i *Indexer) IndexReply(rec storage.DraftRecord) error {
	doc, ok := toDocument(rec)
	if !ok {
		return nil
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.bleveIndex.Index(rec.ID, doc.fields()); err != nil {
		return fmt.Errorf("failed to index reply %s: %w", rec.ID, err)
	}
	return nil
}

// IndexAll batch-indexes the scored drafts in recs and returns how many were indexed.
func (i *Indexer) IndexAll(recs []storage.DraftRecord) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	batch := i.bleveIndex.NewBatch()
	n := 0
	for _, rec := range recs {
		doc, ok := toDocument(rec)
		if !ok {
			continue
		}
		if err := batch.Index(rec.ID, doc.fields()); err != nil {
			return 0, fmt.Errorf("failed to index reply %s: %w", rec.ID, err)
		}
		n++
	}

	if err := i.bleveIndex.Batch(batch); err != nil {
		return 0, fmt.Errorf("failed to batch index replies: %w", err)
	}
	return n, nil
}

// Similar returns past replies whose message or reply text matches q.Text, best first.
func (i *Indexer) Similar(q Query) ([]Match, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	req := bleve.NewSearchRequestOptions(buildQuery(q), limit, 0, false)
	req.Fields = storedFields

	results, err := i.bleveIndex.Search(req)
	if err != nil {
		return nil, fmt.Errorf("bleve search failed: %w", err)
	}

	return convertBleveResults(results), nil
}

func buildQuery(q Query) query.Query {
	source := bleve.NewMatchQuery(q.Text)
	source.SetField("source_text")
	source.SetBoost(2)

	final := bleve.NewMatchQuery(q.Text)
	final.SetField("final_text")

	var text query.Query = bleve.NewDisjunctionQuery(source, final)
	if q.Pattern == "" && len(q.Outcomes) == 0 {
		return text
	}

	conjuncts := []query.Query{text}
	if q.Pattern != "" {
		tq := bleve.NewTermQuery(q.Pattern)
		tq.SetField("pattern")
		conjuncts = append(conjuncts, tq)
	}
	if len(q.Outcomes) > 0 {
		outcomes := make([]query.Query, 0, len(q.Outcomes))
		for _, o := range q.Outcomes {
			tq := bleve.NewTermQuery(o)
			tq.SetField("outcome")
			outcomes = append(outcomes, tq)
		}
		conjuncts = append(conjuncts, bleve.NewDisjunctionQuery(outcomes...))
	}
	return bleve.NewConjunctionQuery(conjuncts...)
}

func convertBleveResults(results *bleve.SearchResult) []Match {
	matches := make([]Match, 0, len(results.Hits))

	for _, hit := range results.Hits {
		m := Match{DraftID: hit.ID, Score: hit.Score}
		m.SourceText, _ = hit.Fields["source_text"].(string)
		m.FinalText, _ = hit.Fields["final_text"].(string)
		m.Pattern, _ = hit.Fields["pattern"].(string)
		m.Outcome, _ = hit.Fields["outcome"].(string)
		m.SenderEmail, _ = hit.Fields["sender_email"].(string)
		m.EditPercentage, _ = hit.Fields["edit_percentage"].(float64)
		if raw, ok := hit.Fields["scored_at"].(string); ok {
			m.ScoredAt, _ = time.Parse(time.RFC3339Nano, raw)
		}
		matches = append(matches, m)
	}

	return matches
}

// Delete removes a reply from the index.
func (i *Indexer) Delete(draftID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.bleveIndex.Delete(draftID)
}

// Count returns the number of indexed replies.
func (i *Indexer) Count() (uint64, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	docCount, err := i.bleveIndex.DocCount()
	if err != nil {
		return 0, fmt.Errorf("failed to get doc count: %w", err)
	}

	return docCount, nil
}

// Path returns the on-disk location, or "" for an in-memory index.
func (i *Indexer) Path() string {
	return i.indexPath
}

// Close closes the index and releases resources.
func (i *Indexer) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.bleveIndex != nil {
		return i.bleveIndex.Close()
	}

	return nil
}
