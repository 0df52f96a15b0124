package learning

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/derek809/mailtriage/internal/storage"
)

var fixedNow = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

const tenWordDraft = "hi sam the meeting works for me on thursday afternoon"

func newLoopStore(t *testing.T) *storage.MemoryStorage {
	t.Helper()
	store := storage.NewMemoryStorage()
	store.SetClock(func() time.Time { return fixedNow })

	ctx := context.Background()
	require.NoError(t, store.UpsertPattern(ctx, storage.Pattern{
		Name:        "meeting_request",
		Keywords:    []string{"meeting"},
		UsageCount:  4,
		SuccessRate: 75,
		TemplateID:  "meeting_response",
	}))
	require.NoError(t, store.UpsertTemplate(ctx, storage.Template{
		ID:          "meeting_response",
		Name:        "Meeting Response",
		Body:        "Hi {sender_first_name}",
		UsageCount:  1,
		SuccessRate: 100,
	}))
	return store
}

func createDraft(t *testing.T, store storage.Storage) string {
	t.Helper()
	id, err := store.CreateDraft(context.Background(), storage.DraftRecord{
		SourceText:     "can we set up a meeting",
		MatchedPattern: "meeting_request",
		TemplateID:     "meeting_response",
		SenderEmail:    "Sam@Example.com",
		SenderName:     "Sam Lee",
		DraftText:      tenWordDraft,
		Confidence:     70,
	})
	require.NoError(t, err)
	return id
}

// TestRecordSent_UpdatesSuccessRates follows the documented 75% -> 75% -> 60% sequence.
func TestRecordSent_UpdatesSuccessRates(t *testing.T) {
	ctx := context.Background()
	store := newLoopStore(t)
	loop := NewLoop(store, WithClock(func() time.Time { return fixedNow }))
	defer loop.Close()

	id := createDraft(t, store)
	res, err := loop.RecordSent(ctx, id, "hi sam the meeting works for us on friday afternoon")
	require.NoError(t, err)

	assert.Equal(t, 20.0, res.EditPercentage)
	assert.Equal(t, storage.OutcomeGood, res.Outcome)
	assert.Equal(t, "meeting_request", res.PatternName)
	assert.False(t, res.Queued)
	assert.Empty(t, res.Warnings)

	p, err := store.GetPattern(ctx, "meeting_request")
	require.NoError(t, err)
	assert.Equal(t, 75, p.SuccessRate)

	// The next draft for the pattern bumps usage to 5 and is discarded.
	_, err = store.UpdatePattern(ctx, "meeting_request", func(p *storage.Pattern) error {
		p.UsageCount++
		return nil
	})
	require.NoError(t, err)

	id2 := createDraft(t, store)
	res, err = loop.RecordSent(ctx, id2, "")
	require.NoError(t, err)
	assert.Equal(t, 100.0, res.EditPercentage)
	assert.Equal(t, storage.OutcomeMajorFailure, res.Outcome)

	p, err = store.GetPattern(ctx, "meeting_request")
	require.NoError(t, err)
	assert.Equal(t, 60, p.SuccessRate)

	tmpl, err := store.GetTemplate(ctx, "meeting_response")
	require.NoError(t, err)
	assert.Equal(t, 0, tmpl.SuccessRate)
}

func TestRecordSent_PersistsScore(t *testing.T) {
	ctx := context.Background()
	store := newLoopStore(t)
	loop := NewLoop(store)

	id := createDraft(t, store)
	_, err := loop.RecordSent(ctx, id, tenWordDraft)
	require.NoError(t, err)

	rec, err := store.GetDraft(ctx, id)
	require.NoError(t, err)
	assert.True(t, rec.Sent)
	require.NotNil(t, rec.FinalText)
	assert.Equal(t, tenWordDraft, *rec.FinalText)
	require.NotNil(t, rec.EditPercentage)
	assert.Equal(t, 0.0, *rec.EditPercentage)
	assert.Equal(t, storage.OutcomeSuccess, rec.Outcome)
}

func TestRecordSent_ScoresOnce(t *testing.T) {
	ctx := context.Background()
	store := newLoopStore(t)
	loop := NewLoop(store)

	id := createDraft(t, store)
	_, err := loop.RecordSent(ctx, id, tenWordDraft)
	require.NoError(t, err)

	_, err = loop.RecordSent(ctx, id, "something else entirely")
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	p, err := store.GetPattern(ctx, "meeting_request")
	require.NoError(t, err)
	assert.Equal(t, 75, p.SuccessRate, "the rejected second call must not touch the rate")
}

func TestRecordSent_UnknownDraft(t *testing.T) {
	loop := NewLoop(storage.NewMemoryStorage())

	_, err := loop.RecordSent(context.Background(), "missing", "text")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestRecordSent_CreatesContact(t *testing.T) {
	ctx := context.Background()
	store := newLoopStore(t)
	loop := NewLoop(store, WithClock(func() time.Time { return fixedNow }))

	id := createDraft(t, store)
	_, err := loop.RecordSent(ctx, id, "Dear Sam, thank you for the invitation. Thursday afternoon works well for our team. Kind regards")
	require.NoError(t, err)

	c, err := store.GetContact(ctx, "sam@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Sam Lee", c.Name)
	assert.Equal(t, 1, c.InteractionCount)
	assert.Equal(t, []string{"meeting_request"}, c.CommonTopics)
	assert.Equal(t, ToneFormal, c.PreferredTone)
	assert.True(t, c.LastInteraction.Equal(fixedNow))

	phrases, err := store.ListPhrases(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, phrases)
	assert.Equal(t, "thank you for", phrases[0].Phrase)
	assert.Equal(t, "meeting_request", phrases[0].Context)
}

// failingStore breaks one advisory dependency after the score is stored.
type failingStore struct {
	*storage.MemoryStorage
	failMarkScored bool
}

func (f *failingStore) UpdatePattern(ctx context.Context, name string, fn func(*storage.Pattern) error) (*storage.Pattern, error) {
	return nil, &storage.UnavailableError{Op: "update pattern", Err: errors.New("disk full")}
}

func (f *failingStore) MarkScored(ctx context.Context, id, finalText string, editPct float64, outcome storage.Outcome) error {
	if f.failMarkScored {
		return &storage.UnavailableError{Op: "mark scored"}
	}
	return f.MemoryStorage.MarkScored(ctx, id, finalText, editPct, outcome)
}

// TestRecordSent_AdvisoryFailureIsolated checks a failing success-rate update
// is logged and reported as a warning while the score and other steps stand.
func TestRecordSent_AdvisoryFailureIsolated(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{MemoryStorage: newLoopStore(t)}
	core, logs := observer.New(zapcore.WarnLevel)
	loop := NewLoop(store, WithLogger(zap.New(core)))

	id := createDraft(t, store)
	res, err := loop.RecordSent(ctx, id, tenWordDraft)
	require.NoError(t, err)

	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], StepPatternRate)

	entries := logs.FilterMessage("learning step failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, StepPatternRate, entries[0].ContextMap()["step"])

	rec, err := store.GetDraft(ctx, id)
	require.NoError(t, err)
	assert.True(t, rec.Scored())

	tmpl, err := store.GetTemplate(ctx, "meeting_response")
	require.NoError(t, err)
	assert.Equal(t, 100, tmpl.SuccessRate)

	_, err = store.GetContact(ctx, "sam@example.com")
	assert.NoError(t, err)
}

func TestRecordSent_ScoreFailurePropagates(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{MemoryStorage: newLoopStore(t), failMarkScored: true}
	loop := NewLoop(store)

	id := createDraft(t, store)
	_, err := loop.RecordSent(ctx, id, tenWordDraft)
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrStoreUnavailable))

	_, err = store.GetContact(ctx, "sam@example.com")
	assert.True(t, errors.Is(err, storage.ErrNotFound), "no advisory step runs when scoring fails")
}

type recordingIndexer struct {
	mu      sync.Mutex
	ids     []string
	records []storage.DraftRecord
}

func (r *recordingIndexer) IndexReply(rec storage.DraftRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, rec.ID)
	r.records = append(r.records, rec)
	return nil
}

// TestRecordSent_UsesStoredScoreTime checks the contact and reply index carry
// the scored_at the store wrote, not the loop's own clock.
func TestRecordSent_UsesStoredScoreTime(t *testing.T) {
	ctx := context.Background()
	store := newLoopStore(t)
	idx := &recordingIndexer{}
	loopNow := fixedNow.Add(3 * time.Hour)
	loop := NewLoop(store, WithIndexer(idx), WithClock(func() time.Time { return loopNow }))

	id := createDraft(t, store)
	_, err := loop.RecordSent(ctx, id, tenWordDraft)
	require.NoError(t, err)

	rec, err := store.GetDraft(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, rec.ScoredAt)
	assert.True(t, rec.ScoredAt.Equal(fixedNow))

	c, err := store.GetContact(ctx, "sam@example.com")
	require.NoError(t, err)
	assert.True(t, c.LastInteraction.Equal(fixedNow), "last interaction %v", c.LastInteraction)

	require.Len(t, idx.records, 1)
	require.NotNil(t, idx.records[0].ScoredAt)
	assert.True(t, idx.records[0].ScoredAt.Equal(fixedNow))
	assert.Equal(t, storage.OutcomeSuccess, idx.records[0].Outcome)
}

func TestRecordSent_Async(t *testing.T) {
	ctx := context.Background()
	store := newLoopStore(t)
	idx := &recordingIndexer{}
	loop := NewLoop(store, WithAsync(4), WithIndexer(idx))

	id := createDraft(t, store)
	res, err := loop.RecordSent(ctx, id, tenWordDraft)
	require.NoError(t, err)
	assert.True(t, res.Queued)

	loop.Close()

	p, err := store.GetPattern(ctx, "meeting_request")
	require.NoError(t, err)
	assert.Equal(t, 75, p.SuccessRate)

	idx.mu.Lock()
	defer idx.mu.Unlock()
	assert.Equal(t, []string{id}, idx.ids)
}

func TestRecordSent_NoPatternUsesGeneralContext(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	loop := NewLoop(store)

	id, err := store.CreateDraft(ctx, storage.DraftRecord{
		SourceText: "quick question",
		DraftText:  "",
	})
	require.NoError(t, err)

	res, err := loop.RecordSent(ctx, id, "Thanks for reaching out, will do.")
	require.NoError(t, err)
	assert.Equal(t, storage.OutcomeFailure, res.Outcome)
	assert.Empty(t, res.Warnings)

	phrases, err := store.ListPhrases(ctx)
	require.NoError(t, err)
	require.Len(t, phrases, 1)
	assert.Equal(t, "general", phrases[0].Context)
}

func TestAddTopic(t *testing.T) {
	topics := []string{"a", "b", "c"}
	assert.Equal(t, []string{"a", "c", "b"}, addTopic(topics, "b"))

	var many []string
	for i := 0; i < maxTopics; i++ {
		many = append(many, string(rune('a'+i)))
	}
	got := addTopic(many, "z")
	assert.Len(t, got, maxTopics)
	assert.Equal(t, "z", got[len(got)-1])
	assert.Equal(t, "b", got[0])
}
