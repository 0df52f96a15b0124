package triage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/derek809/mailtriage/internal/confidence"
	"github.com/derek809/mailtriage/internal/matcher"
	"github.com/derek809/mailtriage/internal/search"
	"github.com/derek809/mailtriage/internal/storage"
)

var w9Message = Message{
	Subject:     "W9 request",
	Body:        "Could you send your W9 and wiring instructions?",
	SenderEmail: "ana@vendor.example",
	SenderName:  "Ana Ruiz",
}

func seededStore(t *testing.T) *storage.MemoryStorage {
	t.Helper()
	store := storage.NewMemoryStorage()
	_, err := storage.SeedDefaults(context.Background(), store)
	require.NoError(t, err)
	return store
}

func wiringEnricher() Enricher {
	return EnricherFunc(func(context.Context, Message, *matcher.MatchResult) (map[string]string, error) {
		return map[string]string{"wiring_details": "ABA 021000021 / Acct 12345"}, nil
	})
}

func TestDraft_W9(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t)
	p := New(store,
		WithEnricher(wiringEnricher()),
		WithTemplateValues(map[string]string{"signature": "Derek"}),
	)

	d, err := p.Draft(ctx, w9Message, "")
	require.NoError(t, err)

	require.NotNil(t, d.Match)
	assert.Equal(t, "w9_wiring_request", d.Match.PatternName)
	assert.Equal(t, []string{"w9", "wiring instructions"}, d.Match.MatchedKeywords)
	assert.False(t, d.SenderKnown)
	assert.True(t, d.AuxDataFound)
	assert.Equal(t, 75, d.Confidence) // 50 + 20 boost - 10 unknown sender + 15 aux
	assert.Equal(t, confidence.PolicyDraftFlagged, d.Policy)
	assert.Equal(t, "w9_response", d.TemplateID)
	assert.Equal(t, []string{"w9_form.pdf"}, d.Attachments)
	assert.Empty(t, d.MissingVariables)
	assert.Contains(t, d.Text, "Hi Ana,")
	assert.Contains(t, d.Text, "ABA 021000021 / Acct 12345")
	assert.Contains(t, d.Text, "Best,\nDerek")

	pt, err := store.GetPattern(ctx, "w9_wiring_request")
	require.NoError(t, err)
	assert.Equal(t, 1, pt.UsageCount)

	tmpl, err := store.GetTemplate(ctx, "w9_response")
	require.NoError(t, err)
	assert.Equal(t, 1, tmpl.UsageCount)

	assert.True(t, d.Recorded)
	rec, err := store.GetDraft(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "w9_wiring_request", rec.MatchedPattern)
	assert.Equal(t, "w9_response", rec.TemplateID)
	assert.Equal(t, d.Text, rec.DraftText)
	assert.Equal(t, 75, rec.Confidence)
	assert.Equal(t, "w9 request\ncould you send your w9 and wiring instructions?", rec.SourceText)
	assert.False(t, rec.Scored())
}

func TestDraft_KnownSenderAndMissingVariables(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t)
	require.NoError(t, store.UpsertContact(ctx, storage.Contact{Email: "ana@vendor.example", Name: "Ana"}))
	p := New(store)

	d, err := p.Draft(ctx, w9Message, "")
	require.NoError(t, err)

	assert.True(t, d.SenderKnown)
	assert.Equal(t, 80, d.Confidence) // 50 + 20 + 10
	assert.Equal(t, []string{"wiring_details", "signature"}, d.MissingVariables)
	assert.Contains(t, d.Text, "{wiring_details}")
}

func TestDraft_NoMatchGetsNoBody(t *testing.T) {
	ctx := context.Background()
	p := New(seededStore(t))

	d, err := p.Draft(ctx, Message{Subject: "hello", Body: "just saying hi", SenderEmail: "x@y.example"}, "")
	require.NoError(t, err)

	assert.Nil(t, d.Match)
	assert.Equal(t, 40, d.Confidence)
	assert.Equal(t, confidence.PolicySummaryOnly, d.Policy)
	assert.Empty(t, d.Text)
	assert.Empty(t, d.TemplateID)
	assert.Empty(t, d.PatternName())
}

func TestDraft_InstructionCountsTowardMatch(t *testing.T) {
	p := New(seededStore(t))

	d, err := p.Draft(context.Background(),
		Message{Subject: "quick one", Body: "see below", SenderEmail: "x@y.example"},
		"set up a meeting with them")
	require.NoError(t, err)
	require.NotNil(t, d.Match)
	assert.Equal(t, "meeting_request", d.Match.PatternName)
}

func TestDraft_Validation(t *testing.T) {
	p := New(seededStore(t))

	tests := []struct {
		name string
		msg  Message
	}{
		{"missing sender", Message{Subject: "W9"}},
		{"no content", Message{SenderEmail: "a@b.example", Subject: "  "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Draft(context.Background(), tt.msg, "")
			assert.True(t, errors.Is(err, storage.ErrValidation))
		})
	}
}

type fakeDrafter struct {
	got DraftRequest
	err error
}

func (f *fakeDrafter) Compose(_ context.Context, req DraftRequest) (string, error) {
	f.got = req
	if f.err != nil {
		return "", f.err
	}
	return "composed: " + req.Message.FirstName(), nil
}

type fakeSimilar struct {
	got search.Query
}

func (f *fakeSimilar) Similar(q search.Query) ([]search.Match, error) {
	f.got = q
	return []search.Match{{DraftID: "old", FinalText: "W9 attached."}}, nil
}

func TestDraft_Drafter(t *testing.T) {
	drafter := &fakeDrafter{}
	similar := &fakeSimilar{}
	p := New(seededStore(t), WithDrafter(drafter), WithSimilar(similar))

	d, err := p.Draft(context.Background(), w9Message, "reply politely")
	require.NoError(t, err)

	assert.Equal(t, "composed: Ana", d.Text)
	assert.Equal(t, "reply politely", drafter.got.Instruction)
	assert.Contains(t, drafter.got.Filled, "Attached is our W-9")
	require.Len(t, drafter.got.Similar, 1)
	assert.Equal(t, "w9_wiring_request", similar.got.Pattern)
	assert.Equal(t, []string{"success", "good"}, similar.got.Outcomes)
}

func TestDraft_DrafterFailureFallsBackToTemplate(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	p := New(seededStore(t),
		WithDrafter(&fakeDrafter{err: errors.New("model overloaded")}),
		WithLogger(zap.New(core)),
	)

	d, err := p.Draft(context.Background(), w9Message, "")
	require.NoError(t, err)
	assert.Contains(t, d.Text, "Attached is our W-9")
	assert.Equal(t, 1, logs.FilterMessage("drafter failed, using template").Len())
}

// counterlessStore refuses usage increments.
type counterlessStore struct {
	*storage.MemoryStorage
}

func (counterlessStore) UpdatePattern(context.Context, string, func(*storage.Pattern) error) (*storage.Pattern, error) {
	return nil, &storage.UnavailableError{Op: "update pattern"}
}

func (counterlessStore) UpdateTemplate(context.Context, string, func(*storage.Template) error) (*storage.Template, error) {
	return nil, &storage.UnavailableError{Op: "update template"}
}

func TestDraft_UsageFailureDegrades(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	store := counterlessStore{seededStore(t)}
	p := New(store, WithLogger(zap.New(core)))

	d, err := p.Draft(context.Background(), w9Message, "")
	require.NoError(t, err)
	assert.Equal(t, "w9_response", d.TemplateID)
	assert.NotEmpty(t, d.Text)
	assert.Equal(t, 1, logs.FilterMessage("failed to record pattern usage").Len())
	assert.Equal(t, 1, logs.FilterMessage("failed to record template usage").Len())
}

func TestDraft_StoreUnavailableReturnsUnrecordedDraft(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	var fallbacks []string
	disabled := storage.NewStorage(filepath.Join("/proc", "nope", "x.db"), nil)
	store := storage.WithFallback(disabled, nil, func(kind string) { fallbacks = append(fallbacks, kind) })
	p := New(store, WithLogger(zap.New(core)))

	d, err := p.Draft(context.Background(), w9Message, "")
	require.NoError(t, err)

	assert.Empty(t, d.ID)
	assert.False(t, d.Recorded)
	require.NotNil(t, d.Match)
	assert.Equal(t, "w9_wiring_request", d.Match.PatternName)
	assert.Equal(t, 60, d.Confidence) // 50 + 20 boost - 10 unknown sender
	assert.Equal(t, confidence.PolicyDraftReview, d.Policy)
	assert.Equal(t, "w9_response", d.TemplateID)
	assert.Contains(t, d.Text, "Attached is our W-9")
	assert.Contains(t, fallbacks, "patterns")
	assert.Equal(t, 1, logs.FilterMessage("draft not recorded, store unavailable").Len())
}

// rejectingStore refuses every draft record.
type rejectingStore struct {
	*storage.MemoryStorage
}

func (rejectingStore) CreateDraft(context.Context, storage.DraftRecord) (string, error) {
	return "", &storage.ValidationError{Field: "draft_text", Message: "too long"}
}

func TestDraft_RejectedRecordIsFatal(t *testing.T) {
	p := New(rejectingStore{seededStore(t)})

	d, err := p.Draft(context.Background(), w9Message, "")
	assert.Nil(t, d)
	assert.ErrorIs(t, err, storage.ErrValidation)
}

func TestDraftBatch_PacedAndIsolated(t *testing.T) {
	p := New(seededStore(t), WithPace(40*time.Millisecond))

	items := []Item{
		{Message: w9Message},
		{Message: Message{Subject: "no sender"}},
		{Message: Message{Subject: "meeting next week?", SenderEmail: "b@c.example"}},
	}

	start := time.Now()
	results, err := p.DraftBatch(context.Background(), items)
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.True(t, errors.Is(results[1].Err, storage.ErrValidation))
	assert.Nil(t, results[1].Draft)
	assert.NoError(t, results[2].Err)
	assert.Equal(t, "meeting_request", results[2].Draft.PatternName())
	assert.GreaterOrEqual(t, elapsed, 70*time.Millisecond)
}

func TestDraftBatch_Cancelled(t *testing.T) {
	p := New(seededStore(t), WithPace(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := p.DraftBatch(ctx, []Item{{Message: w9Message}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
}

func TestDraftBatch_StopsMidway(t *testing.T) {
	p := New(seededStore(t), WithPace(time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	results, err := p.DraftBatch(ctx, []Item{{Message: w9Message}, {Message: w9Message}})
	assert.Error(t, err)
	assert.Len(t, results, 1)
}

func TestMessageFirstName(t *testing.T) {
	assert.Equal(t, "Ana", Message{SenderName: "Ana Ruiz"}.FirstName())
	assert.Equal(t, "ana.ruiz", Message{SenderEmail: "ana.ruiz@vendor.example"}.FirstName())
}
