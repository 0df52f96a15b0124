package learning

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/derek809/mailtriage/internal/logging"
	"github.com/derek809/mailtriage/internal/metrics"
	"github.com/derek809/mailtriage/internal/storage"
)

// Advisory step names, used in logs, metrics and Result.Warnings.
const (
	StepPatternRate  = "pattern_success_rate"
	StepTemplateRate = "template_success_rate"
	StepPhrases      = "writing_style"
	StepContact      = "contact"
	StepReplyIndex   = "reply_index"
)

// maxTopics bounds the topics remembered per contact.
const maxTopics = 10

// ReplyIndexer receives every scored draft for later similarity search.
type ReplyIndexer interface {
	IndexReply(rec storage.DraftRecord) error
}

// Result reports what RecordSent decided.
type Result struct {
	DraftID        string          `json:"draft_id"`
	EditPercentage float64         `json:"edit_percentage"`
	Outcome        storage.Outcome `json:"outcome"`
	PatternName    string          `json:"pattern_name,omitempty"`
	TemplateID     string          `json:"template_id,omitempty"`

	// Queued is true when advisory learning was handed to the background tracker.
	Queued bool `json:"queued"`

	// Warnings lists advisory steps that failed when they ran inline.
	Warnings []string `json:"warnings,omitempty"`
}

// Loop is the learning loop over a Storage.
type Loop struct {
	store   storage.Storage
	indexer ReplyIndexer
	logger  *zap.Logger
	metrics *metrics.Metrics
	tracker *Tracker
	now     func() time.Time

	async     bool
	queueSize int
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loop) { l.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Loop) { l.metrics = m }
}

// WithIndexer indexes every scored reply.
func WithIndexer(idx ReplyIndexer) Option {
	return func(l *Loop) { l.indexer = idx }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Loop) { l.now = now }
}

// WithAsync runs advisory steps on a background tracker with the given queue size.
// Close must be called to drain it.
func WithAsync(queueSize int) Option {
	return func(l *Loop) {
		l.async = true
		l.queueSize = queueSize
	}
}

// NewLoop creates a learning loop.
func NewLoop(store storage.Storage, opts ...Option) *Loop {
	l := &Loop{
		store:  store,
		logger: zap.NewNop(),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(l)
	}
	if l.async {
		l.tracker = NewTracker(l.advise, l.queueSize, l.logger)
	}

	return l
}

// Close drains any background advisory work.
func (l *Loop) Close() {
	if l.tracker != nil {
		l.tracker.Stop()
	}
}

// RecordSent scores the sent reply for draftID and runs the learning steps.
//
// It fails with a NotFoundError when the draft is missing or already scored,
// and with an UnavailableError when the score cannot be persisted. Once the
// score is stored, later failures only produce warnings.
func (l *Loop) RecordSent(ctx context.Context, draftID, finalText string) (*Result, error) {
	rec, err := l.store.GetDraft(ctx, draftID)
	if err != nil {
		return nil, err
	}
	if rec.Scored() {
		return nil, &storage.NotFoundError{Kind: "unscored draft", Key: draftID}
	}

	pct, outcome := Evaluate(rec.DraftText, finalText)
	if err := l.store.MarkScored(ctx, draftID, finalText, pct, outcome); err != nil {
		return nil, fmt.Errorf("failed to record score: %w", err)
	}

	if scored, err := l.store.GetDraft(ctx, draftID); err == nil && scored.ScoredAt != nil {
		rec = scored
	} else {
		l.logger.Warn("failed to reload scored draft", zap.String("draft_id", draftID), zap.Error(err))
		now := l.now()
		rec.Sent = true
		rec.FinalText = &finalText
		rec.EditPercentage = &pct
		rec.Outcome = outcome
		rec.ScoredAt = &now
	}

	l.metrics.ObserveOutcome(string(outcome), pct)
	l.logger.Info("draft scored",
		zap.String("draft_id", draftID),
		zap.String("pattern", rec.MatchedPattern),
		zap.Float64("edit_percentage", pct),
		zap.String("outcome", string(outcome)),
	)

	res := &Result{
		DraftID:        draftID,
		EditPercentage: pct,
		Outcome:        outcome,
		PatternName:    rec.MatchedPattern,
		TemplateID:     rec.TemplateID,
	}

	obs := Observation{Record: *rec, FinalText: finalText, Outcome: outcome, ObservedAt: *rec.ScoredAt}
	if l.tracker != nil && l.tracker.Track(obs) {
		l.metrics.AdvisoryQueued()
		res.Queued = true
		return res, nil
	}

	res.Warnings = l.runAdvisory(ctx, obs)
	return res, nil
}

// advise adapts runAdvisory to the tracker's Handler signature.
func (l *Loop) advise(ctx context.Context, obs Observation) {
	l.runAdvisory(ctx, obs)
}

// runAdvisory runs every advisory step and returns the ones that failed.
func (l *Loop) runAdvisory(ctx context.Context, obs Observation) []string {
	steps := []struct {
		name string
		run  func(context.Context, Observation) error
	}{
		{StepPatternRate, l.updatePatternRate},
		{StepTemplateRate, l.updateTemplateRate},
		{StepPhrases, l.recordPhrases},
		{StepContact, l.updateContact},
		{StepReplyIndex, l.indexReply},
	}

	var warnings []string
	for _, step := range steps {
		if err := step.run(ctx, obs); err != nil {
			l.metrics.AdvisoryFailure(step.name)
			l.logger.Warn("learning step failed",
				zap.String("step", step.name),
				zap.String("draft_id", obs.Record.ID),
				zap.Error(err),
			)
			warnings = append(warnings, fmt.Sprintf("%s: %v", step.name, err))
		}
	}
	return warnings
}

func (l *Loop) updatePatternRate(ctx context.Context, obs Observation) error {
	if obs.Record.MatchedPattern == "" {
		return nil
	}
	_, err := l.store.UpdatePattern(ctx, obs.Record.MatchedPattern, func(p *storage.Pattern) error {
		p.SuccessRate = NextSuccessRate(p.SuccessRate, p.UsageCount, obs.Outcome.Counts())
		return nil
	})
	return err
}

func (l *Loop) updateTemplateRate(ctx context.Context, obs Observation) error {
	if obs.Record.TemplateID == "" {
		return nil
	}
	_, err := l.store.UpdateTemplate(ctx, obs.Record.TemplateID, func(t *storage.Template) error {
		t.SuccessRate = NextSuccessRate(t.SuccessRate, t.UsageCount, obs.Outcome.Counts())
		return nil
	})
	return err
}

func (l *Loop) recordPhrases(ctx context.Context, obs Observation) error {
	stored, err := l.store.ListPhrases(ctx)
	if err != nil {
		return err
	}

	known := make(map[string]bool, len(stored))
	for _, p := range stored {
		known[p.Phrase] = true
	}

	tag := obs.PhraseContext()
	for _, phrase := range ExtractPhrases(obs.FinalText, known) {
		if _, err := l.store.UpsertPhrase(ctx, phrase, tag); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loop) updateContact(ctx context.Context, obs Observation) error {
	email := storage.NormalizeEmail(obs.Record.SenderEmail)
	if email == "" {
		return nil
	}

	tone := InferTone(obs.FinalText)
	c, err := l.store.UpdateContact(ctx, email, func(c *storage.Contact) error {
		if c.Name == "" {
			c.Name = obs.Record.SenderName
		}
		c.InteractionCount++
		c.LastInteraction = obs.ObservedAt
		if obs.Record.MatchedPattern != "" {
			c.CommonTopics = addTopic(c.CommonTopics, obs.Record.MatchedPattern)
		}
		if tone != "" {
			c.PreferredTone = tone
		}
		return nil
	})
	if err != nil {
		return err
	}

	l.logger.Debug("contact updated",
		logging.Email("email", c.Email),
		zap.Int("interactions", c.InteractionCount),
		zap.String("tone", c.PreferredTone),
	)
	return nil
}

func (l *Loop) indexReply(_ context.Context, obs Observation) error {
	if l.indexer == nil {
		return nil
	}
	return l.indexer.IndexReply(obs.Record)
}

// addTopic moves topic to the end of topics, keeping at most maxTopics.
func addTopic(topics []string, topic string) []string {
	out := make([]string, 0, len(topics)+1)
	for _, t := range topics {
		if t != topic {
			out = append(out, t)
		}
	}
	out = append(out, topic)
	if len(out) > maxTopics {
		out = out[len(out)-maxTopics:]
	}
	return out
}
