package triage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/derek809/mailtriage/internal/confidence"
	"github.com/derek809/mailtriage/internal/logging"
	"github.com/derek809/mailtriage/internal/matcher"
	"github.com/derek809/mailtriage/internal/metrics"
	"github.com/derek809/mailtriage/internal/search"
	"github.com/derek809/mailtriage/internal/storage"
	"github.com/derek809/mailtriage/internal/template"
)

// DefaultPace is the delay between batch items.
const DefaultPace = 1500 * time.Millisecond

const similarLimit = 3

// Pipeline drafts replies for inbound messages.
type Pipeline struct {
	store    storage.Storage
	logger   *zap.Logger
	metrics  *metrics.Metrics
	enricher Enricher
	drafter  Drafter
	similar  SimilarFinder
	values   map[string]string
	pace     time.Duration
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

func WithEnricher(e Enricher) Option {
	return func(p *Pipeline) { p.enricher = e }
}

func WithDrafter(d Drafter) Option {
	return func(p *Pipeline) { p.drafter = d }
}

func WithSimilar(s SimilarFinder) Option {
	return func(p *Pipeline) { p.similar = s }
}

// WithPace sets the delay between batch items; 0 disables pacing.
func WithPace(d time.Duration) Option {
	return func(p *Pipeline) { p.pace = d }
}

// WithTemplateValues sets values for template variables not derived from the message.
func WithTemplateValues(v map[string]string) Option {
	return func(p *Pipeline) { p.values = v }
}

// New creates a pipeline over store. Wrap store with storage.WithFallback to
// keep drafting from the built-in library when the database is down.
func New(store storage.Storage, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:  store,
		logger: zap.NewNop(),
		pace:   DefaultPace,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Draft runs one message through match, score, fill and record.
//
// Only validation and a rejected CreateDraft are fatal. An unavailable store
// returns the draft unrecorded. Usage increments, contact lookup, enrichment,
// similar-reply search and the Drafter degrade to warnings.
func (p *Pipeline) Draft(ctx context.Context, msg Message, instruction string) (*Draft, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	patterns, err := p.store.ListPatterns(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list patterns: %w", err)
	}

	sourceText := matcher.BuildText(msg.Subject, msg.Body, instruction)
	match := matcher.Match(sourceText, patterns)

	templateID := ""
	if match != nil {
		templateID = p.selectPattern(ctx, match.PatternName, patterns)
	}

	senderKnown := p.senderKnown(ctx, msg.SenderEmail)
	aux := p.enrich(ctx, msg, match)

	score := confidence.Score(match, senderKnown, len(aux) > 0)
	policy := confidence.PolicyFor(score)

	d := &Draft{
		Match:        match,
		Confidence:   score,
		Policy:       policy,
		SenderKnown:  senderKnown,
		AuxDataFound: len(aux) > 0,
	}

	filled := ""
	if tmpl := p.selectTemplate(ctx, templateID); tmpl != nil {
		values := p.templateValues(msg, aux)
		filled = template.Fill(tmpl.Body, values)
		d.TemplateID = tmpl.ID
		d.Attachments = tmpl.Attachments
		d.MissingVariables = template.Missing(tmpl.Body, values)
	}

	d.Similar = p.findSimilar(msg, match)

	if policy.Drafts() {
		d.Text = p.compose(ctx, DraftRequest{
			Message:     msg,
			Instruction: instruction,
			Match:       match,
			Confidence:  score,
			Filled:      filled,
			Similar:     d.Similar,
		})
	}

	id, err := p.store.CreateDraft(ctx, storage.DraftRecord{
		SourceText:     sourceText,
		MatchedPattern: d.PatternName(),
		TemplateID:     d.TemplateID,
		SenderEmail:    msg.SenderEmail,
		SenderName:     msg.SenderName,
		DraftText:      d.Text,
		Confidence:     score,
	})
	switch {
	case errors.Is(err, storage.ErrStoreUnavailable):
		p.metrics.DraftNotRecorded()
		p.logger.Warn("draft not recorded, store unavailable",
			zap.String("pattern", d.PatternName()),
			logging.Email("sender", msg.SenderEmail),
			zap.Error(err),
		)
	case err != nil:
		return nil, fmt.Errorf("failed to record draft: %w", err)
	default:
		d.ID = id
		d.Recorded = true
	}

	p.metrics.ObserveDraft(string(policy), d.PatternName(), score)
	p.logger.Info("draft created",
		zap.String("draft_id", id),
		zap.String("pattern", d.PatternName()),
		zap.Int("confidence", score),
		zap.String("policy", string(policy)),
		logging.Email("sender", msg.SenderEmail),
	)

	return d, nil
}

// selectPattern bumps the matched pattern's usage and returns its template id.
func (p *Pipeline) selectPattern(ctx context.Context, name string, listed []storage.Pattern) string {
	updated, err := p.store.UpdatePattern(ctx, name, func(pt *storage.Pattern) error {
		pt.UsageCount++
		return nil
	})
	if err == nil {
		return updated.TemplateID
	}

	p.logger.Warn("failed to record pattern usage", zap.String("pattern", name), zap.Error(err))
	for _, pt := range listed {
		if pt.Name == name {
			return pt.TemplateID
		}
	}
	return ""
}

// selectTemplate bumps the template's usage and returns it, falling back to
// a plain read when the increment fails.
func (p *Pipeline) selectTemplate(ctx context.Context, id string) *storage.Template {
	if id == "" {
		return nil
	}

	tmpl, err := p.store.UpdateTemplate(ctx, id, func(t *storage.Template) error {
		t.UsageCount++
		return nil
	})
	if err == nil {
		return tmpl
	}
	p.logger.Warn("failed to record template usage", zap.String("template", id), zap.Error(err))

	tmpl, err = p.store.GetTemplate(ctx, id)
	if err != nil {
		p.logger.Warn("template unavailable", zap.String("template", id), zap.Error(err))
		return nil
	}
	return tmpl
}

func (p *Pipeline) senderKnown(ctx context.Context, email string) bool {
	_, err := p.store.GetContact(ctx, email)
	switch {
	case err == nil:
		return true
	case errors.Is(err, storage.ErrNotFound):
		return false
	default:
		p.logger.Warn("contact lookup failed", logging.Email("sender", email), zap.Error(err))
		return false
	}
}

func (p *Pipeline) enrich(ctx context.Context, msg Message, match *matcher.MatchResult) map[string]string {
	if p.enricher == nil {
		return nil
	}
	values, err := p.enricher.Enrich(ctx, msg, match)
	if err != nil {
		p.logger.Warn("enrichment failed", zap.Error(err))
		return nil
	}
	return values
}

func (p *Pipeline) findSimilar(msg Message, match *matcher.MatchResult) []search.Match {
	if p.similar == nil {
		return nil
	}

	q := search.Query{
		Text:     msg.Subject + " " + msg.Body,
		Outcomes: []string{string(storage.OutcomeSuccess), string(storage.OutcomeGood)},
		Limit:    similarLimit,
	}
	if match != nil {
		q.Pattern = match.PatternName
	}

	found, err := p.similar.Similar(q)
	if err != nil {
		p.logger.Warn("similar reply lookup failed", zap.Error(err))
		return nil
	}
	return found
}

// compose asks the Drafter for a body and falls back to the filled template.
func (p *Pipeline) compose(ctx context.Context, req DraftRequest) string {
	if p.drafter == nil {
		return req.Filled
	}
	text, err := p.drafter.Compose(ctx, req)
	if err != nil {
		p.logger.Warn("drafter failed, using template", zap.Error(err))
		return req.Filled
	}
	return text
}

// templateValues layers configured defaults, message fields and enrichment values.
func (p *Pipeline) templateValues(msg Message, aux map[string]string) map[string]string {
	values := make(map[string]string, len(p.values)+len(aux)+5)
	for k, v := range p.values {
		values[k] = v
	}

	values["sender_name"] = msg.SenderName
	values["sender_first_name"] = msg.FirstName()
	values["sender_email"] = msg.SenderEmail
	values["subject"] = msg.Subject
	if !msg.Date.IsZero() {
		values["date"] = msg.Date.Format("January 2, 2006")
	}

	for k, v := range aux {
		values[k] = v
	}
	return values
}

// Item is one entry of a batch.
type Item struct {
	Message     Message `json:"message" yaml:"message"`
	Instruction string  `json:"instruction,omitempty" yaml:"instruction,omitempty"`
}

// BatchResult pairs a batch item with its outcome.
type BatchResult struct {
	Index int    `json:"index"`
	Draft *Draft `json:"draft,omitempty"`
	Err   error  `json:"-"`
}

// DraftBatch drafts items one at a time, waiting the configured pace between
// them. An item's failure is recorded in its result and the batch goes on;
// cancelling ctx stops the batch and returns the results so far.
func (p *Pipeline) DraftBatch(ctx context.Context, items []Item) ([]BatchResult, error) {
	limit := rate.Inf
	if p.pace > 0 {
		limit = rate.Every(p.pace)
	}
	limiter := rate.NewLimiter(limit, 1)

	results := make([]BatchResult, 0, len(items))
	for i, item := range items {
		if err := limiter.Wait(ctx); err != nil {
			return results, err
		}

		d, err := p.Draft(ctx, item.Message, item.Instruction)
		if err != nil {
			p.logger.Warn("batch item failed", zap.Int("index", i), zap.Error(err))
		}
		results = append(results, BatchResult{Index: i, Draft: d, Err: err})
	}

	return results, nil
}
