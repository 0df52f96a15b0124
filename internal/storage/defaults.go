package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// defaultPatterns is the bootstrap pattern library, used to seed a fresh
// database and as the fallback whenever the pattern store is unreachable.
var defaultPatterns = []Pattern{
	{
		Name:            "delegation_request",
		Keywords:        []string{"can you handle", "please forward", "loop in", "take care of"},
		ConfidenceBoost: 5,
		Notes:           "Operator is asked to hand work off or pull someone in",
		TemplateID:      "general_acknowledgment",
	},
	{
		Name:            "invoice_processing",
		Keywords:        []string{"invoice", "fee statement", "billing statement", "amount due"},
		ConfidenceBoost: 10,
		Notes:           "Invoices go to AP review before any reply",
		TemplateID:      "general_acknowledgment",
	},
	{
		Name:            "meeting_request",
		Keywords:        []string{"schedule a call", "meeting", "availability", "calendar invite"},
		ConfidenceBoost: 5,
		Notes:           "Propose times from the operator's calendar",
		TemplateID:      "meeting_response",
	},
	{
		Name:            "payment_confirmation",
		Keywords:        []string{"payment received", "confirm payment", "payment confirmation", "remittance"},
		ConfidenceBoost: 15,
		Notes:           "Confirm receipt once the ledger shows the payment",
		TemplateID:      "payment_confirmation",
	},
	{
		Name:            "producer_statements",
		Keywords:        []string{"producer statement", "commission statement", "production report"},
		ConfidenceBoost: 10,
		Notes:           "Monthly statements; attach the latest report",
		TemplateID:      "general_acknowledgment",
	},
	{
		Name:            "turnaround_expectation",
		Keywords:        []string{"asap", "urgent", "by eod", "deadline"},
		ConfidenceBoost: 0,
		Notes:           "Time pressure; acknowledge and give a realistic turnaround",
		TemplateID:      "general_acknowledgment",
	},
	{
		Name:            "w9_wiring_request",
		Keywords:        []string{"w9", "w-9", "wiring instructions", "wire details"},
		ConfidenceBoost: 20,
		Notes:           "Send W-9 and wiring instructions; never change bank details by email",
		TemplateID:      "w9_response",
	},
}

// defaultTemplates is the bootstrap template set, sorted by id.
var defaultTemplates = []Template{
	{
		ID:   "general_acknowledgment",
		Name: "General Acknowledgment",
		Body: "Hi {sender_first_name},\n\nThanks for your note about {subject}. " +
			"I'll follow up by {turnaround}.\n\nBest,\n{signature}",
		Variables: []string{"sender_first_name", "subject", "turnaround", "signature"},
	},
	{
		ID:   "meeting_response",
		Name: "Meeting Response",
		Body: "Hi {sender_first_name},\n\nHappy to find a time. I'm available {availability}. " +
			"Let me know what works for you.\n\nBest,\n{signature}",
		Variables: []string{"sender_first_name", "availability", "signature"},
	},
	{
		ID:   "payment_confirmation",
		Name: "Payment Confirmation",
		Body: "Hi {sender_first_name},\n\nConfirming we received your payment of {amount} on {date}. " +
			"Thank you!\n\nBest,\n{signature}",
		Variables: []string{"sender_first_name", "amount", "date", "signature"},
	},
	{
		ID:   "w9_response",
		Name: "W9 & Wiring Instructions",
		Body: "Hi {sender_first_name},\n\nAttached is our W-9. Wiring instructions are below:\n\n" +
			"{wiring_details}\n\nPlease let me know if you need anything else.\n\nBest,\n{signature}",
		Variables:   []string{"sender_first_name", "wiring_details", "signature"},
		Attachments: []string{"w9_form.pdf"},
	},
}

// DefaultPatterns returns a copy of the canonical pattern library, sorted by name.
func DefaultPatterns() []Pattern {
	out := make([]Pattern, len(defaultPatterns))
	for i, p := range defaultPatterns {
		out[i] = p.Clone()
	}
	return out
}

// DefaultTemplates returns a copy of the canonical templates, sorted by id.
func DefaultTemplates() []Template {
	out := make([]Template, len(defaultTemplates))
	for i, t := range defaultTemplates {
		out[i] = t.Clone()
	}
	return out
}

// SortPatterns orders patterns by name so matching never depends on backend iteration order.
func SortPatterns(patterns []Pattern) {
	slices.SortFunc(patterns, func(a, b Pattern) int {
		return strings.Compare(a.Name, b.Name)
	})
}

// SortTemplates orders templates by id.
func SortTemplates(templates []Template) {
	slices.SortFunc(templates, func(a, b Template) int {
		return strings.Compare(a.ID, b.ID)
	})
}

// SeedDefaults inserts any canonical pattern or template that is not stored yet.
// Existing entries, including their counters, are left alone.
// It returns the number of entries inserted.
func SeedDefaults(ctx context.Context, s Storage) (int, error) {
	inserted := 0

	for _, t := range DefaultTemplates() {
		_, err := s.GetTemplate(ctx, t.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return inserted, fmt.Errorf("seed template %s: %w", t.ID, err)
		}
		if err := s.UpsertTemplate(ctx, t); err != nil {
			return inserted, fmt.Errorf("seed template %s: %w", t.ID, err)
		}
		inserted++
	}

	for _, p := range DefaultPatterns() {
		_, err := s.GetPattern(ctx, p.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return inserted, fmt.Errorf("seed pattern %s: %w", p.Name, err)
		}
		if err := s.UpsertPattern(ctx, p); err != nil {
			return inserted, fmt.Errorf("seed pattern %s: %w", p.Name, err)
		}
		inserted++
	}

	return inserted, nil
}
