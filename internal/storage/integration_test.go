package storage

import (
	"context"
	"path/filepath"
	"testing"
)

// TestReopenPersists verifies seeded data and counters survive a reopen.
func TestReopenPersists(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "triage.db")
	ctx := context.Background()

	first := NewStorage(dbPath, nil)
	if err := first.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	n, err := SeedDefaults(ctx, first)
	if err != nil {
		t.Fatalf("SeedDefaults failed: %v", err)
	}
	if n != len(DefaultPatterns())+len(DefaultTemplates()) {
		t.Errorf("expected %d seeded entries, got %d", len(DefaultPatterns())+len(DefaultTemplates()), n)
	}

	if _, err := first.UpdatePattern(ctx, "w9_wiring_request", func(p *Pattern) error {
		p.UsageCount = 4
		p.SuccessRate = 75
		return nil
	}); err != nil {
		t.Fatalf("UpdatePattern failed: %v", err)
	}
	first.Close()

	second := NewStorage(dbPath, nil)
	if err := second.Init(); err != nil {
		t.Fatalf("second Init failed: %v", err)
	}
	defer second.Close()

	// Seeding again must not reset learned counters.
	n, err = SeedDefaults(ctx, second)
	if err != nil {
		t.Fatalf("second SeedDefaults failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected nothing to seed on reopen, got %d", n)
	}

	p, err := second.GetPattern(ctx, "w9_wiring_request")
	if err != nil {
		t.Fatalf("GetPattern failed: %v", err)
	}
	if p.UsageCount != 4 || p.SuccessRate != 75 {
		t.Errorf("expected counters to persist, got usage=%d rate=%d", p.UsageCount, p.SuccessRate)
	}
}
