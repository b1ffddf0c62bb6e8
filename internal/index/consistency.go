package index

import (
	"context"
	"log/slog"
	"sort"
	"time"
)

// InconsistencyType categorizes detected issues.
type InconsistencyType int

const (
	// InconsistencyOrphanText indicates a text index entry without a record.
	InconsistencyOrphanText InconsistencyType = iota
	// InconsistencyMissingText indicates a record missing from the text index.
	InconsistencyMissingText
)

// String returns a human-readable description of the inconsistency type.
func (t InconsistencyType) String() string {
	switch t {
	case InconsistencyOrphanText:
		return "orphan_text"
	case InconsistencyMissingText:
		return "missing_text"
	default:
		return "unknown"
	}
}

// Inconsistency represents a detected divergence between the record store and
// the text index.
type Inconsistency struct {
	Type    InconsistencyType `json:"type"`
	ItemID  string            `json:"item_id"`
	Details string            `json:"details"`
}

// CheckResult contains the outcome of a consistency check.
type CheckResult struct {
	// Checked is the number of records verified.
	Checked int
	// Inconsistencies contains all detected issues, ordered by item id.
	Inconsistencies []Inconsistency
	// Duration is how long the check took.
	Duration time.Duration
}

// Consistent reports whether no issues were found.
func (r *CheckResult) Consistent() bool {
	return len(r.Inconsistencies) == 0
}

// textIndex is the part of store.ItemStore the checker needs.
type textIndex interface {
	RecordIDs(ctx context.Context) ([]string, error)
	TextIDs(ctx context.Context) ([]string, error)
	RebuildText(ctx context.Context) error
}

// ConsistencyChecker validates that the text index mirrors the record store.
// Writes keep both in sync; the checker finds damage from outside the
// process, such as a restored or hand-edited database file.
type ConsistencyChecker struct {
	store  textIndex
	logger *slog.Logger
}

// NewConsistencyChecker creates a checker over s. A nil logger uses
// slog.Default().
func NewConsistencyChecker(s textIndex, logger *slog.Logger) *ConsistencyChecker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsistencyChecker{store: s, logger: logger}
}

// Check compares record ids with text index ids.
func (c *ConsistencyChecker) Check(ctx context.Context) (*CheckResult, error) {
	start := time.Now()

	recordIDs, err := c.store.RecordIDs(ctx)
	if err != nil {
		return nil, err
	}
	textIDs, err := c.store.TextIDs(ctx)
	if err != nil {
		return nil, err
	}

	records := make(map[string]bool, len(recordIDs))
	for _, id := range recordIDs {
		records[id] = true
	}
	text := make(map[string]bool, len(textIDs))
	for _, id := range textIDs {
		text[id] = true
	}

	var issues []Inconsistency
	for id := range text {
		if !records[id] {
			issues = append(issues, Inconsistency{
				Type:    InconsistencyOrphanText,
				ItemID:  id,
				Details: "text index entry without matching record",
			})
		}
	}
	for id := range records {
		if !text[id] {
			issues = append(issues, Inconsistency{
				Type:    InconsistencyMissingText,
				ItemID:  id,
				Details: "record missing from text index",
			})
		}
	}
	sort.Slice(issues, func(i, j int) bool {
		if issues[i].ItemID != issues[j].ItemID {
			return issues[i].ItemID < issues[j].ItemID
		}
		return issues[i].Type < issues[j].Type
	})

	return &CheckResult{
		Checked:         len(records),
		Inconsistencies: issues,
		Duration:        time.Since(start),
	}, nil
}

// Repair rebuilds the text index from the record store, which reindexes
// missing entries and drops orphans. It does nothing when issues is empty.
func (c *ConsistencyChecker) Repair(ctx context.Context, issues []Inconsistency) error {
	if len(issues) == 0 {
		return nil
	}

	var orphans, missing int
	for _, issue := range issues {
		switch issue.Type {
		case InconsistencyOrphanText:
			orphans++
		case InconsistencyMissingText:
			missing++
		}
	}

	if err := c.store.RebuildText(ctx); err != nil {
		return err
	}
	c.logger.Info("index_text_rebuilt",
		slog.Int("orphans", orphans),
		slog.Int("missing", missing))
	return nil
}

// QuickCheck performs a lightweight consistency check.
// It only verifies counts match, not individual IDs.
func (c *ConsistencyChecker) QuickCheck(ctx context.Context) (bool, error) {
	recordIDs, err := c.store.RecordIDs(ctx)
	if err != nil {
		return false, err
	}
	textIDs, err := c.store.TextIDs(ctx)
	if err != nil {
		return false, err
	}

	consistent := len(recordIDs) == len(textIDs)
	if !consistent {
		c.logger.Debug("index counts mismatch",
			slog.Int("records", len(recordIDs)),
			slog.Int("text", len(textIDs)))
	}
	return consistent, nil
}
