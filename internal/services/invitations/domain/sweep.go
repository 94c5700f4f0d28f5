package domain

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/louisbranch/surveycast/internal/platform/timeouts"
)

const (
	// DefaultBatchSize is the sweep batch size when none is configured.
	DefaultBatchSize = 10
	// MinBatchSize bounds configured batch sizes from below.
	MinBatchSize = 1
	// MaxBatchSize bounds configured batch sizes from above to avoid
	// accidental downstream overload.
	MaxBatchSize = 100
)

// DueItem is one sendable invitation joined with its survey and respondent
// context. The store contract guarantees due items reference live surveys,
// enabled non-archived respondents, and respondents without a completed
// response.
type DueItem struct {
	SurveyID     string
	SurveySlug   string
	SurveyTitle  string
	RespondentID string
	Email        string
	Status       Status
	Attempts     int
}

// SweepOptions scopes one sweep run.
type SweepOptions struct {
	// SurveyID restricts the sweep to one survey when non-empty.
	SurveyID string
	// BatchSize overrides the configured batch size when positive; it is
	// clamped to [MinBatchSize, MaxBatchSize].
	BatchSize int
}

// SweepResult is one item's outcome within a sweep.
type SweepResult struct {
	SurveyID     string
	RespondentID string
	Email        string
	Status       Status
	Error        string
}

// SweepReport summarizes one sweep across all processed items.
type SweepReport struct {
	TotalProcessed int
	SentCount      int
	FailedCount    int
	AbandonedCount int
	Results        []SweepResult
}

// SweepConfig tunes the cross-survey campaign job.
type SweepConfig struct {
	BaseURL     string
	BatchSize   int
	Pacing      time.Duration
	MaxAttempts int
}

func (c SweepConfig) normalized() SweepConfig {
	c.BatchSize = clampBatchSize(c.BatchSize)
	if c.Pacing <= 0 {
		c.Pacing = timeouts.SweepBatchPacing
	}
	if c.MaxAttempts < 0 {
		c.MaxAttempts = 0
	}
	return c
}

// Sweep is the cross-survey batch job that reprocesses pending and failed
// invitations.
type Sweep struct {
	store   Store
	courier courier
	config  SweepConfig
	clock   func() time.Time
	logf    func(format string, args ...any)
}

// NewSweep constructs the campaign job. publish may be nil when no observer
// surface is wired.
func NewSweep(store Store, sender Sender, tokens TokenIssuer, config SweepConfig, publish func(Event), clock func() time.Time) *Sweep {
	if clock == nil {
		clock = time.Now
	}
	normalized := config.normalized()
	sweep := &Sweep{
		store:  store,
		config: normalized,
		clock:  clock,
		logf:   log.Printf,
	}
	sweep.courier = courier{
		store:       store,
		sender:      sender,
		tokens:      tokens,
		baseURL:     normalized.BaseURL,
		maxAttempts: normalized.MaxAttempts,
		publish:     publish,
		clock:       clock,
		logf:        sweep.logf,
	}
	return sweep
}

// Run lists due invitations, partitions them into fixed-size batches, and
// processes each batch with per-item isolation: every item reaches a terminal
// outcome and no item's failure aborts its siblings. A pacing delay separates
// batches to respect downstream rate limits. Entries whose attempt count
// already reached the configured cap are abandoned without a send.
func (s *Sweep) Run(ctx context.Context, opts SweepOptions) (SweepReport, error) {
	if s == nil || s.store == nil {
		return SweepReport{}, ErrStoreNotConfigured
	}
	batchSize := s.config.BatchSize
	if opts.BatchSize > 0 {
		batchSize = clampBatchSize(opts.BatchSize)
	}

	items, err := s.store.ListDue(ctx, opts.SurveyID)
	if err != nil {
		return SweepReport{}, err
	}

	report := SweepReport{TotalProcessed: len(items)}
	for start := 0; start < len(items); start += batchSize {
		if start > 0 {
			if err := s.pace(ctx); err != nil {
				return report, err
			}
		}
		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}
		s.runBatch(ctx, items[start:end], &report)
	}
	return report, nil
}

// runBatch processes one batch with allSettled semantics: each item's outcome
// is captured independently.
func (s *Sweep) runBatch(ctx context.Context, batch []DueItem, report *SweepReport) {
	results := make([]SweepResult, len(batch))
	var wg sync.WaitGroup
	for i, item := range batch {
		wg.Add(1)
		go func(i int, item DueItem) {
			defer wg.Done()
			results[i] = s.processItem(ctx, item)
		}(i, item)
	}
	wg.Wait()

	for _, result := range results {
		switch result.Status {
		case StatusSent:
			report.SentCount++
		case StatusAbandoned:
			report.AbandonedCount++
			report.FailedCount++
		default:
			report.FailedCount++
		}
		report.Results = append(report.Results, result)
	}
}

func (s *Sweep) processItem(ctx context.Context, item DueItem) SweepResult {
	result := SweepResult{
		SurveyID:     item.SurveyID,
		RespondentID: item.RespondentID,
		Email:        item.Email,
	}
	if s.config.MaxAttempts > 0 && item.Attempts >= s.config.MaxAttempts {
		reason := "retry budget exhausted"
		if err := s.store.UpdateEntryStatus(ctx, item.SurveyID, item.RespondentID, StatusAbandoned, nil, item.Attempts, reason); err != nil {
			s.logf("abandon invitation survey=%s respondent=%s: %v", item.SurveyID, item.RespondentID, err)
		}
		result.Status = StatusAbandoned
		result.Error = reason
		return result
	}

	status, reason := s.courier.deliver(ctx, sendTarget{
		SurveyID:     item.SurveyID,
		SurveySlug:   item.SurveySlug,
		SurveyTitle:  item.SurveyTitle,
		RespondentID: item.RespondentID,
		Email:        item.Email,
		Attempts:     item.Attempts,
	})
	result.Status = status
	result.Error = reason
	return result
}

func (s *Sweep) pace(ctx context.Context) error {
	timer := time.NewTimer(s.config.Pacing)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func clampBatchSize(size int) int {
	switch {
	case size <= 0:
		return DefaultBatchSize
	case size < MinBatchSize:
		return MinBatchSize
	case size > MaxBatchSize:
		return MaxBatchSize
	default:
		return size
	}
}
