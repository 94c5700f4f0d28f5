package domain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/louisbranch/surveycast/internal/platform/timeouts"
)

// DefaultConcurrency bounds simultaneous in-flight sends when the caller does
// not supply a pool size.
const DefaultConcurrency = 5

// Sender is the fire-and-forget send-message primitive. Delivery is
// at-least-once; the only guarantee is acceptance by the transport.
type Sender interface {
	Send(ctx context.Context, message Message) error
}

// Message is one outbound invitation notification.
type Message struct {
	To           string
	Subject      string
	Body         string
	SurveyID     string
	RespondentID string
}

// TokenIssuer mints the signed access token embedded in each invitation link.
type TokenIssuer interface {
	Issue(surveyID string, respondentID string) (string, error)
}

// ResponseIndex answers whether respondents already completed a survey.
type ResponseIndex interface {
	CompletedRespondents(ctx context.Context, surveyID string) (map[string]struct{}, error)
}

// EventTopicInvitationSent is published once per successfully sent invitation.
const EventTopicInvitationSent = "invitation.sent"

// Event is the observer-notification emission for real-time listeners.
type Event struct {
	Topic        string
	SurveyID     string
	RespondentID string
	Email        string
	At           time.Time
}

// DispatchFailure captures one per-entry send error with enough detail for
// operators to act on without re-running the survey.
type DispatchFailure struct {
	SurveyID     string
	RespondentID string
	Email        string
	Reason       string
}

// DispatchReport aggregates per-entry outcomes for one dispatch invocation.
type DispatchReport struct {
	Sent     int
	Failed   int
	Total    int
	Failures []DispatchFailure
}

// DispatcherConfig tunes dispatch behavior.
type DispatcherConfig struct {
	// BaseURL is the public root used to build invitation links.
	BaseURL string
	// Concurrency bounds simultaneous in-flight sends. Zero means
	// DefaultConcurrency.
	Concurrency int
	// MaxAttempts caps send attempts per entry before it is abandoned.
	// Zero means retry forever.
	MaxAttempts int
}

// Dispatcher sends a survey's pending invitations under bounded concurrency.
type Dispatcher struct {
	store     Store
	directory Directory
	surveys   SurveyCatalog
	responses ResponseIndex
	courier   courier
	config    DispatcherConfig
	clock     func() time.Time
	logf      func(format string, args ...any)
}

// NewDispatcher constructs a dispatcher. publish may be nil when no observer
// surface is wired.
func NewDispatcher(store Store, directory Directory, surveys SurveyCatalog, responses ResponseIndex, sender Sender, tokens TokenIssuer, config DispatcherConfig, publish func(Event), clock func() time.Time) *Dispatcher {
	if clock == nil {
		clock = time.Now
	}
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultConcurrency
	}
	dispatcher := &Dispatcher{
		store:     store,
		directory: directory,
		surveys:   surveys,
		responses: responses,
		config:    config,
		clock:     clock,
		logf:      log.Printf,
	}
	dispatcher.courier = courier{
		store:       store,
		sender:      sender,
		tokens:      tokens,
		baseURL:     config.BaseURL,
		maxAttempts: config.MaxAttempts,
		publish:     publish,
		clock:       clock,
		logf:        dispatcher.logf,
	}
	return dispatcher
}

// SendPending dispatches the survey's still-entitled pending entries through a
// bounded worker pool. Respondents who already completed the survey are marked
// sent without a send. Individual send failures are isolated and collected in
// the report; only a missing survey or ledger fails the call.
func (d *Dispatcher) SendPending(ctx context.Context, surveyID string, concurrency int) (DispatchReport, error) {
	if d == nil || d.store == nil {
		return DispatchReport{}, ErrStoreNotConfigured
	}
	surveyID, err := normalizeSurveyID(surveyID)
	if err != nil {
		return DispatchReport{}, err
	}
	if concurrency <= 0 {
		concurrency = d.config.Concurrency
	}

	survey, err := d.surveys.GetSurvey(ctx, surveyID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return DispatchReport{}, ErrSurveyNotFound
		}
		return DispatchReport{}, err
	}
	ledger, err := d.store.GetLedger(ctx, surveyID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return DispatchReport{}, ErrLedgerNotFound
		}
		return DispatchReport{}, err
	}

	// Entitlement is recomputed at send time: entries for respondents removed
	// since the ledger was written are excluded even if still pending.
	entitled := d.currentEntitled(ctx, ledger)
	pending := make([]Entry, 0, len(ledger.Entries))
	for _, entry := range ledger.Entries {
		if entry.Status != StatusPending {
			continue
		}
		if _, ok := entitled[entry.RespondentID]; !ok {
			continue
		}
		pending = append(pending, entry)
	}

	report := DispatchReport{Total: len(pending)}
	if len(pending) == 0 {
		return report, nil
	}

	completed, err := d.responses.CompletedRespondents(ctx, surveyID)
	if err != nil {
		return DispatchReport{}, fmt.Errorf("load completed respondents for survey %s: %w", surveyID, err)
	}

	remaining := make([]Entry, 0, len(pending))
	for _, entry := range pending {
		if _, done := completed[entry.RespondentID]; !done {
			remaining = append(remaining, entry)
			continue
		}
		now := d.clock().UTC()
		if err := d.store.UpdateEntryStatus(ctx, surveyID, entry.RespondentID, StatusSent, &now, entry.Attempts, ""); err != nil {
			d.logf("suppress completed respondent survey=%s respondent=%s: %v", surveyID, entry.RespondentID, err)
		}
		report.Sent++
	}
	if len(remaining) == 0 {
		return report, nil
	}

	targets, misses := d.resolveTargets(ctx, survey, remaining)
	for _, miss := range misses {
		if err := d.store.UpdateEntryStatus(ctx, surveyID, miss.RespondentID, StatusFailed, nil, miss.Attempts+1, miss.Reason); err != nil {
			d.logf("mark unresolvable entry survey=%s respondent=%s: %v", surveyID, miss.RespondentID, err)
		}
		report.Failed++
		report.Failures = append(report.Failures, DispatchFailure{
			SurveyID:     surveyID,
			RespondentID: miss.RespondentID,
			Reason:       miss.Reason,
		})
	}

	workers := concurrency
	if workers > len(targets) {
		workers = len(targets)
	}
	jobs := make(chan sendTarget)
	var wg sync.WaitGroup
	var mu sync.Mutex
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for target := range jobs {
				status, reason := d.courier.deliver(ctx, target)
				mu.Lock()
				if status == StatusSent {
					report.Sent++
				} else {
					report.Failed++
					report.Failures = append(report.Failures, DispatchFailure{
						SurveyID:     target.SurveyID,
						RespondentID: target.RespondentID,
						Email:        target.Email,
						Reason:       reason,
					})
				}
				mu.Unlock()
			}
		}()
	}
	for _, target := range targets {
		jobs <- target
	}
	close(jobs)
	wg.Wait()

	return report, nil
}

// currentEntitled re-expands the ledger's group set best-effort and unions it
// with the individually-assigned respondents.
func (d *Dispatcher) currentEntitled(ctx context.Context, ledger Ledger) map[string]struct{} {
	members := make(map[string][]string, len(ledger.Groups))
	for _, groupID := range ledger.Groups {
		groupMembers, err := d.directory.ListGroupMembers(ctx, groupID)
		if err != nil {
			d.logf("dispatch survey=%s: skip group %s: %v", ledger.SurveyID, groupID, err)
			continue
		}
		members[groupID] = groupMembers
	}
	entitled := make(map[string]struct{})
	for _, respondentID := range ResolveEntitled(ledger.Respondents, members) {
		entitled[respondentID] = struct{}{}
	}
	return entitled
}

type targetMiss struct {
	RespondentID string
	Attempts     int
	Reason       string
}

// resolveTargets joins pending entries with respondent contact records.
// Entries with no resolvable address become immediate failures.
func (d *Dispatcher) resolveTargets(ctx context.Context, survey Survey, entries []Entry) ([]sendTarget, []targetMiss) {
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.RespondentID)
	}
	respondents, err := d.directory.FindRespondentsByIDs(ctx, ids)
	if err != nil {
		misses := make([]targetMiss, 0, len(entries))
		for _, entry := range entries {
			misses = append(misses, targetMiss{
				RespondentID: entry.RespondentID,
				Attempts:     entry.Attempts,
				Reason:       fmt.Sprintf("resolve respondent: %v", err),
			})
		}
		return nil, misses
	}
	byID := make(map[string]Respondent, len(respondents))
	for _, respondent := range respondents {
		byID[respondent.ID] = respondent
	}

	targets := make([]sendTarget, 0, len(entries))
	var misses []targetMiss
	for _, entry := range entries {
		respondent, ok := byID[entry.RespondentID]
		if !ok {
			misses = append(misses, targetMiss{
				RespondentID: entry.RespondentID,
				Attempts:     entry.Attempts,
				Reason:       "respondent not found",
			})
			continue
		}
		if strings.TrimSpace(respondent.Email) == "" {
			misses = append(misses, targetMiss{
				RespondentID: entry.RespondentID,
				Attempts:     entry.Attempts,
				Reason:       "respondent has no address",
			})
			continue
		}
		targets = append(targets, sendTarget{
			SurveyID:     survey.ID,
			SurveySlug:   survey.Slug,
			SurveyTitle:  survey.Title,
			RespondentID: entry.RespondentID,
			Email:        respondent.Email,
			Attempts:     entry.Attempts,
		})
	}
	return targets, misses
}

// sendTarget is one deliverable invitation with resolved contact details.
type sendTarget struct {
	SurveyID     string
	SurveySlug   string
	SurveyTitle  string
	RespondentID string
	Email        string
	Attempts     int
}

// courier performs one token-sign-send-record cycle. It is shared by the
// per-survey dispatcher and the cross-survey sweep so the two paths cannot
// drift.
type courier struct {
	store       Store
	sender      Sender
	tokens      TokenIssuer
	baseURL     string
	maxAttempts int
	publish     func(Event)
	clock       func() time.Time
	logf        func(format string, args ...any)
}

// deliver attempts one send and records the resulting entry status. The
// pending-to-terminal status transition is the unit of work: a failed status
// write after a successful send is logged as an anomaly but does not flip the
// outcome, since the message was delivered.
func (c *courier) deliver(ctx context.Context, target sendTarget) (Status, string) {
	token, err := c.tokens.Issue(target.SurveyID, target.RespondentID)
	if err != nil {
		return c.recordFailure(ctx, target, fmt.Sprintf("issue access token: %v", err))
	}
	link := InvitationLink(c.baseURL, target.SurveySlug, token)

	message := Message{
		To:           target.Email,
		Subject:      fmt.Sprintf("You're invited: %s", target.SurveyTitle),
		Body:         fmt.Sprintf("You have been invited to take the survey %q.\n\n%s\n", target.SurveyTitle, link),
		SurveyID:     target.SurveyID,
		RespondentID: target.RespondentID,
	}
	sendCtx, cancel := context.WithTimeout(ctx, timeouts.Send)
	err = c.sender.Send(sendCtx, message)
	cancel()
	if err != nil {
		return c.recordFailure(ctx, target, err.Error())
	}

	now := c.nowUTC()
	if err := c.store.UpdateEntryStatus(ctx, target.SurveyID, target.RespondentID, StatusSent, &now, target.Attempts+1, ""); err != nil {
		c.logf("record sent invitation survey=%s respondent=%s: %v", target.SurveyID, target.RespondentID, err)
	}
	if c.publish != nil {
		c.publish(Event{
			Topic:        EventTopicInvitationSent,
			SurveyID:     target.SurveyID,
			RespondentID: target.RespondentID,
			Email:        target.Email,
			At:           now,
		})
	}
	return StatusSent, ""
}

func (c *courier) recordFailure(ctx context.Context, target sendTarget, reason string) (Status, string) {
	attempts := target.Attempts + 1
	status := StatusFailed
	if c.maxAttempts > 0 && attempts >= c.maxAttempts {
		status = StatusAbandoned
	}
	if err := c.store.UpdateEntryStatus(ctx, target.SurveyID, target.RespondentID, status, nil, attempts, reason); err != nil {
		c.logf("record failed invitation survey=%s respondent=%s: %v", target.SurveyID, target.RespondentID, err)
	}
	return status, reason
}

func (c *courier) nowUTC() time.Time {
	if c.clock == nil {
		return time.Now().UTC()
	}
	return c.clock().UTC()
}

// InvitationLink builds the respondent-facing survey link carrying the signed
// access token.
func InvitationLink(baseURL string, slug string, token string) string {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	return fmt.Sprintf("%s/s/%s?t=%s", base, url.PathEscape(slug), url.QueryEscape(token))
}
