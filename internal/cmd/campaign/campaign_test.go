package campaign

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"flag"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/louisbranch/surveycast/internal/platform/id"
	"github.com/louisbranch/surveycast/internal/services/invitations/storage"
	"github.com/louisbranch/surveycast/internal/services/invitations/storage/sqlite"
)

func TestParseConfig_ParsesDefaultsAndFlags(t *testing.T) {
	fs := flag.NewFlagSet("campaign", flag.ContinueOnError)
	t.Setenv("SURVEYCAST_INVITATIONS_DB_PATH", "/tmp/invites.db")

	cfg, err := ParseConfig(fs, []string{"-survey", "survey-1", "-batch-size", "20", "-dry-run"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.DBPath != "/tmp/invites.db" {
		t.Fatalf("db path = %q", cfg.DBPath)
	}
	if cfg.SurveyID != "survey-1" || cfg.BatchSize != 20 || !cfg.DryRun {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Pending {
		t.Fatal("pending should default to false")
	}
}

func TestRunPendingPrintsCount(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "invitations.db")
	seedPendingEntry(t, dbPath)

	var out bytes.Buffer
	err := Run(context.Background(), Config{
		DBPath:  dbPath,
		Pending: true,
	}, &out, nil)
	if err != nil {
		t.Fatalf("run pending: %v", err)
	}
	if got := out.String(); got != "pending invitations: 1\n" {
		t.Fatalf("output = %q", got)
	}
}

func TestRunSweepDryRunReportsOutcome(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "invitations.db")
	seedPendingEntry(t, dbPath)

	_, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	t.Setenv("SURVEYCAST_ACCESS_TOKEN_ISSUER", "surveycast")
	t.Setenv("SURVEYCAST_ACCESS_TOKEN_AUDIENCE", "survey-portal")
	t.Setenv("SURVEYCAST_ACCESS_TOKEN_PRIVATE_KEY", base64.RawStdEncoding.EncodeToString(privKey))

	var out bytes.Buffer
	var errOut bytes.Buffer
	err = Run(context.Background(), Config{
		DBPath:  dbPath,
		BaseURL: "https://surveys.example.com",
		Pacing:  time.Millisecond,
		DryRun:  true,
	}, &out, &errOut)
	if err != nil {
		t.Fatalf("run sweep: %v", err)
	}
	if !strings.Contains(out.String(), "processed=1 sent=1 failed=0") {
		t.Fatalf("output = %q", out.String())
	}
	if errOut.Len() != 0 {
		t.Fatalf("unexpected failure lines: %q", errOut.String())
	}
}

func seedPendingEntry(t *testing.T, dbPath string) {
	t.Helper()
	store, err := sqlite.Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			t.Fatalf("close store: %v", closeErr)
		}
	}()

	ctx := context.Background()
	now := time.Date(2026, 8, 12, 9, 0, 0, 0, time.UTC)
	surveyID := mustNewID(t)
	respondentID := mustNewID(t)
	if err := store.PutSurvey(ctx, storage.SurveyRecord{
		ID:        surveyID,
		Slug:      "quarterly-pulse",
		Title:     "Quarterly Pulse",
		Status:    storage.SurveyStatusLive,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		t.Fatalf("seed survey: %v", err)
	}
	if err := store.PutRespondent(ctx, storage.RespondentRecord{
		ID:        respondentID,
		Email:     "a@example.com",
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		t.Fatalf("seed respondent: %v", err)
	}
	if err := store.ReplaceEntitlement(ctx, surveyID, []string{respondentID}, nil); err != nil {
		t.Fatalf("seed entitlement: %v", err)
	}
	if err := store.UpsertEntries(ctx, surveyID, []storage.EntryRecord{
		{
			RespondentID: respondentID,
			Status:       storage.EntryStatusPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		},
	}); err != nil {
		t.Fatalf("seed entry: %v", err)
	}
}

func mustNewID(t *testing.T) string {
	t.Helper()
	value, err := id.NewID()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	return value
}
