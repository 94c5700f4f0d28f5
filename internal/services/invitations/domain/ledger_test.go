package domain

import (
	"reflect"
	"testing"
	"time"
)

func TestResolveEntitledUnionsAndDeduplicates(t *testing.T) {
	t.Parallel()

	entitled := ResolveEntitled(
		[]string{"resp-b", "resp-a"},
		map[string][]string{
			"group-1": {"resp-a", "resp-c"},
			"group-2": {"resp-c", "resp-d"},
		},
	)
	want := []string{"resp-a", "resp-b", "resp-c", "resp-d"}
	if !reflect.DeepEqual(entitled, want) {
		t.Fatalf("entitled = %v, want %v", entitled, want)
	}
}

func TestResolveEntitledEmptyInputs(t *testing.T) {
	t.Parallel()

	if got := ResolveEntitled(nil, nil); len(got) != 0 {
		t.Fatalf("entitled = %v, want empty", got)
	}
	if got := ResolveEntitled(nil, map[string][]string{"group-1": nil}); len(got) != 0 {
		t.Fatalf("entitled = %v, want empty for empty group", got)
	}
}

func TestReconcileEntriesCreatesPendingForNewRespondents(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 12, 9, 0, 0, 0, time.UTC)
	reconciled := ReconcileEntries(nil, []string{"resp-a", "resp-b"}, now)
	if len(reconciled) != 2 {
		t.Fatalf("reconciled = %d entries, want 2", len(reconciled))
	}
	for _, entry := range reconciled {
		if entry.Status != StatusPending {
			t.Fatalf("entry %s status = %v, want pending", entry.RespondentID, entry.Status)
		}
		if !entry.CreatedAt.Equal(now) || !entry.UpdatedAt.Equal(now) {
			t.Fatalf("entry %s timestamps = %v/%v, want %v", entry.RespondentID, entry.CreatedAt, entry.UpdatedAt, now)
		}
	}
}

func TestReconcileEntriesPreservesExistingStatus(t *testing.T) {
	t.Parallel()

	created := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)
	sentAt := created.Add(time.Hour)
	existing := []Entry{
		{RespondentID: "resp-a", Status: StatusSent, Attempts: 1, SentAt: &sentAt, CreatedAt: created, UpdatedAt: sentAt},
		{RespondentID: "resp-b", Status: StatusFailed, Attempts: 2, LastError: "smtp timeout", CreatedAt: created, UpdatedAt: created},
	}

	now := created.Add(48 * time.Hour)
	reconciled := ReconcileEntries(existing, []string{"resp-a", "resp-b", "resp-c"}, now)
	if len(reconciled) != 3 {
		t.Fatalf("reconciled = %d entries, want 3", len(reconciled))
	}
	if reconciled[0].Status != StatusSent || reconciled[0].Attempts != 1 {
		t.Fatalf("resp-a = %+v, want sent state preserved", reconciled[0])
	}
	if reconciled[1].Status != StatusFailed || reconciled[1].LastError != "smtp timeout" {
		t.Fatalf("resp-b = %+v, want failed state preserved", reconciled[1])
	}
	if reconciled[2].RespondentID != "resp-c" || reconciled[2].Status != StatusPending {
		t.Fatalf("resp-c = %+v, want new pending entry", reconciled[2])
	}
}

func TestReconcileEntriesPrunesRemovedRespondents(t *testing.T) {
	t.Parallel()

	created := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)
	existing := []Entry{
		{RespondentID: "resp-a", Status: StatusSent, CreatedAt: created, UpdatedAt: created},
		{RespondentID: "resp-b", Status: StatusPending, CreatedAt: created, UpdatedAt: created},
	}

	reconciled := ReconcileEntries(existing, []string{"resp-a"}, created.Add(time.Hour))
	if len(reconciled) != 1 || reconciled[0].RespondentID != "resp-a" {
		t.Fatalf("reconciled = %+v, want only resp-a", reconciled)
	}
}

func TestReconcileEntriesIsIdempotent(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 12, 9, 0, 0, 0, time.UTC)
	entitled := []string{"resp-a", "resp-b"}

	first := ReconcileEntries(nil, entitled, now)
	second := ReconcileEntries(first, entitled, now.Add(time.Hour))
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("second reconciliation diverged:\nfirst  = %+v\nsecond = %+v", first, second)
	}
}

func TestReconcileEntriesKeepsOneEntryPerRespondent(t *testing.T) {
	t.Parallel()

	created := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)
	existing := []Entry{
		{RespondentID: "resp-a", Status: StatusSent, CreatedAt: created, UpdatedAt: created},
		{RespondentID: "resp-a", Status: StatusPending, CreatedAt: created, UpdatedAt: created},
	}

	reconciled := ReconcileEntries(existing, []string{"resp-a"}, created.Add(time.Hour))
	if len(reconciled) != 1 {
		t.Fatalf("reconciled = %+v, want single entry", reconciled)
	}
	if reconciled[0].Status != StatusSent {
		t.Fatalf("entry = %+v, want first-seen entry kept", reconciled[0])
	}
}

func TestLedgerEntryLookup(t *testing.T) {
	t.Parallel()

	ledger := Ledger{
		Entries: []Entry{
			{RespondentID: "resp-a", Status: StatusPending},
		},
	}
	if entry, ok := ledger.Entry("resp-a"); !ok || entry.Status != StatusPending {
		t.Fatalf("entry lookup = %+v, %v", entry, ok)
	}
	if _, ok := ledger.Entry("resp-missing"); ok {
		t.Fatal("expected missing respondent lookup to fail")
	}
}

func TestSurveyActive(t *testing.T) {
	t.Parallel()

	if !(Survey{Status: SurveyStatusLive}).Active() {
		t.Fatal("live survey should be active")
	}
	for _, status := range []SurveyStatus{SurveyStatusDraft, SurveyStatusClosed, SurveyStatusArchived} {
		if (Survey{Status: status}).Active() {
			t.Fatalf("%s survey should not be active", status)
		}
	}
}

func TestRespondentContactable(t *testing.T) {
	t.Parallel()

	if !(Respondent{Enabled: true}).Contactable() {
		t.Fatal("enabled respondent should be contactable")
	}
	if (Respondent{Enabled: false}).Contactable() {
		t.Fatal("disabled respondent should not be contactable")
	}
	if (Respondent{Enabled: true, Archived: true}).Contactable() {
		t.Fatal("archived respondent should not be contactable")
	}
}

func TestStatusLabelRoundTrip(t *testing.T) {
	t.Parallel()

	for _, status := range []Status{StatusPending, StatusSent, StatusFailed, StatusAbandoned} {
		if got := StatusFromLabel(StatusLabel(status)); got != status {
			t.Fatalf("status %v round-tripped to %v", status, got)
		}
	}
	if StatusFromLabel("bogus") != StatusUnspecified {
		t.Fatal("unknown label should map to unspecified")
	}
}
