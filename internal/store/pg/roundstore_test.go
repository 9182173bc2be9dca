package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"wekeza.org/internal/ledger"
	"wekeza.org/internal/round"
)

var roundColNames = []string{
	"id", "name", "creator_id", "round_type", "payout_model", "amount", "frequency",
	"max_members", "current_members", "interest_rate", "min_trust", "status",
	"start_date", "end_date", "created_at", "updated_at",
}

func TestRoundStoreGetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	store := NewRoundStore(db)

	mock.ExpectQuery("select (.+) from rounds where id=").WithArgs("nope").
		WillReturnError(sql.ErrNoRows)
	if _, err := store.GetRound(context.Background(), "nope"); !errors.Is(err, round.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRoundStoreGetScansNullDates(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	store := NewRoundStore(db)

	now := time.Now().UTC()
	mock.ExpectQuery("select (.+) from rounds where id=").WithArgs("r1").
		WillReturnRows(sqlmock.NewRows(roundColNames).AddRow(
			"r1", "chama", "alice", "public", "marathon", "1000.00", "weekly",
			3, 1, "12.00", 0, "open", nil, nil, now, now))

	r, err := store.GetRound(context.Background(), "r1")
	if err != nil {
		t.Fatalf("GetRound: %v", err)
	}
	if !r.StartDate.IsZero() || !r.EndDate.IsZero() {
		t.Fatalf("null dates should scan as zero times, got %v / %v", r.StartDate, r.EndDate)
	}
	if r.Status != round.StatusOpen {
		t.Fatalf("status = %s, want open", r.Status)
	}
}

func TestRoundStoreCompletionStatsWrittenOnce(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	store := NewRoundStore(db)

	// Conflict on round_id inserts nothing; the snapshot is immutable.
	mock.ExpectExec("insert into completion_stats").
		WillReturnResult(sqlmock.NewResult(0, 0))
	err = store.CreateCompletionStats(context.Background(), round.CompletionStats{RoundID: "r1"})
	if !errors.Is(err, round.ErrValidation) {
		t.Fatalf("expected ErrValidation on a second snapshot, got %v", err)
	}
}

func TestRoundStoreUpdateMissingMembership(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	store := NewRoundStore(db)

	mock.ExpectExec("update round_memberships set").
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := store.UpdateMembership(context.Background(), round.Membership{ID: "m1"}); !errors.Is(err, round.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRoundStoreListDueContributions(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	store := NewRoundStore(db)

	due := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	cols := []string{
		"id", "round_id", "membership_id", "member_id", "cycle", "amount", "status",
		"due_date", "payment_date", "interest_accrued", "days_in_escrow", "transaction_id",
	}
	mock.ExpectQuery("select (.+) from contributions").
		WithArgs("", "", "pending", due).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"c1", "r1", "m1", "alice", 1, "1000.00", "pending",
			due.AddDate(0, 0, -1), nil, "0", 0, ""))

	got, err := store.ListContributions(context.Background(), round.ContributionFilter{
		Status:    round.ContribPending,
		DueBefore: &due,
	})
	if err != nil {
		t.Fatalf("ListContributions: %v", err)
	}
	if len(got) != 1 || got[0].ID != "c1" {
		t.Fatalf("unexpected contributions: %+v", got)
	}
	if got[0].PaymentDate != nil {
		t.Fatalf("unpaid contribution should carry a nil payment date")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGoalStoreListActive(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	store := NewGoalStore(db)

	now := time.Now().UTC()
	cols := []string{
		"id", "owner_id", "name", "kind", "category", "target_amount", "balance",
		"interest_accrued", "interest_rate", "active", "start_date", "end_date",
		"last_accrual", "created_at", "updated_at",
	}
	mock.ExpectQuery("select (.+) from goals where active").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"g1", "alice", "school fees", "fixed", "personal", "5000.00", "1200.00",
			"3.40", "12.00", true, now, nil, now, now, now))

	got, err := store.ListActive(context.Background())
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(got) != 1 || got[0].ID != "g1" {
		t.Fatalf("unexpected goals: %+v", got)
	}
	if got[0].EndDate != nil {
		t.Fatalf("open-ended goal should carry a nil end date")
	}
}

func TestWithdrawalStoreUpdateMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	store := NewWithdrawalStore(db)

	mock.ExpectExec("update pending_withdrawals set").
		WillReturnResult(sqlmock.NewResult(0, 0))
	err = store.UpdateWithdrawal(context.Background(), ledger.PendingWithdrawal{ID: "w1"})
	if !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
