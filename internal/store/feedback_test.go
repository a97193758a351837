package store

import (
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPostgresSaveFeedbackUpserts(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectExec("INSERT INTO feedback").
		WithArgs("run-1", "user-1", string(FeedbackPositive), "great", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.SaveFeedback(&Feedback{
		RunID:   "run-1",
		UserID:  "user-1",
		Outcome: FeedbackPositive,
		Comment: "great",
	})
	if err != nil {
		t.Fatalf("SaveFeedback returned error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresSaveFeedbackRequiresRunID(t *testing.T) {
	store, _ := setupMockStore(t)
	if err := store.SaveFeedback(&Feedback{Outcome: FeedbackPositive}); err == nil {
		t.Fatalf("expected an error for feedback with no run id")
	}
}

func TestPostgresGetFeedbackReturnsErrNotFound(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectQuery("SELECT run_id, user_id, outcome, comment, created_at FROM feedback").
		WithArgs("run-1", "").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetFeedback("run-1", "")
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresGetFeedbackReturnsRow(t *testing.T) {
	store, mock := setupMockStore(t)

	rows := sqlmock.NewRows([]string{"run_id", "user_id", "outcome", "comment", "created_at"}).
		AddRow("run-1", "user-1", string(FeedbackNegative), "meh", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	mock.ExpectQuery("SELECT run_id, user_id, outcome, comment, created_at FROM feedback").
		WithArgs("run-1", "user-1").
		WillReturnRows(rows)

	fb, err := store.GetFeedback("run-1", "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fb.Outcome != FeedbackNegative || fb.Comment != "meh" {
		t.Fatalf("unexpected feedback: %+v", fb)
	}
}
