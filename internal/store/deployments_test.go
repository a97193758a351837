package store

import (
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/workflowai/runengine/internal/assembler"
	"github.com/workflowai/runengine/internal/provider"
)

func TestPostgresCreateVersionAssignsFirstMajorMinor(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO blobs").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT major, minor FROM versions").
		WithArgs("support-bot", 1).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO versions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	v := &assembler.Version{
		Agent:    "support-bot",
		SchemaID: 1,
		Model:    "gpt-5",
		Messages: []provider.Message{{Role: "system", Content: "be helpful"}},
	}
	out, err := store.CreateVersion(v)
	if err != nil {
		t.Fatalf("CreateVersion returned error: %v", err)
	}
	if out.Major != 1 || out.Minor != 0 {
		t.Fatalf("expected major=1 minor=0, got %d.%d", out.Major, out.Minor)
	}
	if out.ID == "" {
		t.Fatalf("expected an assigned id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresCreateVersionIncrementsMinor(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO blobs").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT major, minor FROM versions").
		WithArgs("support-bot", 1).
		WillReturnRows(sqlmock.NewRows([]string{"major", "minor"}).AddRow(1, 3))
	mock.ExpectExec("INSERT INTO versions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	v := &assembler.Version{Agent: "support-bot", SchemaID: 1, Model: "gpt-5"}
	out, err := store.CreateVersion(v)
	if err != nil {
		t.Fatalf("CreateVersion returned error: %v", err)
	}
	if out.Major != 1 || out.Minor != 4 {
		t.Fatalf("expected major=1 minor=4, got %d.%d", out.Major, out.Minor)
	}
}

func TestPostgresDeploySwapsTarget(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectExec("INSERT INTO deployments").
		WithArgs("support-bot", 1, "production", "version-2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.Deploy("support-bot", 1, assembler.EnvProduction, "version-2"); err != nil {
		t.Fatalf("Deploy returned error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresResolveDeploymentReturnsVersion(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectQuery("SELECT version_id FROM deployments").
		WithArgs("support-bot", 1, "production").
		WillReturnRows(sqlmock.NewRows([]string{"version_id"}).AddRow("version-2"))

	promptJSON := `{"messages":[{"role":"system","content":"be helpful"}],"tools":null}`
	mock.ExpectQuery("SELECT id, agent, schema_id, major, minor, messages_digest, model").
		WithArgs("version-2").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "agent", "schema_id", "major", "minor", "messages_digest", "model",
			"temperature", "max_tokens", "input_schema", "output_schema",
		}).AddRow("version-2", "support-bot", 1, 1, 0, "digest-1", "gpt-5", 0.0, 0, nil, nil))
	mock.ExpectQuery("SELECT payload FROM blobs").
		WithArgs("digest-1").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow([]byte(promptJSON)))

	v, ok := store.ResolveDeployment("support-bot", 1, assembler.EnvProduction)
	if !ok {
		t.Fatalf("expected a resolved deployment")
	}
	if v.ID != "version-2" || len(v.Messages) != 1 {
		t.Fatalf("unexpected version: %+v", v)
	}
}

func TestPostgresResolveDeploymentMissing(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectQuery("SELECT version_id FROM deployments").
		WillReturnError(sql.ErrNoRows)

	if _, ok := store.ResolveDeployment("support-bot", 1, assembler.EnvStaging); ok {
		t.Fatalf("expected no deployment to resolve")
	}
}

func TestPostgresMessagesFetchesCombinedHistory(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectQuery("SELECT request_digest FROM runs").
		WithArgs("run-1", "acme").
		WillReturnRows(sqlmock.NewRows([]string{"request_digest"}).AddRow("digest-1"))

	messagesJSON := `{"request":[{"role":"user","content":"hi"}],"response":[{"role":"assistant","content":"hello"}]}`
	mock.ExpectQuery("SELECT payload FROM blobs").
		WithArgs("digest-1").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow([]byte(messagesJSON)))

	msgs, ok := store.Messages("acme", "run-1")
	if !ok {
		t.Fatalf("expected history to be found")
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 combined messages, got %d", len(msgs))
	}
}

func TestPostgresMessagesWrongTenantNotFound(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectQuery("SELECT request_digest FROM runs").
		WithArgs("run-1", "other-tenant").
		WillReturnError(sql.ErrNoRows)

	if _, ok := store.Messages("other-tenant", "run-1"); ok {
		t.Fatalf("expected a foreign-tenant run to report not found")
	}
}
