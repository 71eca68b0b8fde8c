package store

import (
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStoreLoadDocuments(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	docs := []Document{{ID: "d1", Title: "Plan", OwnerID: "u1", UpdatedAt: 42}}
	raw, _ := json.Marshal(docs)

	mock.ExpectQuery("SELECT data FROM snapshots WHERE name = \\$1").
		WithArgs(documentsSnapshot).
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow(raw))

	s := NewPostgresStore(db)
	got, err := s.LoadDocuments()
	require.NoError(t, err)
	assert.Equal(t, docs, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreLoadDocumentsMissingRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT data FROM snapshots WHERE name = \\$1").
		WithArgs(documentsSnapshot).
		WillReturnError(sql.ErrNoRows)

	s := NewPostgresStore(db)
	got, err := s.LoadDocuments()
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreLoadDocumentsCorruptSnapshot(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT data FROM snapshots WHERE name = \\$1").
		WithArgs(documentsSnapshot).
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow([]byte("{broken")))

	s := NewPostgresStore(db)
	got, err := s.LoadDocuments()
	require.NoError(t, err, "corruption must degrade to empty, not error")
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreSaveDocuments(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	docs := []Document{{ID: "d1", Title: "Plan", OwnerID: "u1", UpdatedAt: 42}}
	raw, _ := json.Marshal(docs)

	mock.ExpectExec("INSERT INTO snapshots").
		WithArgs(documentsSnapshot, string(raw)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	s := NewPostgresStore(db)
	require.NoError(t, s.SaveDocuments(docs))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreLoadUserCreatesIdentity(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT data FROM snapshots WHERE name = \\$1").
		WithArgs(userSnapshot).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO snapshots").
		WithArgs(userSnapshot, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	s := NewPostgresStore(db)
	u, err := s.LoadUser()
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.NotEmpty(t, u.Name)

	// Second call must not touch the database again.
	u2, err := s.LoadUser()
	require.NoError(t, err)
	assert.Equal(t, u, u2)
	assert.NoError(t, mock.ExpectationsWereMet())
}
