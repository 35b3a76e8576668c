package credentials

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/lecom/internal/client/migrations"
	"github.com/dmitrijs2005/lecom/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/lecom/internal/common"
	"github.com/dmitrijs2005/lecom/internal/logging"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := migrations.Open(context.Background(), filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestPersistentStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)

	s, err := OpenPersistentStore(ctx, db, []byte("pass"), logging.Discard())
	require.NoError(t, err)
	require.Equal(t, Credential{}, s.Get())

	c := Credential{AccessToken: "a1", RefreshToken: "r1", SubjectID: "u1"}
	require.NoError(t, s.Set(ctx, c))
	require.Equal(t, c, s.Get())

	reopened, err := OpenPersistentStore(ctx, db, []byte("pass"), logging.Discard())
	require.NoError(t, err)
	require.Equal(t, c, reopened.Get())

	repo := metadata.NewSQLiteRepository(db)
	blob, err := repo.Get(ctx, KeyCredential)
	require.NoError(t, err)
	assert.NotContains(t, string(blob), "a1")
	subject, err := repo.Get(ctx, KeySubjectID)
	require.NoError(t, err)
	assert.Equal(t, "u1", string(subject))
}

func TestPersistentStore_WrongPassphraseStartsLoggedOut(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)

	s, err := OpenPersistentStore(ctx, db, []byte("right"), logging.Discard())
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, Credential{AccessToken: "a", RefreshToken: "r", SubjectID: "u"}))

	other, err := OpenPersistentStore(ctx, db, []byte("wrong"), logging.Discard())
	require.NoError(t, err)
	require.Equal(t, Credential{}, other.Get())

	blob, err := metadata.NewSQLiteRepository(db).Get(ctx, KeyCredential)
	require.NoError(t, err)
	require.Nil(t, blob)
}

func TestPersistentStore_ClearRemovesRows(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)

	s, err := OpenPersistentStore(ctx, db, []byte("pass"), logging.Discard())
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, Credential{AccessToken: "a", RefreshToken: "r", SubjectID: "u"}))
	require.NoError(t, s.Clear(ctx))
	require.Equal(t, Credential{}, s.Get())

	m, err := metadata.NewSQLiteRepository(db).List(ctx)
	require.NoError(t, err)
	assert.NotContains(t, m, KeyCredential)
	assert.NotContains(t, m, KeySubjectID)
	assert.Contains(t, m, KeySalt)
}

func TestPersistentStore_RejectsPartial(t *testing.T) {
	ctx := context.Background()
	s, err := OpenPersistentStore(ctx, openDB(t), []byte("pass"), logging.Discard())
	require.NoError(t, err)

	require.ErrorIs(t, s.Set(ctx, Credential{RefreshToken: "r"}), common.ErrPartialCredential)
}

// expectLoad primes mock with an existing salt and no saved credential.
func expectLoad(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(`SELECT value FROM metadata WHERE key = \?`).
		WithArgs(KeySalt).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte("0123456789abcdef")))
	mock.ExpectQuery(`SELECT value FROM metadata WHERE key = \?`).
		WithArgs(KeyCredential).
		WillReturnRows(sqlmock.NewRows([]string{"value"}))
}

func TestPersistentStore_FailedWriteLeavesStoreUnchanged(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectLoad(mock)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO metadata`).
		WithArgs(KeyCredential, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO metadata`).
		WithArgs(KeySubjectID, sqlmock.AnyArg()).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	s, err := OpenPersistentStore(ctx, db, []byte("pass"), logging.Discard())
	require.NoError(t, err)

	err = s.Set(ctx, Credential{AccessToken: "a", RefreshToken: "r", SubjectID: "u"})
	require.ErrorContains(t, err, "save credential")
	require.ErrorContains(t, err, "disk full")
	require.Equal(t, Credential{}, s.Get())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPersistentStore_ClearEmptiesCacheEvenWhenDBFails(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectLoad(mock)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO metadata`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO metadata`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec(`DELETE FROM metadata`).WillReturnError(errors.New("locked"))

	s, err := OpenPersistentStore(ctx, db, []byte("pass"), logging.Discard())
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, Credential{AccessToken: "a", RefreshToken: "r"}))

	err = s.Clear(ctx)
	require.ErrorContains(t, err, "clear credential")
	require.Equal(t, Credential{}, s.Get())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenPersistentStore_SaltReadError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT value FROM metadata`).WillReturnError(errors.New("no table"))

	_, err = OpenPersistentStore(context.Background(), db, []byte("pass"), logging.Discard())
	require.ErrorContains(t, err, "get metadata[credential_salt]")
}
