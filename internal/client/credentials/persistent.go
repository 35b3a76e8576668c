package credentials

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/lecom/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/lecom/internal/common"
	"github.com/dmitrijs2005/lecom/internal/cryptox"
	"github.com/dmitrijs2005/lecom/internal/dbx"
	"github.com/dmitrijs2005/lecom/internal/logging"
)

// Metadata keys used by PersistentStore.
const (
	KeySalt       = "credential_salt"
	KeyCredential = "credential"
	KeySubjectID  = "subject_id"
)

// PersistentStore keeps the credential in memory and mirrors it into the
// metadata table as a single sealed blob, so a restarted client resumes the
// session. The subject id is also stored in clear for status display.
type PersistentStore struct {
	db     *sql.DB
	key    []byte
	cache  *MemoryStore
	logger logging.Logger

	// serializes writers so the cache never disagrees with the database
	mu sync.Mutex
}

// OpenPersistentStore derives the sealing key from passphrase and loads any
// saved credential. A blob that cannot be opened (wrong passphrase, corrupted
// row) is deleted and the store starts logged out.
func OpenPersistentStore(ctx context.Context, db *sql.DB, passphrase []byte, logger logging.Logger) (*PersistentStore, error) {
	repo := metadata.NewSQLiteRepository(db)

	salt, err := repo.Get(ctx, KeySalt)
	if err != nil {
		return nil, err
	}
	if salt == nil {
		salt = common.GenerateRandByteArray(cryptox.SaltSize)
		if err := repo.Set(ctx, KeySalt, salt); err != nil {
			return nil, err
		}
	}

	s := &PersistentStore{
		db:     db,
		key:    cryptox.DeriveKey(passphrase, salt),
		cache:  NewMemoryStore(),
		logger: logger,
	}

	blob, err := repo.Get(ctx, KeyCredential)
	if err != nil {
		return nil, err
	}
	if blob == nil {
		return s, nil
	}

	var c Credential
	if err := cryptox.Open(blob, s.key, &c); err != nil || c.Validate() != nil {
		s.logger.Warn(ctx, "credentials.discard", "reason", "undecryptable or partial credential")
		if err := repo.Delete(ctx, KeyCredential, KeySubjectID); err != nil {
			return nil, err
		}
		return s, nil
	}

	s.cache.cred = c
	s.logger.Debug(ctx, "credentials.loaded", "credential", c)
	return s, nil
}

func (s *PersistentStore) Get() Credential {
	return s.cache.Get()
}

func (s *PersistentStore) Set(ctx context.Context, c Credential) error {
	if err := c.Validate(); err != nil {
		return err
	}

	blob, err := cryptox.Seal(c, s.key)
	if err != nil {
		return fmt.Errorf("seal credential: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := metadata.NewSQLiteRepository(tx)
		if err := repo.Set(ctx, KeyCredential, blob); err != nil {
			return err
		}
		return repo.Set(ctx, KeySubjectID, []byte(c.SubjectID))
	})
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}

	return s.cache.Set(ctx, c)
}

func (s *PersistentStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_ = s.cache.Clear(ctx)

	if err := metadata.NewSQLiteRepository(s.db).Delete(ctx, KeyCredential, KeySubjectID); err != nil {
		return fmt.Errorf("clear credential: %w", err)
	}
	return nil
}
