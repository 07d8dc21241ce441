// Package badger implements store.Store on an embedded BadgerDB.
package badger

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/listenupapp/library-server/internal/domain"
	"github.com/listenupapp/library-server/internal/store"
)

// Entity prefixes.
const (
	authorPrefix = "author:"
	bookPrefix   = "book:"
	userPrefix   = "user:"
)

// Store wraps a Badger database instance.
type Store struct {
	db     *badger.DB
	logger *slog.Logger

	authors *Entity[domain.Author]
	books   *Entity[domain.Book]
	users   *Entity[domain.User]
}

var _ store.Store = (*Store)(nil)

// Options tunes how the database is opened.
type Options struct {
	// InMemory keeps everything in RAM; path is ignored. Used by tests.
	InMemory bool
}

// New opens (or creates) a Badger database at path.
func New(path string, logger *slog.Logger, o Options) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	opts := badger.DefaultOptions(path)
	if o.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil            // Disable Badger's internal logging
	opts.SyncWrites = true       // Ensure writes are synced to disk to prevent corruption on crashes
	opts.CompactL0OnClose = true // Compact L0 tables on close for faster startup

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.initEntities(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("badger database opened", "path", path, "in_memory", o.InMemory)
	return s, nil
}

func (s *Store) initEntities() error {
	var err error

	s.authors, err = NewEntity[domain.Author](s.db, authorPrefix, store.ErrAuthorNotFound)
	if err != nil {
		return err
	}
	s.authors.WithUniqueIndex("name", func(a *domain.Author) []string {
		return []string{a.Name}
	}, store.ErrAuthorExists)

	s.books, err = NewEntity[domain.Book](s.db, bookPrefix, store.ErrBookNotFound)
	if err != nil {
		return err
	}
	s.books.
		WithMultiIndex("author", func(b *domain.Book) []string {
			return []string{b.AuthorID}
		}, nil).
		WithMultiIndex("genre", func(b *domain.Book) []string {
			return b.Genres
		}, encodeValue)

	s.users, err = NewEntity[domain.User](s.db, userPrefix, store.ErrUserNotFound)
	if err != nil {
		return err
	}
	s.users.WithUniqueIndex("username", func(u *domain.User) []string {
		return []string{u.Username}
	}, store.ErrUserExists)

	return nil
}

// encodeValue makes free text safe inside a ':' separated key.
func encodeValue(v string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(v))
}

// Ping reports whether the database is open.
func (s *Store) Ping(_ context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger db is closed")
	}
	return s.db.View(func(*badger.Txn) error { return nil })
}

// Close releases sequences and closes the database.
func (s *Store) Close() error {
	s.logger.Info("closing badger database")

	var errs []error
	for _, c := range []interface{ Close() error }{s.authors, s.books, s.users} {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	errs = append(errs, s.db.Close())
	return errors.Join(errs...)
}
