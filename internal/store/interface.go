// Package store defines the persistence interface for the library server.
// Adapters live in the sqlite and badger subpackages and share the
// conformance suite in storetest.
package store

import (
	"context"

	"github.com/listenupapp/library-server/internal/domain"
)

// Store defines the interface for all persistence operations.
//
// Create methods assign an ID when the entity has none and initialise
// timestamps. Book reads return the Book with Author populated. List
// methods return entities in insertion order.
type Store interface {
	// Lifecycle
	Ping(ctx context.Context) error
	Close() error

	// Authors
	CreateAuthor(ctx context.Context, author *domain.Author) error
	GetAuthor(ctx context.Context, id string) (*domain.Author, error)
	GetAuthorByName(ctx context.Context, name string) (*domain.Author, error)
	UpdateAuthor(ctx context.Context, author *domain.Author) error
	ListAuthors(ctx context.Context) ([]*domain.Author, error)
	CountAuthors(ctx context.Context) (int, error)

	// Books
	CreateBook(ctx context.Context, book *domain.Book) error
	GetBook(ctx context.Context, id string) (*domain.Book, error)
	ListBooks(ctx context.Context, filter BookFilter) ([]*domain.Book, error)
	CountBooks(ctx context.Context) (int, error)
	// CountBooksByAuthors returns the number of books per author id in one
	// grouped query. Authors without books may be absent from the map.
	CountBooksByAuthors(ctx context.Context, authorIDs []string) (map[string]int, error)

	// Users
	CreateUser(ctx context.Context, user *domain.User) error
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
}

// BookFilter narrows ListBooks. Empty fields match everything; set fields
// AND together.
type BookFilter struct {
	AuthorID string
	Genre    string // matches books whose genre list contains it
}

// Matches reports whether b passes the filter.
func (f BookFilter) Matches(b *domain.Book) bool {
	if f.AuthorID != "" && b.AuthorID != f.AuthorID {
		return false
	}
	if f.Genre != "" && !b.HasGenre(f.Genre) {
		return false
	}
	return true
}
