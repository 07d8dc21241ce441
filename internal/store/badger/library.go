package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/listenupapp/library-server/internal/domain"
	"github.com/listenupapp/library-server/internal/id"
	"github.com/listenupapp/library-server/internal/store"
)

func assignID(current *string, prefix string) error {
	if *current != "" {
		return nil
	}
	newID, err := id.Generate(prefix)
	if err != nil {
		return err
	}
	*current = newID
	return nil
}

// CreateAuthor stores a new author.
func (s *Store) CreateAuthor(ctx context.Context, author *domain.Author) error {
	if err := assignID(&author.ID, id.PrefixAuthor); err != nil {
		return err
	}
	author.InitTimestamps()
	return s.authors.Create(ctx, author.ID, author)
}

// GetAuthor retrieves an author by ID.
func (s *Store) GetAuthor(ctx context.Context, authorID string) (*domain.Author, error) {
	return s.authors.Get(ctx, authorID)
}

// GetAuthorByName retrieves an author by exact name.
func (s *Store) GetAuthorByName(ctx context.Context, name string) (*domain.Author, error) {
	return s.authors.GetByIndex(ctx, "name", name)
}

// UpdateAuthor replaces a stored author.
func (s *Store) UpdateAuthor(ctx context.Context, author *domain.Author) error {
	author.Touch()
	return s.authors.Update(ctx, author.ID, author)
}

// ListAuthors returns every author in insertion order.
func (s *Store) ListAuthors(ctx context.Context) ([]*domain.Author, error) {
	authors, err := Collect(s.authors.List(ctx))
	if err != nil {
		return nil, fmt.Errorf("list authors: %w", err)
	}
	return authors, nil
}

// CountAuthors returns the number of authors.
func (s *Store) CountAuthors(ctx context.Context) (int, error) {
	return s.authors.Count(ctx)
}

// CreateBook stores a new book after checking its author exists.
func (s *Store) CreateBook(ctx context.Context, book *domain.Book) error {
	if _, err := s.authors.Get(ctx, book.AuthorID); err != nil {
		return err
	}
	if err := assignID(&book.ID, id.PrefixBook); err != nil {
		return err
	}
	if book.Genres == nil {
		book.Genres = []string{}
	}
	book.InitTimestamps()
	return s.books.Create(ctx, book.ID, book)
}

// GetBook retrieves a book with its author populated.
func (s *Store) GetBook(ctx context.Context, bookID string) (*domain.Book, error) {
	b, err := s.books.Get(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if err := s.populate(ctx, []*domain.Book{b}); err != nil {
		return nil, err
	}
	return b, nil
}

// ListBooks walks the narrowest index the filter allows and applies the rest
// of the filter in memory.
func (s *Store) ListBooks(ctx context.Context, filter store.BookFilter) ([]*domain.Book, error) {
	seq := s.books.List(ctx)
	switch {
	case filter.AuthorID != "":
		seq = s.books.ListByIndex(ctx, "author", filter.AuthorID)
	case filter.Genre != "":
		seq = s.books.ListByIndex(ctx, "genre", filter.Genre)
	}

	books := make([]*domain.Book, 0)
	for b, err := range seq {
		if err != nil {
			return nil, fmt.Errorf("list books: %w", err)
		}
		if filter.Matches(b) {
			books = append(books, b)
		}
	}

	if err := s.populate(ctx, books); err != nil {
		return nil, err
	}
	return books, nil
}

// populate attaches authors, fetching each distinct author once.
func (s *Store) populate(ctx context.Context, books []*domain.Book) error {
	authors := make(map[string]*domain.Author)
	for _, b := range books {
		a, ok := authors[b.AuthorID]
		if !ok {
			var err error
			a, err = s.authors.Get(ctx, b.AuthorID)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("book %s references missing author %s: %w", b.ID, b.AuthorID, err)
				}
				return err
			}
			authors[b.AuthorID] = a
		}
		// Books must not share an Author value.
		b.Author = a.Clone()
	}
	return nil
}

// CountBooks returns the number of books.
func (s *Store) CountBooks(ctx context.Context) (int, error) {
	return s.books.Count(ctx)
}

// CountBooksByAuthors counts each author's author-index keys inside one
// read transaction.
func (s *Store) CountBooksByAuthors(ctx context.Context, authorIDs []string) (map[string]int, error) {
	counts, err := s.books.CountByIndexValues(ctx, "author", authorIDs)
	if err != nil {
		return nil, fmt.Errorf("count books by authors: %w", err)
	}
	return counts, nil
}

// CreateUser stores a new user.
func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	if err := assignID(&user.ID, id.PrefixUser); err != nil {
		return err
	}
	user.InitTimestamps()
	return s.users.Create(ctx, user.ID, user)
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	return s.users.Get(ctx, userID)
}

// GetUserByUsername retrieves a user by exact username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return s.users.GetByIndex(ctx, "username", username)
}
