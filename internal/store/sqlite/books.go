package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/listenupapp/library-server/internal/domain"
	"github.com/listenupapp/library-server/internal/id"
	"github.com/listenupapp/library-server/internal/store"
)

// countChunk bounds the IN list of one grouped count statement.
const countChunk = 500

// bookSelect joins the author so every read comes back populated.
// Must match the scan order in scanBook.
const bookSelect = `SELECT b.id, b.title, b.published, b.author_id, b.genres, b.created_at, b.updated_at,
	a.id, a.name, a.born, a.created_at, a.updated_at
	FROM books b JOIN authors a ON a.id = b.author_id`

func scanBook(scanner interface{ Scan(dest ...any) error }) (*domain.Book, error) {
	var (
		b          domain.Book
		genres     string
		createdAt  string
		updatedAt  string
		a          domain.Author
		born       sql.NullInt64
		aCreatedAt string
		aUpdatedAt string
	)
	err := scanner.Scan(
		&b.ID, &b.Title, &b.Published, &b.AuthorID, &genres, &createdAt, &updatedAt,
		&a.ID, &a.Name, &born, &aCreatedAt, &aUpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(genres), &b.Genres); err != nil {
		return nil, fmt.Errorf("decode genres: %w", err)
	}
	if b.Genres == nil {
		b.Genres = []string{}
	}
	if born.Valid {
		year := int(born.Int64)
		a.Born = &year
	}

	for _, ts := range []struct {
		dst *time.Time
		src string
	}{
		{&b.CreatedAt, createdAt}, {&b.UpdatedAt, updatedAt},
		{&a.CreatedAt, aCreatedAt}, {&a.UpdatedAt, aUpdatedAt},
	} {
		if *ts.dst, err = parseTime(ts.src); err != nil {
			return nil, err
		}
	}

	b.Author = &a
	return &b, nil
}

// CreateBook inserts a new book. Returns store.ErrAuthorNotFound when the
// referenced author does not exist.
func (s *Store) CreateBook(ctx context.Context, book *domain.Book) error {
	if book.ID == "" {
		newID, err := id.Generate(id.PrefixBook)
		if err != nil {
			return err
		}
		book.ID = newID
	}
	book.InitTimestamps()

	genres := book.Genres
	if genres == nil {
		genres = []string{}
	}
	genresJSON, err := json.Marshal(genres)
	if err != nil {
		return fmt.Errorf("encode genres: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO books (id, title, published, author_id, genres, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		book.ID, book.Title, book.Published, book.AuthorID, string(genresJSON),
		formatTime(book.CreatedAt), formatTime(book.UpdatedAt),
	)
	switch {
	case isForeignKeyViolation(err):
		return store.ErrAuthorNotFound
	case isUniqueViolation(err, "books.id"):
		return store.ErrAlreadyExists
	case err != nil:
		return fmt.Errorf("insert book: %w", err)
	}
	return nil
}

// GetBook retrieves a book by ID with its author populated.
func (s *Store) GetBook(ctx context.Context, bookID string) (*domain.Book, error) {
	row := s.db.QueryRowContext(ctx, bookSelect+` WHERE b.id = ?`, bookID)
	b, err := scanBook(row)
	if err != nil {
		return nil, notFound(err, store.ErrBookNotFound)
	}
	return b, nil
}

// ListBooks returns the books matching filter in insertion order.
func (s *Store) ListBooks(ctx context.Context, filter store.BookFilter) ([]*domain.Book, error) {
	query := bookSelect + ` WHERE 1 = 1`
	var args []any
	if filter.AuthorID != "" {
		query += ` AND b.author_id = ?`
		args = append(args, filter.AuthorID)
	}
	if filter.Genre != "" {
		query += ` AND EXISTS (SELECT 1 FROM json_each(b.genres) WHERE json_each.value = ?)`
		args = append(args, filter.Genre)
	}
	query += ` ORDER BY b.rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	books := make([]*domain.Book, 0)
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

// CountBooks returns the number of books.
func (s *Store) CountBooks(ctx context.Context) (int, error) {
	n, err := s.count(ctx, `SELECT COUNT(*) FROM books`)
	if err != nil {
		return 0, fmt.Errorf("count books: %w", err)
	}
	return n, nil
}

// CountBooksByAuthors groups book counts by author id. Large id lists are
// split into chunks, one GROUP BY statement each.
func (s *Store) CountBooksByAuthors(ctx context.Context, authorIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(authorIDs))

	for start := 0; start < len(authorIDs); start += countChunk {
		chunk := authorIDs[start:min(start+countChunk, len(authorIDs))]

		args := make([]any, len(chunk))
		for i, v := range chunk {
			args[i] = v
		}

		rows, err := s.db.QueryContext(ctx,
			`SELECT author_id, COUNT(*) FROM books WHERE author_id IN (`+placeholders(len(chunk))+`) GROUP BY author_id`,
			args...,
		)
		if err != nil {
			return nil, fmt.Errorf("count books by authors: %w", err)
		}

		for rows.Next() {
			var (
				authorID string
				n        int
			)
			if err := rows.Scan(&authorID, &n); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan book count: %w", err)
			}
			counts[authorID] = n
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("count books by authors: %w", err)
		}
	}

	return counts, nil
}
