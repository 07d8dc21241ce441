package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/listenupapp/library-server/internal/domain"
	"github.com/listenupapp/library-server/internal/id"
	"github.com/listenupapp/library-server/internal/store"
)

// authorColumns must match the scan order in scanAuthor.
const authorColumns = `id, name, born, created_at, updated_at`

func scanAuthor(scanner interface{ Scan(dest ...any) error }) (*domain.Author, error) {
	var (
		a         domain.Author
		born      sql.NullInt64
		createdAt string
		updatedAt string
	)
	if err := scanner.Scan(&a.ID, &a.Name, &born, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if born.Valid {
		year := int(born.Int64)
		a.Born = &year
	}

	var err error
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAuthor inserts a new author.
// Returns store.ErrAuthorExists if the name is already taken.
func (s *Store) CreateAuthor(ctx context.Context, author *domain.Author) error {
	if author.ID == "" {
		newID, err := id.Generate(id.PrefixAuthor)
		if err != nil {
			return err
		}
		author.ID = newID
	}
	author.InitTimestamps()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO authors (`+authorColumns+`) VALUES (?, ?, ?, ?, ?)`,
		author.ID, author.Name, nullInt(author.Born),
		formatTime(author.CreatedAt), formatTime(author.UpdatedAt),
	)
	switch {
	case isUniqueViolation(err, "authors.name"):
		return store.ErrAuthorExists
	case isUniqueViolation(err, "authors.id"):
		return store.ErrAlreadyExists
	case err != nil:
		return fmt.Errorf("insert author: %w", err)
	}
	return nil
}

// GetAuthor retrieves an author by ID.
func (s *Store) GetAuthor(ctx context.Context, authorID string) (*domain.Author, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+authorColumns+` FROM authors WHERE id = ?`, authorID)
	a, err := scanAuthor(row)
	if err != nil {
		return nil, notFound(err, store.ErrAuthorNotFound)
	}
	return a, nil
}

// GetAuthorByName retrieves an author by exact name.
func (s *Store) GetAuthorByName(ctx context.Context, name string) (*domain.Author, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+authorColumns+` FROM authors WHERE name = ?`, name)
	a, err := scanAuthor(row)
	if err != nil {
		return nil, notFound(err, store.ErrAuthorNotFound)
	}
	return a, nil
}

// UpdateAuthor persists the author's name and birth year.
func (s *Store) UpdateAuthor(ctx context.Context, author *domain.Author) error {
	author.Touch()

	res, err := s.db.ExecContext(ctx,
		`UPDATE authors SET name = ?, born = ?, updated_at = ? WHERE id = ?`,
		author.Name, nullInt(author.Born), formatTime(author.UpdatedAt), author.ID,
	)
	if isUniqueViolation(err, "authors.name") {
		return store.ErrAuthorExists
	}
	if err != nil {
		return fmt.Errorf("update author: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update author: %w", err)
	}
	if n == 0 {
		return store.ErrAuthorNotFound
	}
	return nil
}

// ListAuthors returns every author in insertion order.
func (s *Store) ListAuthors(ctx context.Context) ([]*domain.Author, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+authorColumns+` FROM authors ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list authors: %w", err)
	}
	defer rows.Close()

	authors := make([]*domain.Author, 0)
	for rows.Next() {
		a, err := scanAuthor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan author: %w", err)
		}
		authors = append(authors, a)
	}
	return authors, rows.Err()
}

// CountAuthors returns the number of authors.
func (s *Store) CountAuthors(ctx context.Context) (int, error) {
	n, err := s.count(ctx, `SELECT COUNT(*) FROM authors`)
	if err != nil {
		return 0, fmt.Errorf("count authors: %w", err)
	}
	return n, nil
}
