// Package seed loads the sample library used by the seed command and tests.
package seed

import (
	"context"
	"errors"
	"fmt"

	"github.com/listenupapp/library-server/internal/domain"
	"github.com/listenupapp/library-server/internal/store"
)

// Author is a sample author. Born is zero when unknown.
type Author struct {
	Name string
	Born int
}

// Book is a sample book naming its author.
type Book struct {
	Title     string
	Published int
	Author    string
	Genres    []string
}

// Authors is the sample author list, in insertion order.
var Authors = []Author{
	{Name: "Robert Martin", Born: 1952},
	{Name: "Martin Fowler", Born: 1963},
	{Name: "Fyodor Dostoevsky", Born: 1821},
	{Name: "Joshua Kerievsky"},
	{Name: "Sandi Metz"},
}

// Books is the sample book list, in insertion order.
var Books = []Book{
	{Title: "Clean Code", Published: 2008, Author: "Robert Martin", Genres: []string{"refactoring"}},
	{Title: "Agile software development", Published: 2002, Author: "Robert Martin", Genres: []string{"agile", "patterns", "design"}},
	{Title: "Refactoring, edition 2", Published: 2018, Author: "Martin Fowler", Genres: []string{"refactoring"}},
	{Title: "Refactoring to patterns", Published: 2008, Author: "Joshua Kerievsky", Genres: []string{"refactoring", "patterns"}},
	{Title: "Practical Object-Oriented Design, An Agile Primer Using Ruby", Published: 2012, Author: "Sandi Metz", Genres: []string{"refactoring", "design"}},
	{Title: "Crime and punishment", Published: 1866, Author: "Fyodor Dostoevsky", Genres: []string{"classic", "crime"}},
	{Title: "Demons", Published: 1872, Author: "Fyodor Dostoevsky", Genres: []string{"classic", "revolution"}},
}

// Result counts what Load created.
type Result struct {
	Authors int
	Books   int
}

// Load inserts the sample data. Authors that already exist are reused, so
// running it twice duplicates books but not authors.
func Load(ctx context.Context, s store.Store) (Result, error) {
	var res Result
	byName := make(map[string]*domain.Author, len(Authors))

	for _, a := range Authors {
		author, err := s.GetAuthorByName(ctx, a.Name)
		if errors.Is(err, store.ErrAuthorNotFound) {
			author = &domain.Author{Name: a.Name}
			if a.Born != 0 {
				author.SetBorn(a.Born)
			}
			if err = s.CreateAuthor(ctx, author); err != nil {
				return res, fmt.Errorf("create author %q: %w", a.Name, err)
			}
			res.Authors++
		} else if err != nil {
			return res, fmt.Errorf("find author %q: %w", a.Name, err)
		}
		byName[a.Name] = author
	}

	for _, b := range Books {
		author, ok := byName[b.Author]
		if !ok {
			return res, fmt.Errorf("book %q names unknown author %q", b.Title, b.Author)
		}
		book := &domain.Book{
			Title:     b.Title,
			Published: b.Published,
			AuthorID:  author.ID,
			Genres:    append([]string(nil), b.Genres...),
		}
		if err := s.CreateBook(ctx, book); err != nil {
			return res, fmt.Errorf("create book %q: %w", b.Title, err)
		}
		res.Books++
	}
	return res, nil
}
