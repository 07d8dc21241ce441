// Package storetest holds the behaviour every store.Store adapter must share.
// Adapter packages call Run from their own tests.
package storetest

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/library-server/internal/domain"
	"github.com/listenupapp/library-server/internal/store"
)

// Factory returns an empty store. It should register its own cleanup.
type Factory func(t *testing.T) store.Store

// Run executes the conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"Ping", testPing},
		{"CreateAuthorAssignsID", testCreateAuthorAssignsID},
		{"GetAuthorByName", testGetAuthorByName},
		{"DuplicateAuthorName", testDuplicateAuthorName},
		{"UpdateAuthor", testUpdateAuthor},
		{"UpdateMissingAuthor", testUpdateMissingAuthor},
		{"ListAuthorsInsertionOrder", testListAuthorsInsertionOrder},
		{"CreateBookRequiresAuthor", testCreateBookRequiresAuthor},
		{"GetBookPopulated", testGetBookPopulated},
		{"ListBooksFilters", testListBooksFilters},
		{"GenresPreserved", testGenresPreserved},
		{"Counts", testCounts},
		{"CountBooksByAuthors", testCountBooksByAuthors},
		{"Users", testUsers},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

func mustAuthor(t *testing.T, s store.Store, name string) *domain.Author {
	t.Helper()
	a := &domain.Author{Name: name}
	require.NoError(t, s.CreateAuthor(context.Background(), a))
	return a
}

func mustBook(t *testing.T, s store.Store, title string, author *domain.Author, genres ...string) *domain.Book {
	t.Helper()
	b := &domain.Book{Title: title, Published: 2000, AuthorID: author.ID, Genres: genres}
	require.NoError(t, s.CreateBook(context.Background(), b))
	return b
}

func titles(books []*domain.Book) []string {
	out := make([]string, len(books))
	for i, b := range books {
		out[i] = b.Title
	}
	return out
}

func testPing(t *testing.T, s store.Store) {
	assert.NoError(t, s.Ping(context.Background()))
}

func testCreateAuthorAssignsID(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := mustAuthor(t, s, "Robert Martin")

	assert.True(t, strings.HasPrefix(a.ID, "author-"), a.ID)
	assert.False(t, a.CreatedAt.IsZero())

	got, err := s.GetAuthor(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Robert Martin", got.Name)
	assert.Nil(t, got.Born)

	_, err = s.GetAuthor(ctx, "author-missing")
	assert.ErrorIs(t, err, store.ErrAuthorNotFound)
}

func testGetAuthorByName(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := mustAuthor(t, s, "Martin Fowler")

	got, err := s.GetAuthorByName(ctx, "Martin Fowler")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	_, err = s.GetAuthorByName(ctx, "Nobody Atall")
	assert.ErrorIs(t, err, store.ErrAuthorNotFound)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testDuplicateAuthorName(t *testing.T, s store.Store) {
	mustAuthor(t, s, "Sandi Metz")

	err := s.CreateAuthor(context.Background(), &domain.Author{Name: "Sandi Metz"})
	assert.ErrorIs(t, err, store.ErrAuthorExists)

	n, err := s.CountAuthors(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func testUpdateAuthor(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := mustAuthor(t, s, "Fyodor Dostoevsky")

	a.SetBorn(1821)
	require.NoError(t, s.UpdateAuthor(ctx, a))

	got, err := s.GetAuthorByName(ctx, "Fyodor Dostoevsky")
	require.NoError(t, err)
	require.NotNil(t, got.Born)
	assert.Equal(t, 1821, *got.Born)
	assert.Equal(t, a.ID, got.ID)
}

func testUpdateMissingAuthor(t *testing.T, s store.Store) {
	born := 1900
	err := s.UpdateAuthor(context.Background(), &domain.Author{
		Record: domain.Record{ID: "author-ghost"},
		Name:   "Ghost Writer",
		Born:   &born,
	})
	assert.ErrorIs(t, err, store.ErrAuthorNotFound)

	n, err := s.CountAuthors(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testListAuthorsInsertionOrder(t *testing.T, s store.Store) {
	names := []string{"Robert Martin", "Martin Fowler", "Fyodor Dostoevsky", "Joshua Kerievsky", "Sandi Metz"}
	for _, n := range names {
		mustAuthor(t, s, n)
	}

	authors, err := s.ListAuthors(context.Background())
	require.NoError(t, err)

	got := make([]string, len(authors))
	for i, a := range authors {
		got[i] = a.Name
	}
	assert.Equal(t, names, got)
}

func testCreateBookRequiresAuthor(t *testing.T, s store.Store) {
	err := s.CreateBook(context.Background(), &domain.Book{
		Title:     "Orphaned",
		Published: 2001,
		AuthorID:  "author-missing",
	})
	assert.ErrorIs(t, err, store.ErrAuthorNotFound)

	n, err := s.CountBooks(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testGetBookPopulated(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := mustAuthor(t, s, "Robert Martin")
	b := mustBook(t, s, "Clean Code", a, "refactoring")

	assert.True(t, strings.HasPrefix(b.ID, "book-"), b.ID)

	got, err := s.GetBook(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "Clean Code", got.Title)
	assert.Equal(t, 2000, got.Published)
	require.NotNil(t, got.Author)
	assert.Equal(t, "Robert Martin", got.Author.Name)
	assert.Equal(t, a.ID, got.Author.ID)

	_, err = s.GetBook(ctx, "book-missing")
	assert.ErrorIs(t, err, store.ErrBookNotFound)
}

func testListBooksFilters(t *testing.T, s store.Store) {
	ctx := context.Background()
	martin := mustAuthor(t, s, "Robert Martin")
	fowler := mustAuthor(t, s, "Martin Fowler")
	fyodor := mustAuthor(t, s, "Fyodor Dostoevsky")

	mustBook(t, s, "Clean Code", martin, "refactoring")
	mustBook(t, s, "Agile software development", martin, "agile", "patterns", "design")
	mustBook(t, s, "Refactoring, edition 2", fowler, "refactoring")
	mustBook(t, s, "Crime and punishment", fyodor, "classic", "crime")
	mustBook(t, s, "Demons", fyodor, "classic", "revolution")

	tests := []struct {
		name   string
		filter store.BookFilter
		want   []string
	}{
		{"all", store.BookFilter{}, []string{
			"Clean Code", "Agile software development", "Refactoring, edition 2", "Crime and punishment", "Demons",
		}},
		{"author", store.BookFilter{AuthorID: martin.ID}, []string{"Clean Code", "Agile software development"}},
		{"genre", store.BookFilter{Genre: "refactoring"}, []string{"Clean Code", "Refactoring, edition 2"}},
		{"author and genre", store.BookFilter{AuthorID: fyodor.ID, Genre: "crime"}, []string{"Crime and punishment"}},
		{"no match", store.BookFilter{AuthorID: fowler.ID, Genre: "classic"}, []string{}},
		{"unknown genre", store.BookFilter{Genre: "poetry"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			books, err := s.ListBooks(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, titles(books))
			for _, b := range books {
				require.NotNil(t, b.Author, b.Title)
				assert.Equal(t, b.AuthorID, b.Author.ID)
			}
		})
	}
}

func testGenresPreserved(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := mustAuthor(t, s, "Sandi Metz")
	tagged := mustBook(t, s, "Practical Object-Oriented Design", a, "ruby", "design", "ruby")
	bare := mustBook(t, s, "Untagged volume", a)

	got, err := s.GetBook(ctx, tagged.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"ruby", "design", "ruby"}, got.Genres)

	got, err = s.GetBook(ctx, bare.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.Genres)
	assert.Empty(t, got.Genres)

	// Duplicate tags do not duplicate the book in a genre listing.
	books, err := s.ListBooks(ctx, store.BookFilter{Genre: "ruby"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Practical Object-Oriented Design"}, titles(books))
}

func testCounts(t *testing.T, s store.Store) {
	ctx := context.Background()

	n, err := s.CountBooks(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	a := mustAuthor(t, s, "Joshua Kerievsky")
	mustBook(t, s, "Refactoring to patterns", a, "refactoring", "patterns")

	n, err = s.CountBooks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.CountAuthors(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func testCountBooksByAuthors(t *testing.T, s store.Store) {
	ctx := context.Background()
	fowler := mustAuthor(t, s, "Martin Fowler")
	metz := mustAuthor(t, s, "Sandi Metz")
	martin := mustAuthor(t, s, "Robert Martin")

	mustBook(t, s, "Refactoring, edition 2", fowler)
	mustBook(t, s, "Patterns of Enterprise Application Architecture", fowler)
	mustBook(t, s, "UML Distilled", fowler)
	mustBook(t, s, "Clean Code", martin)

	counts, err := s.CountBooksByAuthors(ctx, []string{fowler.ID, metz.ID, martin.ID, "author-missing"})
	require.NoError(t, err)

	assert.Equal(t, 3, counts[fowler.ID])
	assert.Equal(t, 1, counts[martin.ID])
	assert.Zero(t, counts[metz.ID])
	assert.Zero(t, counts["author-missing"])

	counts, err = s.CountBooksByAuthors(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := &domain.User{Username: "mluukkai", FavoriteGenre: "refactoring"}
	require.NoError(t, s.CreateUser(ctx, u))
	assert.True(t, strings.HasPrefix(u.ID, "user-"), u.ID)

	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "mluukkai", got.Username)
	assert.Equal(t, "refactoring", got.FavoriteGenre)

	got, err = s.GetUserByUsername(ctx, "mluukkai")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	err = s.CreateUser(ctx, &domain.User{Username: "mluukkai", FavoriteGenre: "crime"})
	assert.ErrorIs(t, err, store.ErrUserExists)
	assert.ErrorIs(t, err, store.ErrAlreadyExists)

	_, err = s.GetUser(ctx, "user-missing")
	assert.ErrorIs(t, err, store.ErrUserNotFound)
	_, err = s.GetUserByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, store.ErrUserNotFound)
}
