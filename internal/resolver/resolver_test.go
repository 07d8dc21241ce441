package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/library-server/internal/domain"
	liberrors "github.com/listenupapp/library-server/internal/errors"
	"github.com/listenupapp/library-server/internal/loader"
	"github.com/listenupapp/library-server/internal/store"
	"github.com/listenupapp/library-server/internal/validation"
)

var errDown = errors.New("store is down")

func requireCode(t *testing.T, err error, kind liberrors.Kind, code liberrors.Code) *liberrors.Error {
	t.Helper()
	var e *liberrors.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, kind, e.Kind)
	assert.Equal(t, code, e.Code)
	return e
}

// fieldsOf returns the argument names a validation failure complains about.
func fieldsOf(e *liberrors.Error) []string {
	fe, ok := e.Details.(validation.FieldErrors)
	if !ok {
		return nil
	}
	return fe.Fields()
}

func TestQuery_Counts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	n, err := f.resolver.Query().BookCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	n, err = f.resolver.Query().AuthorCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestQuery_CountFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.failOn("CountBooks", errDown)
	f.store.failOn("CountAuthors", errDown)

	_, err := f.resolver.Query().BookCount(ctx)
	e := requireCode(t, err, liberrors.KindStoreQueryFailed, liberrors.CodeBookCountFailed)
	assert.Same(t, errDown, e.Cause())

	_, err = f.resolver.Query().AuthorCount(ctx)
	requireCode(t, err, liberrors.KindStoreQueryFailed, liberrors.CodeAuthorCountFailed)
}

func TestQuery_AllBooks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		author *string
		genre  *string
		want   []string
	}{
		{name: "no filter", want: []string{
			"Clean Code", "Agile software development", "Refactoring, edition 2", "Refactoring to patterns",
			"Practical Object-Oriented Design, An Agile Primer Using Ruby", "Crime and punishment", "Demons",
		}},
		{name: "by author", author: ptr("Fyodor Dostoevsky"), want: []string{"Crime and punishment", "Demons"}},
		{name: "author name is normalised", author: ptr("  Fyodor   Dostoevsky "), want: []string{"Crime and punishment", "Demons"}},
		{name: "by genre", genre: ptr("patterns"), want: []string{"Agile software development", "Refactoring to patterns"}},
		{name: "both filters", author: ptr("Robert Martin"), genre: ptr("refactoring"), want: []string{"Clean Code"}},
		{name: "empty filters ignored", author: ptr(""), genre: ptr(""), want: []string{
			"Clean Code", "Agile software development", "Refactoring, edition 2", "Refactoring to patterns",
			"Practical Object-Oriented Design, An Agile Primer Using Ruby", "Crime and punishment", "Demons",
		}},
		{name: "unknown genre", genre: ptr("poetry"), want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			books, err := f.resolver.Query().AllBooks(ctx, tt.author, tt.genre)
			require.NoError(t, err)

			titles := make([]string, 0, len(books))
			for _, b := range books {
				require.NotNil(t, b.Author, "books come populated")
				assert.Equal(t, b.AuthorID, b.Author.ID)
				titles = append(titles, b.Title)
			}
			assert.Equal(t, tt.want, titles)
		})
	}
}

func TestQuery_AllBooks_UnknownAuthorSkipsBookQuery(t *testing.T) {
	f := newFixture(t)

	books, err := f.resolver.Query().AllBooks(context.Background(), ptr("Nobody Atall"), nil)
	require.NoError(t, err)
	assert.NotNil(t, books)
	assert.Empty(t, books)
	assert.Zero(t, f.store.count("ListBooks"))
}

func TestQuery_AllBooks_Failures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.store.failOn("ListBooks", errDown)
	_, err := f.resolver.Query().AllBooks(ctx, nil, nil)
	requireCode(t, err, liberrors.KindStoreQueryFailed, liberrors.CodeAllBooksQueryFailed)

	f.store.failOn("GetAuthorByName", errDown)
	_, err = f.resolver.Query().AllBooks(ctx, ptr("Martin Fowler"), nil)
	requireCode(t, err, liberrors.KindStoreQueryFailed, liberrors.CodeAllBooksQueryFailed)
}

func TestQuery_AllAuthors(t *testing.T) {
	f := newFixture(t)

	authors, err := f.resolver.Query().AllAuthors(context.Background())
	require.NoError(t, err)
	require.Len(t, authors, 5)
	assert.Equal(t, "Robert Martin", authors[0].Name)
	assert.Equal(t, "Sandi Metz", authors[4].Name)
	assert.Zero(t, f.store.count("CountBooksByAuthors"), "book counts are lazy")

	f.store.failOn("ListAuthors", errDown)
	_, err = f.resolver.Query().AllAuthors(context.Background())
	requireCode(t, err, liberrors.KindStoreQueryFailed, liberrors.CodeAllAuthorsQueryFailed)
}

func TestQuery_Me(t *testing.T) {
	f := newFixture(t)

	me, err := f.resolver.Query().Me(context.Background())
	require.NoError(t, err)
	assert.Nil(t, me)

	ctx := f.authed(t)
	me, err = f.resolver.Query().Me(ctx)
	require.NoError(t, err)
	require.NotNil(t, me)
	assert.Equal(t, "mluukkai", me.Username)
}

func TestAuthor_BookCountBatchesAcrossAuthors(t *testing.T) {
	f := newFixture(t)
	authors, err := f.resolver.Query().AllAuthors(context.Background())
	require.NoError(t, err)

	ctx := loader.With(context.Background(), loader.NewBookCounts(f.store, nil))
	deferreds := make([]*loader.Deferred[int], len(authors))
	for i, a := range authors {
		deferreds[i] = f.resolver.Author().BookCount(ctx, a)
	}

	counts := make([]int, len(authors))
	for i, d := range deferreds {
		counts[i], err = d.Await(ctx)
		require.NoError(t, err)
	}

	assert.Equal(t, []int{2, 1, 2, 1, 1}, counts)
	assert.Equal(t, 1, f.store.count("CountBooksByAuthors"))
}

func TestAuthor_BookCountSingleAuthor(t *testing.T) {
	f := newFixture(t)
	fowler, err := f.store.Store.GetAuthorByName(context.Background(), "Martin Fowler")
	require.NoError(t, err)

	ctx := loader.With(context.Background(), loader.NewBookCounts(f.store, nil))
	n, err := f.resolver.Author().BookCount(ctx, fowler).Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, [][]string{{fowler.ID}}, f.store.batches)
}

func TestAuthor_BookCountFailure(t *testing.T) {
	f := newFixture(t)
	f.store.failOn("CountBooksByAuthors", errDown)

	ctx := loader.With(context.Background(), loader.NewBookCounts(f.store, nil))
	_, err := f.resolver.Author().BookCount(ctx, &domain.Author{Record: domain.Record{ID: "author-x"}}).Await(ctx)
	requireCode(t, err, liberrors.KindBatchFailed, liberrors.CodeBookCountFailed)
	assert.ErrorIs(t, err, errDown)
}

func TestAuthor_BookCountWithoutLoader(t *testing.T) {
	f := newFixture(t)

	_, err := f.resolver.Author().BookCount(context.Background(), &domain.Author{}).Await(context.Background())
	assert.ErrorIs(t, err, liberrors.ErrInternal)
}

func TestMutation_CreateUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.resolver.Mutation().CreateUser(ctx, " mluukkai ", "refactoring")
	require.NoError(t, err)
	assert.Equal(t, "mluukkai", u.Username)
	assert.NotEmpty(t, u.ID)

	_, err = f.resolver.Mutation().CreateUser(ctx, "mluukkai", "crime")
	e := requireCode(t, err, liberrors.KindInputValidation, liberrors.CodeBadUserInput)
	assert.Equal(t, "mluukkai", e.InvalidArgs, "the rejected username is reported")
	assert.Equal(t, []string{"username"}, fieldsOf(e))
	assert.ErrorIs(t, err, store.ErrUserExists)
}

func TestMutation_CreateUserValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.resolver.Mutation().CreateUser(context.Background(), "ab", "refactoring")
	e := requireCode(t, err, liberrors.KindInputValidation, liberrors.CodeBadUserInput)
	assert.Equal(t, "ab", e.InvalidArgs)
	assert.Equal(t, []string{"username"}, fieldsOf(e))
	assert.Zero(t, f.store.count("CreateUser"))
}

func TestMutation_CreateUserStoreFailure(t *testing.T) {
	f := newFixture(t)
	f.store.failOn("CreateUser", errDown)

	_, err := f.resolver.Mutation().CreateUser(context.Background(), "mluukkai", "refactoring")
	e := requireCode(t, err, liberrors.KindMutationFailed, liberrors.CodeBadUserInput)
	assert.Equal(t, "mluukkai", e.InvalidArgs)
}

func TestMutation_Login(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u, err := f.resolver.Mutation().CreateUser(ctx, "mluukkai", "refactoring")
	require.NoError(t, err)

	tok, err := f.resolver.Mutation().Login(ctx, "mluukkai", "secret")
	require.NoError(t, err)
	claims, err := f.tokens.Verify(tok.Value)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID)
	assert.Equal(t, "mluukkai", claims.Username)

	for name, args := range map[string][2]string{
		"wrong password": {"mluukkai", "hunter2"},
		"unknown user":   {"nobody", "secret"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.resolver.Mutation().Login(ctx, args[0], args[1])
			e := requireCode(t, err, liberrors.KindUnauthenticated, liberrors.CodeBadUserInput)
			assert.Equal(t, "wrong credentials", e.Message)
		})
	}
}

func TestMutation_AddBook(t *testing.T) {
	f := newFixture(t)
	ctx := f.authed(t)

	sub, err := f.events.Subscribe(ctx, "BOOK_ADDED")
	require.NoError(t, err)

	book, err := f.resolver.Mutation().AddBook(ctx, "Pimeyden tango", 1997, "Reijo Mäki", []string{"crime", " crime "})
	require.NoError(t, err)
	require.NotNil(t, book.Author)
	assert.Equal(t, "Reijo Mäki", book.Author.Name)
	assert.Nil(t, book.Author.Born)
	assert.Equal(t, []string{"crime", "crime"}, book.Genres)

	select {
	case got := <-sub.C():
		assert.Same(t, book, got)
	case <-time.After(time.Second):
		t.Fatal("no BOOK_ADDED event")
	}

	// A second book by the same author reuses the record.
	again, err := f.resolver.Mutation().AddBook(ctx, "Kolmas nainen", 2000, "Reijo Mäki", nil)
	require.NoError(t, err)
	assert.Equal(t, book.Author.ID, again.Author.ID)
	assert.Equal(t, 1, f.store.count("CreateAuthor"))

	n, err := f.resolver.Query().AuthorCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}

func TestMutation_AddBookRefreshesBookCount(t *testing.T) {
	f := newFixture(t)
	ctx := loader.With(f.authed(t), loader.NewBookCounts(f.store, nil))

	book, err := f.resolver.Mutation().AddBook(ctx, "Pimeyden tango", 1997, "Reijo Mäki", nil)
	require.NoError(t, err)
	n, err := f.resolver.Author().BookCount(ctx, book.Author).Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	book, err = f.resolver.Mutation().AddBook(ctx, "Kolmas nainen", 2000, "Reijo Mäki", nil)
	require.NoError(t, err)
	n, err = f.resolver.Author().BookCount(ctx, book.Author).Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "the cached count is dropped when the author gains a book")
}

func TestMutation_AddBookRequiresUser(t *testing.T) {
	f := newFixture(t)
	sub, err := f.events.Subscribe(context.Background(), "BOOK_ADDED")
	require.NoError(t, err)

	_, err = f.resolver.Mutation().AddBook(context.Background(), "Pimeyden tango", 1997, "Reijo Mäki", nil)
	requireCode(t, err, liberrors.KindUnauthenticated, liberrors.CodeBadUserInput)
	assert.Zero(t, f.store.total(), "no store access")

	select {
	case <-sub.C():
		t.Fatal("unexpected event")
	default:
	}
}

func TestMutation_AddBookFailures(t *testing.T) {
	tests := []struct {
		name    string
		title   string
		author  string
		failOn  string
		wantArg string
	}{
		{name: "short title", title: "Demo", author: "Reijo Mäki", wantArg: "title"},
		{name: "short author", title: "Pimeyden tango", author: "Mä", wantArg: "author"},
		{name: "author lookup", title: "Pimeyden tango", author: "Reijo Mäki", failOn: "GetAuthorByName"},
		{name: "author create", title: "Pimeyden tango", author: "Reijo Mäki", failOn: "CreateAuthor"},
		{name: "book save", title: "Pimeyden tango", author: "Reijo Mäki", failOn: "CreateBook"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := f.authed(t)
			if tt.failOn != "" {
				f.store.failOn(tt.failOn, errDown)
			}
			sub, err := f.events.Subscribe(ctx, "BOOK_ADDED")
			require.NoError(t, err)

			_, err = f.resolver.Mutation().AddBook(ctx, tt.title, 1997, tt.author, nil)
			if tt.wantArg != "" {
				e := requireCode(t, err, liberrors.KindInputValidation, liberrors.CodeAddBookFailed)
				assert.Equal(t, []string{tt.wantArg}, fieldsOf(e))
			} else {
				requireCode(t, err, liberrors.KindMutationFailed, liberrors.CodeAddBookFailed)
				assert.ErrorIs(t, err, errDown)
			}

			select {
			case <-sub.C():
				t.Fatal("failed addBook must not publish")
			default:
			}
		})
	}
}

func TestMutation_EditAuthor(t *testing.T) {
	f := newFixture(t)
	ctx := f.authed(t)

	a, err := f.resolver.Mutation().EditAuthor(ctx, "Sandi Metz", 1958)
	require.NoError(t, err)
	require.NotNil(t, a.Born)
	assert.Equal(t, 1958, *a.Born)

	stored, err := f.store.Store.GetAuthorByName(ctx, "Sandi Metz")
	require.NoError(t, err)
	assert.Equal(t, 1958, *stored.Born)
}

func TestMutation_EditAuthorNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := f.authed(t)
	before, err := f.store.Store.ListAuthors(ctx)
	require.NoError(t, err)

	_, err = f.resolver.Mutation().EditAuthor(ctx, "Nobody Atall", 1900)
	requireCode(t, err, liberrors.KindNotFound, liberrors.CodeAuthorNotFound)
	assert.Zero(t, f.store.count("UpdateAuthor"))

	after, err := f.store.Store.ListAuthors(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	_, err = f.resolver.Mutation().EditAuthor(ctx, "   ", 1900)
	requireCode(t, err, liberrors.KindNotFound, liberrors.CodeAuthorNotFound)
}

func TestMutation_EditAuthorRequiresUser(t *testing.T) {
	f := newFixture(t)

	_, err := f.resolver.Mutation().EditAuthor(context.Background(), "Sandi Metz", 1958)
	requireCode(t, err, liberrors.KindUnauthenticated, liberrors.CodeBadUserInput)
	assert.Zero(t, f.store.total())
}

func TestMutation_EditAuthorStoreFailure(t *testing.T) {
	f := newFixture(t)
	ctx := f.authed(t)
	f.store.failOn("UpdateAuthor", errDown)

	_, err := f.resolver.Mutation().EditAuthor(ctx, "Sandi Metz", 1958)
	requireCode(t, err, liberrors.KindMutationFailed, liberrors.CodeEditAuthorFailed)
}

func TestSubscription_BookAdded(t *testing.T) {
	f := newFixture(t)
	ctx := f.authed(t)

	subCtx, cancel := context.WithCancel(context.Background())
	first, err := f.resolver.Subscription().BookAdded(subCtx)
	require.NoError(t, err)
	second, err := f.resolver.Subscription().BookAdded(context.Background())
	require.NoError(t, err)

	book, err := f.resolver.Mutation().AddBook(ctx, "Pimeyden tango", 1997, "Reijo Mäki", []string{"crime"})
	require.NoError(t, err)

	for _, ch := range []<-chan *domain.Book{first, second} {
		select {
		case got := <-ch:
			assert.Equal(t, book.ID, got.ID)
		case <-time.After(time.Second):
			t.Fatal("subscriber missed BOOK_ADDED")
		}
	}

	cancel()
	select {
	case _, open := <-first:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("cancelled subscription stayed open")
	}
	assert.Equal(t, 1, f.events.Subscribers("BOOK_ADDED"))
}

func TestSubscription_AfterShutdown(t *testing.T) {
	f := newFixture(t)
	f.events.Shutdown()

	_, err := f.resolver.Subscription().BookAdded(context.Background())
	requireCode(t, err, liberrors.KindInternal, liberrors.CodeInternalServerError)
}
