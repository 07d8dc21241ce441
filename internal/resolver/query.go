package resolver

import (
	"context"
	"errors"

	"github.com/listenupapp/library-server/internal/domain"
	liberrors "github.com/listenupapp/library-server/internal/errors"
	"github.com/listenupapp/library-server/internal/normalize"
	"github.com/listenupapp/library-server/internal/store"
)

type queryResolver struct{ *Resolver }

func (r *queryResolver) Me(ctx context.Context) (*domain.User, error) {
	return CurrentUser(ctx), nil
}

func (r *queryResolver) BookCount(ctx context.Context) (int, error) {
	n, err := r.store.CountBooks(ctx)
	if err != nil {
		return 0, liberrors.Wrap(err, liberrors.KindStoreQueryFailed, liberrors.CodeBookCountFailed, "counting books failed")
	}
	return n, nil
}

func (r *queryResolver) AuthorCount(ctx context.Context) (int, error) {
	n, err := r.store.CountAuthors(ctx)
	if err != nil {
		return 0, liberrors.Wrap(err, liberrors.KindStoreQueryFailed, liberrors.CodeAuthorCountFailed, "counting authors failed")
	}
	return n, nil
}

// AllBooks filters by author display name and genre. Empty filters are
// ignored, so allBooks(author: "") lists everything.
func (r *queryResolver) AllBooks(ctx context.Context, author, genre *string) ([]*domain.Book, error) {
	var filter store.BookFilter

	if name := deref(author); name != "" {
		a, err := r.store.GetAuthorByName(ctx, name)
		switch {
		case errors.Is(err, store.ErrAuthorNotFound):
			r.logger.DebugContext(ctx, "allBooks for unknown author", "author", name)
			return []*domain.Book{}, nil
		case err != nil:
			return nil, liberrors.Wrap(err, liberrors.KindStoreQueryFailed, liberrors.CodeAllBooksQueryFailed, "listing books failed")
		}
		filter.AuthorID = a.ID
	}
	filter.Genre = deref(genre)

	books, err := r.store.ListBooks(ctx, filter)
	if err != nil {
		return nil, liberrors.Wrap(err, liberrors.KindStoreQueryFailed, liberrors.CodeAllBooksQueryFailed, "listing books failed")
	}
	return books, nil
}

func (r *queryResolver) AllAuthors(ctx context.Context) ([]*domain.Author, error) {
	authors, err := r.store.ListAuthors(ctx)
	if err != nil {
		return nil, liberrors.Wrap(err, liberrors.KindStoreQueryFailed, liberrors.CodeAllAuthorsQueryFailed, "listing authors failed")
	}
	return authors, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return normalize.Text(*s)
}
