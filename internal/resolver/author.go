package resolver

import (
	"context"

	"github.com/listenupapp/library-server/internal/domain"
	"github.com/listenupapp/library-server/internal/loader"
)

type authorResolver struct{ *Resolver }

// BookCount joins the request's pending book count batch.
func (r *authorResolver) BookCount(ctx context.Context, author *domain.Author) *loader.Deferred[int] {
	l, err := loader.For(ctx)
	if err != nil {
		return loader.Failed[int](err)
	}
	return l.Load(author.ID)
}
