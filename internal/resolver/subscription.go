package resolver

import (
	"context"

	"github.com/listenupapp/library-server/internal/domain"
	liberrors "github.com/listenupapp/library-server/internal/errors"
	"github.com/listenupapp/library-server/internal/pubsub"
)

type subscriptionResolver struct{ *Resolver }

// BookAdded streams books added after the call. The channel closes when ctx
// ends or the fanout shuts down.
func (r *subscriptionResolver) BookAdded(ctx context.Context) (<-chan *domain.Book, error) {
	sub, err := r.events.Subscribe(ctx, pubsub.TopicBookAdded)
	if err != nil {
		return nil, liberrors.Wrap(err, liberrors.KindInternal, liberrors.CodeInternalServerError, "subscription unavailable")
	}
	r.logger.InfoContext(ctx, "subscription started",
		"subscription_id", sub.ID,
		"topic", string(sub.Topic),
	)
	context.AfterFunc(ctx, func() {
		r.logger.Info("subscription ended", "subscription_id", sub.ID)
	})
	return sub.C(), nil
}
