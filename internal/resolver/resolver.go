// Package resolver implements the operations behind the library GraphQL
// schema. It knows nothing about HTTP or GraphQL documents; the executor in
// internal/graph calls it through the per-type interfaces below.
package resolver

import (
	"context"
	"log/slog"

	"github.com/listenupapp/library-server/internal/auth"
	"github.com/listenupapp/library-server/internal/domain"
	"github.com/listenupapp/library-server/internal/loader"
	"github.com/listenupapp/library-server/internal/pubsub"
	"github.com/listenupapp/library-server/internal/store"
	"github.com/listenupapp/library-server/internal/validation"
)

// QueryResolver serves the Query root type.
type QueryResolver interface {
	Me(ctx context.Context) (*domain.User, error)
	BookCount(ctx context.Context) (int, error)
	AuthorCount(ctx context.Context) (int, error)
	AllBooks(ctx context.Context, author, genre *string) ([]*domain.Book, error)
	AllAuthors(ctx context.Context) ([]*domain.Author, error)
}

// MutationResolver serves the Mutation root type.
type MutationResolver interface {
	CreateUser(ctx context.Context, username, favoriteGenre string) (*domain.User, error)
	Login(ctx context.Context, username, password string) (*Token, error)
	AddBook(ctx context.Context, title string, published int, author string, genres []string) (*domain.Book, error)
	EditAuthor(ctx context.Context, name string, setBornTo int) (*domain.Author, error)
}

// SubscriptionResolver serves the Subscription root type.
type SubscriptionResolver interface {
	BookAdded(ctx context.Context) (<-chan *domain.Book, error)
}

// AuthorResolver serves computed Author fields.
type AuthorResolver interface {
	BookCount(ctx context.Context, author *domain.Author) *loader.Deferred[int]
}

// Token is the login result.
type Token struct {
	Value string `json:"value"`
}

// BookEvents is the fanout carrying BOOK_ADDED payloads.
type BookEvents = pubsub.Fanout[*domain.Book]

// Deps are the collaborators a Resolver needs. Logger may be nil.
type Deps struct {
	Store     store.Store
	Fanout    *BookEvents
	Tokens    *auth.TokenService
	Secret    *auth.SharedSecret
	Validator *validation.Validator
	Logger    *slog.Logger
}

// Resolver is the resolver set. It is safe for concurrent use; all request
// state travels in the context.
type Resolver struct {
	store     store.Store
	events    *BookEvents
	tokens    *auth.TokenService
	secret    *auth.SharedSecret
	validator *validation.Validator
	logger    *slog.Logger
}

// New creates a Resolver.
func New(d Deps) *Resolver {
	logger := d.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	v := d.Validator
	if v == nil {
		v = validation.New()
	}
	return &Resolver{
		store:     d.Store,
		events:    d.Fanout,
		tokens:    d.Tokens,
		secret:    d.Secret,
		validator: v,
		logger:    logger,
	}
}

// Query returns the Query resolvers.
func (r *Resolver) Query() QueryResolver { return &queryResolver{r} }

// Mutation returns the Mutation resolvers.
func (r *Resolver) Mutation() MutationResolver { return &mutationResolver{r} }

// Subscription returns the Subscription resolvers.
func (r *Resolver) Subscription() SubscriptionResolver { return &subscriptionResolver{r} }

// Author returns the Author field resolvers.
func (r *Resolver) Author() AuthorResolver { return &authorResolver{r} }
