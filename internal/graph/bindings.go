package graph

import (
	"context"
	"fmt"
	"iter"

	"github.com/listenupapp/library-server/internal/domain"
	liberrors "github.com/listenupapp/library-server/internal/errors"
	"github.com/listenupapp/library-server/internal/resolver"
)

// Bind maps every field of the library schema onto r.
func Bind(r *resolver.Resolver) Resolvers {
	q, m, s, a := r.Query(), r.Mutation(), r.Subscription(), r.Author()

	return Resolvers{
		Fields: map[string]map[string]FieldResolver{
			"Query": {
				"me": root(func(ctx context.Context, _ map[string]any) (any, error) {
					return q.Me(ctx)
				}),
				"bookCount": root(func(ctx context.Context, _ map[string]any) (any, error) {
					return q.BookCount(ctx)
				}),
				"authorCount": root(func(ctx context.Context, _ map[string]any) (any, error) {
					return q.AuthorCount(ctx)
				}),
				"allBooks": root(func(ctx context.Context, args map[string]any) (any, error) {
					author, err := argOptString(args, "author")
					if err != nil {
						return nil, badArgument(err)
					}
					genre, err := argOptString(args, "genre")
					if err != nil {
						return nil, badArgument(err)
					}
					return q.AllBooks(ctx, author, genre)
				}),
				"allAuthors": root(func(ctx context.Context, _ map[string]any) (any, error) {
					return q.AllAuthors(ctx)
				}),
			},
			"Mutation": {
				"createUser": root(func(ctx context.Context, args map[string]any) (any, error) {
					username, err1 := argString(args, "username")
					genre, err2 := argString(args, "favoriteGenre")
					if err := firstErr(err1, err2); err != nil {
						return nil, badArgument(err)
					}
					return m.CreateUser(ctx, username, genre)
				}),
				"login": root(func(ctx context.Context, args map[string]any) (any, error) {
					username, err1 := argString(args, "username")
					password, err2 := argString(args, "password")
					if err := firstErr(err1, err2); err != nil {
						return nil, badArgument(err)
					}
					return m.Login(ctx, username, password)
				}),
				"addBook": root(func(ctx context.Context, args map[string]any) (any, error) {
					title, err1 := argString(args, "title")
					published, err2 := argInt(args, "published")
					author, err3 := argString(args, "author")
					genres, err4 := argStrings(args, "genres")
					if err := firstErr(err1, err2, err3, err4); err != nil {
						return nil, badArgument(err)
					}
					return m.AddBook(ctx, title, published, author, genres)
				}),
				"editAuthor": root(func(ctx context.Context, args map[string]any) (any, error) {
					name, err1 := argString(args, "name")
					born, err2 := argInt(args, "setBornTo")
					if err := firstErr(err1, err2); err != nil {
						return nil, badArgument(err)
					}
					return m.EditAuthor(ctx, name, born)
				}),
			},
			"Author": {
				"name": prop(func(a *domain.Author) any { return a.Name }),
				"born": prop(func(a *domain.Author) any { return a.Born }),
				"id":   prop(func(a *domain.Author) any { return a.ID }),
				"bookCount": func(ctx context.Context, src any, _ map[string]any) (any, error) {
					author, err := sourceAs[*domain.Author](src)
					if err != nil {
						return nil, err
					}
					return a.BookCount(ctx, author), nil
				},
			},
			"Book": {
				"title":     prop(func(b *domain.Book) any { return b.Title }),
				"published": prop(func(b *domain.Book) any { return b.Published }),
				"author":    prop(func(b *domain.Book) any { return b.Author }),
				"genres":    prop(func(b *domain.Book) any { return b.Genres }),
				"id":        prop(func(b *domain.Book) any { return b.ID }),
			},
			"User": {
				"username":      prop(func(u *domain.User) any { return u.Username }),
				"favoriteGenre": prop(func(u *domain.User) any { return u.FavoriteGenre }),
				"id":            prop(func(u *domain.User) any { return u.ID }),
			},
			"Token": {
				"value": prop(func(t *resolver.Token) any { return t.Value }),
			},
		},
		Streams: map[string]StreamResolver{
			"bookAdded": func(ctx context.Context, _ map[string]any) (iter.Seq[any], error) {
				ch, err := s.BookAdded(ctx)
				if err != nil {
					return nil, err
				}
				return func(yield func(any) bool) {
					for b := range ch {
						if !yield(b) {
							return
						}
					}
				}, nil
			},
		},
	}
}

// root adapts a resolver that ignores its source.
func root(fn func(ctx context.Context, args map[string]any) (any, error)) FieldResolver {
	return func(ctx context.Context, _ any, args map[string]any) (any, error) {
		return fn(ctx, args)
	}
}

// prop adapts a plain accessor on a source of type T.
func prop[T any](get func(T) any) FieldResolver {
	return func(_ context.Context, src any, _ map[string]any) (any, error) {
		v, err := sourceAs[T](src)
		if err != nil {
			return nil, err
		}
		return get(v), nil
	}
}

func sourceAs[T any](src any) (T, error) {
	v, ok := src.(T)
	if !ok {
		var zero T
		return zero, liberrors.Internal(fmt.Sprintf("unexpected source %T, want %T", src, zero))
	}
	return v, nil
}

func badArgument(err error) error {
	return liberrors.Wrap(err, liberrors.KindInputValidation, liberrors.CodeBadUserInput, "invalid argument")
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
