package resolver

import (
	"context"
	"errors"

	"github.com/listenupapp/library-server/internal/auth"
	"github.com/listenupapp/library-server/internal/domain"
	liberrors "github.com/listenupapp/library-server/internal/errors"
	"github.com/listenupapp/library-server/internal/loader"
	"github.com/listenupapp/library-server/internal/normalize"
	"github.com/listenupapp/library-server/internal/pubsub"
	"github.com/listenupapp/library-server/internal/store"
	"github.com/listenupapp/library-server/internal/validation"
)

type mutationResolver struct{ *Resolver }

func errNotAuthenticated() error {
	return liberrors.Unauthenticated(liberrors.CodeBadUserInput, "not authenticated")
}

func (r *mutationResolver) CreateUser(ctx context.Context, username, favoriteGenre string) (*domain.User, error) {
	in := validation.NewUser{
		Username:      normalize.Text(username),
		FavoriteGenre: normalize.Text(favoriteGenre),
	}
	if err := r.validator.Validate(in); err != nil {
		return nil, liberrors.Wrap(err, liberrors.KindInputValidation, liberrors.CodeBadUserInput, "creating the user failed").
			WithDetails(detailsOf(err)).
			WithInvalidArgs(username)
	}

	user := &domain.User{Username: in.Username, FavoriteGenre: in.FavoriteGenre}
	if err := r.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrUserExists) {
			return nil, liberrors.Wrap(err, liberrors.KindInputValidation, liberrors.CodeBadUserInput, "creating the user failed").
				WithDetails(validation.FieldErrors{"username": "is already taken"}).
				WithInvalidArgs(username)
		}
		return nil, liberrors.Wrap(err, liberrors.KindMutationFailed, liberrors.CodeBadUserInput, "creating the user failed").
			WithInvalidArgs(username)
	}

	r.logger.InfoContext(ctx, "user created", "user_id", user.ID, "username", user.Username)
	return user, nil
}

// Login accepts any existing username with the shared secret as password.
func (r *mutationResolver) Login(ctx context.Context, username, password string) (*Token, error) {
	wrong := liberrors.Unauthenticated(liberrors.CodeBadUserInput, "wrong credentials")

	user, err := r.store.GetUserByUsername(ctx, normalize.Text(username))
	switch {
	case errors.Is(err, store.ErrUserNotFound):
		r.logger.InfoContext(ctx, "login for unknown user", "username", username)
		return nil, wrong
	case err != nil:
		return nil, liberrors.Wrap(err, liberrors.KindInternal, liberrors.CodeInternalServerError, "login failed")
	}

	if !r.secret.Matches(password) {
		r.logger.InfoContext(ctx, "login with wrong password", "user_id", user.ID)
		return nil, wrong
	}

	value, err := r.tokens.Sign(auth.Claims{Username: user.Username, UserID: user.ID})
	if err != nil {
		return nil, liberrors.Wrap(err, liberrors.KindInternal, liberrors.CodeInternalServerError, "login failed")
	}

	r.logger.InfoContext(ctx, "user logged in", "user_id", user.ID)
	return &Token{Value: value}, nil
}

// AddBook stores a book, creating its author on first mention, and announces
// it on BOOK_ADDED.
func (r *mutationResolver) AddBook(ctx context.Context, title string, published int, author string, genres []string) (*domain.Book, error) {
	if CurrentUser(ctx) == nil {
		return nil, errNotAuthenticated()
	}
	fail := func(err error) error {
		return liberrors.Wrap(err, liberrors.KindMutationFailed, liberrors.CodeAddBookFailed, "adding the book failed")
	}

	in := validation.NewBook{
		Title:     normalize.Text(title),
		Published: published,
		Author:    normalize.Text(author),
		Genres:    normalize.Genres(genres),
	}
	if err := r.validator.Validate(in); err != nil {
		return nil, liberrors.Wrap(err, liberrors.KindInputValidation, liberrors.CodeAddBookFailed, "adding the book failed").
			WithDetails(detailsOf(err))
	}

	a, err := r.findOrCreateAuthor(ctx, in.Author)
	if err != nil {
		return nil, fail(err)
	}

	book := &domain.Book{
		Title:     in.Title,
		Published: in.Published,
		AuthorID:  a.ID,
		Genres:    in.Genres,
	}
	if err := r.store.CreateBook(ctx, book); err != nil {
		return nil, fail(err)
	}
	book.Author = a
	if counts, err := loader.For(ctx); err == nil {
		counts.Clear(a.ID)
	}

	delivered := r.events.Publish(pubsub.TopicBookAdded, book)
	r.logger.InfoContext(ctx, "book added",
		"book_id", book.ID,
		"author_id", a.ID,
		"subscribers", delivered,
	)
	return book, nil
}

func (r *mutationResolver) findOrCreateAuthor(ctx context.Context, name string) (*domain.Author, error) {
	a, err := r.store.GetAuthorByName(ctx, name)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, store.ErrAuthorNotFound) {
		return nil, err
	}

	a = &domain.Author{Name: name}
	err = r.store.CreateAuthor(ctx, a)
	if errors.Is(err, store.ErrAuthorExists) {
		// Lost a race with a concurrent addBook naming the same author.
		return r.store.GetAuthorByName(ctx, name)
	}
	if err != nil {
		return nil, err
	}
	r.logger.InfoContext(ctx, "author created", "author_id", a.ID, "name", a.Name)
	return a, nil
}

// EditAuthor sets an existing author's birth year.
func (r *mutationResolver) EditAuthor(ctx context.Context, name string, setBornTo int) (*domain.Author, error) {
	if CurrentUser(ctx) == nil {
		return nil, errNotAuthenticated()
	}
	in := validation.AuthorBirth{Name: normalize.Text(name), SetBornTo: setBornTo}
	notFound := liberrors.NotFoundf(liberrors.CodeAuthorNotFound, "author %q not found", in.Name)

	if err := r.validator.Validate(in); err != nil {
		return nil, notFound.WithCause(err)
	}

	a, err := r.store.GetAuthorByName(ctx, in.Name)
	switch {
	case errors.Is(err, store.ErrAuthorNotFound):
		return nil, notFound
	case err != nil:
		return nil, liberrors.Wrap(err, liberrors.KindMutationFailed, liberrors.CodeEditAuthorFailed, "editing the author failed")
	}

	a.SetBorn(in.SetBornTo)
	if err := r.store.UpdateAuthor(ctx, a); err != nil {
		if errors.Is(err, store.ErrAuthorNotFound) {
			return nil, notFound
		}
		return nil, liberrors.Wrap(err, liberrors.KindMutationFailed, liberrors.CodeEditAuthorFailed, "editing the author failed")
	}

	r.logger.InfoContext(ctx, "author edited", "author_id", a.ID, "born", in.SetBornTo)
	return a, nil
}

// detailsOf carries validator field errors onto the outer error.
func detailsOf(err error) any {
	var e *liberrors.Error
	if errors.As(err, &e) {
		return e.Details
	}
	return nil
}
