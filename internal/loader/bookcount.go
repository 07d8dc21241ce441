package loader

import (
	"context"
	"log/slog"
	"net/http"

	liberrors "github.com/listenupapp/library-server/internal/errors"
)

// BookCounter is the slice of the store the book count loader needs.
type BookCounter interface {
	CountBooksByAuthors(ctx context.Context, authorIDs []string) (map[string]int, error)
}

// BookCounts resolves Author.bookCount, keyed by author id.
type BookCounts = Collator[string, int]

// NewBookCounts returns a fresh book count loader over s.
func NewBookCounts(s BookCounter, logger *slog.Logger) *BookCounts {
	return New(s.CountBooksByAuthors,
		WithName("book_counts"),
		WithErrorCode(liberrors.CodeBookCountFailed),
		WithLogger(logger),
	)
}

type ctxKey struct{}

// With returns a context carrying l.
func With(ctx context.Context, l *BookCounts) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// For returns the book count loader attached to ctx, or an error when none
// is attached. Loaders are never shared between requests.
func For(ctx context.Context) (*BookCounts, error) {
	l, ok := ctx.Value(ctxKey{}).(*BookCounts)
	if !ok || l == nil {
		return nil, liberrors.Internal("no book count loader in context")
	}
	return l, nil
}

// Middleware attaches a fresh book count loader to every request.
func Middleware(s BookCounter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := With(r.Context(), NewBookCounts(s, logger))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
