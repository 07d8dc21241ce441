package resolver

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/listenupapp/library-server/internal/auth"
	"github.com/listenupapp/library-server/internal/domain"
	"github.com/listenupapp/library-server/internal/pubsub"
	"github.com/listenupapp/library-server/internal/seed"
	"github.com/listenupapp/library-server/internal/store"
	badgerstore "github.com/listenupapp/library-server/internal/store/badger"
)

// spyStore counts calls per method and can fail any of them.
type spyStore struct {
	store.Store

	mu    sync.Mutex
	calls map[string]int
	fail  map[string]error
	// batches records the keys of every CountBooksByAuthors call.
	batches [][]string
}

func (s *spyStore) hit(method string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[method]++
	return s.fail[method]
}

func (s *spyStore) count(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

func (s *spyStore) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

func (s *spyStore) failOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[method] = err
}

func (s *spyStore) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = make(map[string]int)
	s.batches = nil
}

func (s *spyStore) CountBooks(ctx context.Context) (int, error) {
	if err := s.hit("CountBooks"); err != nil {
		return 0, err
	}
	return s.Store.CountBooks(ctx)
}

func (s *spyStore) CountAuthors(ctx context.Context) (int, error) {
	if err := s.hit("CountAuthors"); err != nil {
		return 0, err
	}
	return s.Store.CountAuthors(ctx)
}

func (s *spyStore) GetAuthorByName(ctx context.Context, name string) (*domain.Author, error) {
	if err := s.hit("GetAuthorByName"); err != nil {
		return nil, err
	}
	return s.Store.GetAuthorByName(ctx, name)
}

func (s *spyStore) ListAuthors(ctx context.Context) ([]*domain.Author, error) {
	if err := s.hit("ListAuthors"); err != nil {
		return nil, err
	}
	return s.Store.ListAuthors(ctx)
}

func (s *spyStore) ListBooks(ctx context.Context, f store.BookFilter) ([]*domain.Book, error) {
	if err := s.hit("ListBooks"); err != nil {
		return nil, err
	}
	return s.Store.ListBooks(ctx, f)
}

func (s *spyStore) CreateAuthor(ctx context.Context, a *domain.Author) error {
	if err := s.hit("CreateAuthor"); err != nil {
		return err
	}
	return s.Store.CreateAuthor(ctx, a)
}

func (s *spyStore) UpdateAuthor(ctx context.Context, a *domain.Author) error {
	if err := s.hit("UpdateAuthor"); err != nil {
		return err
	}
	return s.Store.UpdateAuthor(ctx, a)
}

func (s *spyStore) CreateBook(ctx context.Context, b *domain.Book) error {
	if err := s.hit("CreateBook"); err != nil {
		return err
	}
	return s.Store.CreateBook(ctx, b)
}

func (s *spyStore) CreateUser(ctx context.Context, u *domain.User) error {
	if err := s.hit("CreateUser"); err != nil {
		return err
	}
	return s.Store.CreateUser(ctx, u)
}

func (s *spyStore) GetUserByUsername(ctx context.Context, name string) (*domain.User, error) {
	if err := s.hit("GetUserByUsername"); err != nil {
		return nil, err
	}
	return s.Store.GetUserByUsername(ctx, name)
}

func (s *spyStore) CountBooksByAuthors(ctx context.Context, ids []string) (map[string]int, error) {
	s.mu.Lock()
	s.batches = append(s.batches, append([]string(nil), ids...))
	s.mu.Unlock()
	if err := s.hit("CountBooksByAuthors"); err != nil {
		return nil, err
	}
	return s.Store.CountBooksByAuthors(ctx, ids)
}

type fixture struct {
	store    *spyStore
	events   *BookEvents
	tokens   *auth.TokenService
	resolver *Resolver
}

// newFixture returns a resolver over a seeded in-memory store with a reset spy.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	backing, err := badgerstore.New("", nil, badgerstore.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = backing.Close() })

	_, err = seed.Load(context.Background(), backing)
	require.NoError(t, err)

	key, err := auth.LoadOrGenerateKey(t.TempDir())
	require.NoError(t, err)
	tokens, err := auth.NewTokenService(key, 0)
	require.NoError(t, err)
	secret, err := auth.NewSharedSecret("secret")
	require.NoError(t, err)

	spy := &spyStore{Store: backing, calls: map[string]int{}, fail: map[string]error{}}
	events := pubsub.New[*domain.Book](nil)
	t.Cleanup(events.Shutdown)

	return &fixture{
		store:  spy,
		events: events,
		tokens: tokens,
		resolver: New(Deps{
			Store:  spy,
			Fanout: events,
			Tokens: tokens,
			Secret: secret,
		}),
	}
}

func (f *fixture) authed(t *testing.T) context.Context {
	t.Helper()
	u := &domain.User{Username: "mluukkai", FavoriteGenre: "refactoring"}
	require.NoError(t, f.store.Store.CreateUser(context.Background(), u))
	return WithCurrentUser(context.Background(), u)
}

func ptr[T any](v T) *T { return &v }
