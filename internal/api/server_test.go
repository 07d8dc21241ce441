package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"testing"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/library-server/internal/auth"
	"github.com/listenupapp/library-server/internal/domain"
	"github.com/listenupapp/library-server/internal/graph"
	"github.com/listenupapp/library-server/internal/loader"
	"github.com/listenupapp/library-server/internal/pubsub"
	"github.com/listenupapp/library-server/internal/ratelimit"
	"github.com/listenupapp/library-server/internal/resolver"
	"github.com/listenupapp/library-server/internal/seed"
	"github.com/listenupapp/library-server/internal/store"
	badgerstore "github.com/listenupapp/library-server/internal/store/badger"
)

// flakyStore fails Ping on demand.
type flakyStore struct {
	store.Store
	pingErr error
}

func (s *flakyStore) Ping(ctx context.Context) error {
	if s.pingErr != nil {
		return s.pingErr
	}
	return s.Store.Ping(ctx)
}

type testServer struct {
	*Server
	api    humatest.TestAPI
	store  *flakyStore
	events *resolver.BookEvents
	tokens *auth.TokenService
	user   *domain.User
}

type serverOption func(*Deps)

func withLimiter(l *ratelimit.KeyedRateLimiter) serverOption {
	return func(d *Deps) { d.Limiter = l }
}

func withTrustedProxies(prefixes ...string) serverOption {
	return func(d *Deps) {
		for _, p := range prefixes {
			d.TrustedProxies = append(d.TrustedProxies, netip.MustParsePrefix(p))
		}
	}
}

// setupTestServer builds the full stack over a seeded in-memory store.
func setupTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()
	ctx := context.Background()

	backing, err := badgerstore.New("", nil, badgerstore.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = backing.Close() })
	_, err = seed.Load(ctx, backing)
	require.NoError(t, err)

	user := &domain.User{Username: "mluukkai", FavoriteGenre: "refactoring"}
	require.NoError(t, backing.CreateUser(ctx, user))

	key, err := auth.LoadOrGenerateKey(t.TempDir())
	require.NoError(t, err)
	tokens, err := auth.NewTokenService(key, 0)
	require.NoError(t, err)
	secret, err := auth.NewSharedSecret("secret")
	require.NoError(t, err)

	st := &flakyStore{Store: backing}
	events := pubsub.New[*domain.Book](nil)
	t.Cleanup(events.Shutdown)

	r := resolver.New(resolver.Deps{Store: st, Fanout: events, Tokens: tokens, Secret: secret})
	exec := graph.New(graph.MustLoadSchema(), graph.Bind(r), graph.WithEventContext(func(ctx context.Context) context.Context {
		return loader.With(ctx, loader.NewBookCounts(st, nil))
	}))

	deps := Deps{
		Store:    st,
		Executor: exec,
		Events:   events,
		Tokens:   tokens,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	s := NewServer(deps)
	return &testServer{
		Server: s,
		api:    humatest.Wrap(t, s.api),
		store:  st,
		events: events,
		tokens: tokens,
		user:   user,
	}
}

// bearer returns an Authorization header for the fixture user.
func (ts *testServer) bearer(t *testing.T) string {
	t.Helper()
	token, err := ts.tokens.Sign(auth.Claims{Username: ts.user.Username, UserID: ts.user.ID})
	require.NoError(t, err)
	return "Authorization: Bearer " + token
}

// gqlResult decodes a GraphQL response while keeping data raw, so a missing
// data key and "data": null stay distinguishable.
type gqlResult struct {
	Data   json.RawMessage  `json:"data"`
	Errors []map[string]any `json:"errors"`
	raw    map[string]json.RawMessage
}

func decodeResult(t *testing.T, body []byte) gqlResult {
	t.Helper()
	var res gqlResult
	require.NoError(t, json.Unmarshal(body, &res), string(body))
	require.NoError(t, json.Unmarshal(body, &res.raw))
	return res
}

func (r gqlResult) hasData() bool {
	_, ok := r.raw["data"]
	return ok
}

func (r gqlResult) code(i int) string {
	ext, _ := r.Errors[i]["extensions"].(map[string]any)
	c, _ := ext["code"].(string)
	return c
}

// post sends a GraphQL request. Extra args are humatest headers.
func (ts *testServer) post(t *testing.T, query string, vars map[string]any, headers ...any) gqlResult {
	t.Helper()
	body := map[string]any{"query": query}
	if vars != nil {
		body["variables"] = vars
	}
	resp := ts.api.Post("/graphql", append(headers, body)...)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	return decodeResult(t, resp.Body.Bytes())
}

func TestHealthCheck_Success(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/health")
	require.Equal(t, http.StatusOK, resp.Code)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &health))
	assert.Equal(t, statusHealthy, health.Status)
	assert.Equal(t, statusHealthy, health.Components["store"].Status)
	assert.NotEmpty(t, health.Components["store"].Latency)
	assert.Equal(t, "no active subscriptions", health.Components["subscriptions"].Message)
}

func TestHealthCheck_StoreDown(t *testing.T) {
	ts := setupTestServer(t)
	ts.store.pingErr = errors.New("disk gone")

	resp := ts.api.Get("/health")
	require.Equal(t, http.StatusOK, resp.Code)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &health))
	assert.Equal(t, statusUnhealthy, health.Status)
	assert.Equal(t, "store ping failed", health.Components["store"].Message)
}

func TestHealthCheck_CountsSubscriptions(t *testing.T) {
	ts := setupTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := ts.events.Subscribe(ctx, pubsub.TopicBookAdded)
	require.NoError(t, err)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(ts.api.Get("/health").Body.Bytes(), &health))
	assert.Equal(t, "1 active subscription", health.Components["subscriptions"].Message)
}

func TestFormatSubscribers(t *testing.T) {
	assert.Equal(t, "no active subscriptions", formatSubscribers(0))
	assert.Equal(t, "1 active subscription", formatSubscribers(1))
	assert.Equal(t, "12 active subscriptions", formatSubscribers(12))
}

func TestNewServer_Defaults(t *testing.T) {
	s := NewServer(Deps{})
	assert.Equal(t, []string{"*"}, s.origins)
	assert.Equal(t, heartbeatInterval, s.heartbeat)
	assert.NotNil(t, s.logger)
}
