package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/listenupapp/library-server/internal/auth"
	"github.com/listenupapp/library-server/internal/config"
	"github.com/listenupapp/library-server/internal/domain"
	"github.com/listenupapp/library-server/internal/graph"
	"github.com/listenupapp/library-server/internal/loader"
	"github.com/listenupapp/library-server/internal/logger"
	"github.com/listenupapp/library-server/internal/pubsub"
	"github.com/listenupapp/library-server/internal/resolver"
	"github.com/listenupapp/library-server/internal/telemetry"
	"github.com/listenupapp/library-server/internal/validation"
)

// FanoutHandle wraps the book event fanout for lifecycle management.
type FanoutHandle struct {
	*resolver.BookEvents
}

// Shutdown implements do.Shutdownable. Open subscription streams complete.
func (h *FanoutHandle) Shutdown() error {
	h.BookEvents.Shutdown()
	return nil
}

// ProvideFanout provides the in-process event fanout.
func ProvideFanout(i do.Injector) (*FanoutHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)
	return &FanoutHandle{BookEvents: pubsub.New[*domain.Book](log.Logger)}, nil
}

// ProvideValidator provides the input validator.
func ProvideValidator(i do.Injector) (*validation.Validator, error) {
	return validation.New(), nil
}

// ProvideResolver provides the GraphQL resolver set.
func ProvideResolver(i do.Injector) (*resolver.Resolver, error) {
	log := do.MustInvoke[*logger.Logger](i)

	return resolver.New(resolver.Deps{
		Store:     do.MustInvoke[*StoreHandle](i).Store,
		Fanout:    do.MustInvoke[*FanoutHandle](i).BookEvents,
		Tokens:    do.MustInvoke[*auth.TokenService](i),
		Secret:    do.MustInvoke[*auth.SharedSecret](i),
		Validator: do.MustInvoke[*validation.Validator](i),
		Logger:    log.Logger,
	}), nil
}

// ProvideExecutor provides the GraphQL executor. Every subscription event
// is resolved with its own book count loader.
func ProvideExecutor(i do.Injector) (*graph.Executor, error) {
	log := do.MustInvoke[*logger.Logger](i)
	st := do.MustInvoke[*StoreHandle](i).Store
	r := do.MustInvoke[*resolver.Resolver](i)

	schema, err := graph.LoadSchema()
	if err != nil {
		return nil, err
	}

	return graph.New(schema, graph.Bind(r),
		graph.WithLogger(log.Logger),
		graph.WithEventContext(func(ctx context.Context) context.Context {
			return loader.With(ctx, loader.NewBookCounts(st, log.Logger))
		}),
	), nil
}

// TelemetryHandle flushes traces on shutdown.
type TelemetryHandle struct {
	shutdown telemetry.ShutdownFunc
}

// Shutdown implements do.Shutdownable.
func (h *TelemetryHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.shutdown(ctx)
}

// ProvideTelemetry installs the tracer provider.
func ProvideTelemetry(i do.Injector) (*TelemetryHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	shutdown, err := telemetry.Setup(context.Background(), cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.ServiceName)
	if err != nil {
		return nil, err
	}

	if cfg.Telemetry.OTLPEndpoint == "" {
		log.Info("Tracing export disabled")
	} else {
		log.Info("Tracing enabled", "endpoint", cfg.Telemetry.OTLPEndpoint, "service", cfg.Telemetry.ServiceName)
	}

	return &TelemetryHandle{shutdown: shutdown}, nil
}
