// Package di provides dependency injection configuration for the library server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/library-server/internal/auth"
	"github.com/listenupapp/library-server/internal/config"
	"github.com/listenupapp/library-server/internal/di/providers"
	"github.com/listenupapp/library-server/internal/graph"
	"github.com/listenupapp/library-server/internal/logger"
	"github.com/listenupapp/library-server/internal/resolver"
	"github.com/listenupapp/library-server/internal/validation"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideTelemetry)

	// Persistence and events
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideFanout)

	// Auth layer
	do.Provide(injector, providers.ProvideAuthKey)
	do.Provide(injector, providers.ProvideTokenService)
	do.Provide(injector, providers.ProvideSharedSecret)

	// GraphQL
	do.Provide(injector, providers.ProvideValidator)
	do.Provide(injector, providers.ProvideResolver)
	do.Provide(injector, providers.ProvideExecutor)

	// Server
	do.Provide(injector, providers.ProvideRateLimiter)
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services. Providers are lazy; invoking them here
// surfaces configuration errors before the server reports itself running.
func Bootstrap(injector *do.RootScope) error {
	steps := []func(do.Injector) error{
		invoke[*config.Config],
		invoke[*logger.Logger],
		invoke[*providers.TelemetryHandle],
		invoke[*providers.StoreHandle],
		invoke[*providers.FanoutHandle],
		invoke[*auth.TokenService],
		invoke[*auth.SharedSecret],
		invoke[*validation.Validator],
		invoke[*resolver.Resolver],
		invoke[*graph.Executor],
		invoke[*providers.RateLimiterHandle],
		invoke[*providers.HTTPServerHandle],
	}
	for _, step := range steps {
		if err := step(injector); err != nil {
			return err
		}
	}
	return nil
}

func invoke[T any](i do.Injector) error {
	_, err := do.Invoke[T](i)
	return err
}
