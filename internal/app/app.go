// Package app wires the cache store, mutation coordinator and list
// reconciler around one remote service.
package app

import (
	"log/slog"

	"gtodo/internal/logging"
	"gtodo/internal/mutation"
	"gtodo/internal/observability"
	"gtodo/internal/querycache"
	"gtodo/internal/reconciler"
	"gtodo/internal/service"
)

// App is the client-side sync layer handed to presentation code.
type App struct {
	Service   service.Service
	Store     *querycache.Store[[]service.Item]
	Mutations *mutation.Coordinator
	Lists     *reconciler.Reconciler
	Metrics   *observability.Metrics
	Logger    *slog.Logger
}

// New builds an App. logger and metrics may be nil.
func New(svc service.Service, logger *slog.Logger, metrics *observability.Metrics) *App {
	logger = logging.OrDiscard(logger)
	store := querycache.New[[]service.Item](
		querycache.WithLogger(logger),
		querycache.WithMetrics(metrics),
	)
	return &App{
		Service: svc,
		Store:   store,
		Mutations: mutation.New(svc, store, reconciler.TodosKey,
			mutation.WithLogger(logger),
			mutation.WithMetrics(metrics),
		),
		Lists:   reconciler.New(svc, store, logger),
		Metrics: metrics,
		Logger:  logger,
	}
}
