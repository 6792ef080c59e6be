package components

import (
	"context"
	"sync"

	"genflow/internal/usecase/shared"
	"genflow/internal/worker"

	"go.uber.org/fx"
)

var WorkerModule = fx.Module("worker",
	fx.Provide(
		worker.NewController,
		func(c *worker.Controller) shared.Leadership { return c },
		worker.NewReconciler,
		worker.NewJanitor,
		worker.NewDeliverer,
	),
	fx.Invoke(runWorkers),
)

// runWorkers ties the background loops to the fx lifecycle. OnStop
// cancels their context and waits, so the lease release in the leader
// controller runs before the process exits.
func runWorkers(
	lc fx.Lifecycle,
	controller *worker.Controller,
	reconciler *worker.Reconciler,
	janitor *worker.Janitor,
	deliverer *worker.Deliverer,
) {
	runCtx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	loops := []func(context.Context){
		controller.Run,
		reconciler.Run,
		janitor.Run,
		deliverer.Run,
	}

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			for _, run := range loops {
				wg.Add(1)
				go func(run func(context.Context)) {
					defer wg.Done()
					run(runCtx)
				}(run)
			}
			return nil
		},
		OnStop: func(_ context.Context) error {
			cancel()
			wg.Wait()
			return nil
		},
	})
}
