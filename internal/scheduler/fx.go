package scheduler

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig, New),
	fx.Invoke(Register),
)

// Register ties cron and the interval loop to the app lifecycle. Both run on
// a context detached from OnStart, which only bounds startup.
func Register(lc fx.Lifecycle, sched *Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			sched.StartCron(ctx)
			go func() {
				defer close(done)
				sched.RunForever(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			sched.StopCron(stopCtx)
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}
