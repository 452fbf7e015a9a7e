// Package hwmc runs the sessions found by discovery as one service.
//
// The Service starts every session on its own goroutine, fans a stop
// request out to all of them and waits for each to reach Stopped. It
// also provides the status snapshot served by the status API.
//
// Lifecycle:
//
//	res, err := coordinator.Discover(ctx)
//	svc := hwmc.New(res.Sessions(), logger)
//	svc.Start(ctx)
//	<-ctx.Done()
//	svc.Shutdown(context.Background())
package hwmc
