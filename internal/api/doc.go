// Package api provides the HTTP status API and WebSocket stream of the
// hwmc daemon.
//
// It exposes session status, the last monitor set published for every
// antenna and backend, the command and calibration journal, and command
// injection onto the distributed store. A WebSocket hub streams every
// publication to subscribed clients.
//
// The Cache and the Hub are session observers. They are created before
// discovery so every session can be given them:
//
//	cache := api.NewCache()
//	hub := api.NewHub(cfg.WebSocket, logger)
//	// ... discovery with Observers: cache, hub ...
//	server, err := api.New(api.Deps{Cache: cache, Hub: hub, ...})
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
