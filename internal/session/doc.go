// Package session runs the monitor and control loop of one module.
//
// An Antenna session owns one antenna module: it configures the digital
// and analog front end, checks the module at startup, applies the
// inclinometer calibration table, publishes the antenna monitor points
// every polling interval and applies commands arriving on the store.
//
// A Backend session owns one backend module serving ten antennas and
// publishes ten monitor point sets per interval. It takes no commands.
//
// Each session moves through Initializing, Running, Stopping and Stopped.
// Store watch callbacks only queue events; the session goroutine drains
// the queue between polls, so all hardware access of a session happens
// on that goroutine apart from script installation, which runs in the
// background because it takes several seconds.
//
// Lifecycle:
//
//	ant, err := session.NewAntenna(3, opts)
//	go ant.Run(ctx)
//	...
//	ant.Stop()
//	<-ant.Done()
package session
