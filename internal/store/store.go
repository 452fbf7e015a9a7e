package store

import "context"

// WatchID identifies an active watch on one connection.
type WatchID uint64

// WatchFunc is called with the new value each time a watched key is put.
//
// Callbacks run on a goroutine owned by the store and must not block.
type WatchFunc func(key, value string)

// Store is one connection to the distributed store.
type Store interface {
	// Put sets key to value.
	Put(ctx context.Context, key, value string) error

	// Get returns the value of key; found is false when the key is absent.
	Get(ctx context.Context, key string) (value string, found bool, err error)

	// Watch calls fn for every put to key after the watch is established.
	// The watch ends when ctx is done or CancelWatch is called.
	Watch(ctx context.Context, key string, fn WatchFunc) (WatchID, error)

	// CancelWatch stops a watch. No callback for it runs after it returns.
	CancelWatch(id WatchID) error

	// Close cancels remaining watches and releases the connection.
	Close() error
}

// Dialer opens independent store connections.
type Dialer interface {
	// Dial opens a connection; name identifies the owner in logs and
	// broker client IDs.
	Dial(ctx context.Context, name string) (Store, error)
}

// Logger is the logging surface used by store backends.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}
