package core

// Connection abstracts a messaging transport endpoint.
// Owned by the adapter; the adapter must Close() it.
type Connection interface {
	// TrySend queues f without blocking. It returns ErrClosed once the
	// connection is gone and ErrBackpressure when the send buffer is full.
	TrySend(f Frame) error
	IsOpen() bool
	Close()
}
