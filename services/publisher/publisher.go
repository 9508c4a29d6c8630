package publisher

import "context"

// Publisher represents a service for publishing new-item events
type Publisher interface {
	// Publish publishes a message under key to the item stream
	Publish(ctx context.Context, key string, message []byte) error

	// TrimStreams trims the stream to the configured maximum length
	TrimStreams(ctx context.Context) error

	// Close closes the publisher connection
	Close() error
}
