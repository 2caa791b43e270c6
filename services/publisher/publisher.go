package publisher

// Publisher represents a service for publishing deal events
type Publisher interface {
	// Publish publishes an event with a JSON payload
	Publish(event string, payload []byte) error

	// Close closes the publisher connection
	Close() error
}
