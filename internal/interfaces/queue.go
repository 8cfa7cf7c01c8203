package interfaces

import "context"

// QueueMessage is a leased message as handed to a consumer. The receipt
// handle identifies the lease for delete/extend calls.
type QueueMessage struct {
	Body          string
	ReceiptHandle string
}

// Queue is the gateway over a single work queue. FIFO ordering is assumed
// but not relied upon; jobs are independent.
type Queue interface {
	// Send enqueues a message body.
	Send(ctx context.Context, body string) error

	// Receive long-polls for one message with the given visibility timeout
	// in seconds. Returns ErrNoMessage when the queue is empty.
	Receive(ctx context.Context, visibilityTimeout int64) (*QueueMessage, error)

	// Delete acknowledges a leased message.
	Delete(ctx context.Context, msg *QueueMessage) error

	// ExtendVisibility resets the message's visibility timeout so the lease
	// survives a long execution.
	ExtendVisibility(ctx context.Context, msg *QueueMessage, seconds int64) error
}
