package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/Electrostatics/apbs-aws/internal/interfaces"
	"github.com/Electrostatics/apbs-aws/internal/models"
)

// MemoryQueue is an in-process Queue used in tests. Leased messages stay
// invisible until deleted; there is no redelivery clock.
type MemoryQueue struct {
	mu      sync.Mutex
	pending []string
	leased  map[string]string // receipt handle -> body
	seq     int

	// Extensions records every ExtendVisibility call, by receipt handle.
	Extensions map[string][]int64
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		leased:     make(map[string]string),
		Extensions: make(map[string][]int64),
	}
}

func (q *MemoryQueue) Send(ctx context.Context, body string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, body)
	return nil
}

func (q *MemoryQueue) Receive(ctx context.Context, visibilityTimeout int64) (*interfaces.QueueMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil, models.ErrNoMessage
	}
	body := q.pending[0]
	q.pending = q.pending[1:]
	q.seq++
	handle := fmt.Sprintf("receipt-%d", q.seq)
	q.leased[handle] = body
	return &interfaces.QueueMessage{Body: body, ReceiptHandle: handle}, nil
}

func (q *MemoryQueue) Delete(ctx context.Context, msg *interfaces.QueueMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.leased[msg.ReceiptHandle]; !ok {
		return fmt.Errorf("unknown receipt handle %q", msg.ReceiptHandle)
	}
	delete(q.leased, msg.ReceiptHandle)
	return nil
}

func (q *MemoryQueue) ExtendVisibility(ctx context.Context, msg *interfaces.QueueMessage, seconds int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.leased[msg.ReceiptHandle]; !ok {
		return fmt.Errorf("unknown receipt handle %q", msg.ReceiptHandle)
	}
	q.Extensions[msg.ReceiptHandle] = append(q.Extensions[msg.ReceiptHandle], seconds)
	return nil
}

// Len returns the number of undelivered messages.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// LeasedCount returns the number of in-flight messages.
func (q *MemoryQueue) LeasedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.leased)
}
