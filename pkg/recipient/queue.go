package recipient

import (
	"fmt"
	"sync"

	"github.com/kbirk/abind/pkg/log"
	"github.com/kbirk/abind/pkg/message"
)

// Queue is a Callback that buffers encoded notifications until a listener
// drains them. When full, the oldest notification is dropped.
type Queue struct {
	size   int
	logger log.Logger
	mu     *sync.Mutex
	items  [][]byte
	ready  chan struct{}
}

// NewQueue creates a queue holding at most size notifications. A size of 0
// or less means no limit.
func NewQueue(size int, logger log.Logger) *Queue {
	return &Queue{
		size:   size,
		logger: logger,
		mu:     &sync.Mutex{},
		ready:  make(chan struct{}, 1),
	}
}

func (q *Queue) logWarn(msg string) {
	if q.logger != nil {
		q.logger.Warn(msg)
	}
}

func (q *Queue) Callback(n *message.EventNotification) {
	data, err := message.EncodeNotification(n)
	if err != nil {
		q.logWarn(fmt.Sprintf("Failed to encode %s notification: %s", n.EventID, err.Error()))
		return
	}

	q.mu.Lock()
	if q.size > 0 && len(q.items) >= q.size {
		q.items = q.items[1:]
		q.logWarn("Notification queue is full, dropped oldest")
	}
	q.items = append(q.items, data)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Ready signals after notifications were queued. A signal may cover
// several notifications.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}

// Drain removes and returns every queued notification in arrival order.
func (q *Queue) Drain() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
