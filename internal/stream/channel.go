package stream

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrChannelClosed     = errors.New("stream channel closed")
	ErrAlreadySubscribed = errors.New("stream already has a subscriber")
)

// Channel is the event channel of one run. Producers never block: messages
// are queued without bound and a pump goroutine delivers them in order to
// the single subscriber. Messages produced before Subscribe are held for it.
type Channel struct {
	runID string

	mu         sync.Mutex
	queue      []Message
	closed     bool
	subscribed bool
	dropped    bool

	signal     chan struct{}
	detached   chan struct{}
	detachOnce sync.Once
	terminated chan struct{}
	out        chan Message

	now func() time.Time

	// obsMu is taken before mu is released so observers see messages in
	// queue order even with concurrent producers.
	obsMu    sync.Mutex
	observer func(Message)
}

// NewChannel creates an open channel for runID.
func NewChannel(runID string) *Channel {
	return &Channel{
		runID:      runID,
		signal:     make(chan struct{}, 1),
		detached:   make(chan struct{}),
		terminated: make(chan struct{}),
		out:        make(chan Message),
		now:        time.Now,
	}
}

// RunID returns the run this channel belongs to.
func (c *Channel) RunID() string {
	return c.runID
}

// Emit appends a message. A terminal type closes the channel; any Emit after
// that returns ErrChannelClosed. After Detach messages are discarded.
func (c *Channel) Emit(t MessageType, data any) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	msg := Message{Type: t, Data: data, Timestamp: c.now().UTC()}
	if !c.dropped {
		c.queue = append(c.queue, msg)
	}
	if t.Terminal() {
		c.closed = true
		close(c.terminated)
	}
	observer := c.observer
	if observer != nil {
		c.obsMu.Lock()
	}
	c.mu.Unlock()

	if observer != nil {
		observer(msg)
		c.obsMu.Unlock()
	}

	select {
	case c.signal <- struct{}{}:
	default:
	}
	return nil
}

// Observe registers fn to see every accepted message, including those
// produced after Detach. fn runs on the producer's goroutine, one message
// at a time, in the order the subscriber receives them.
func (c *Channel) Observe(fn func(Message)) {
	c.mu.Lock()
	c.observer = fn
	c.mu.Unlock()
}

// Log emits a log message.
func (c *Channel) Log(message string) error {
	return c.Emit(TypeLog, LogData{Message: message})
}

// Complete emits the terminal completed message.
func (c *Channel) Complete(finalOutput string) error {
	return c.Emit(TypeCompleted, CompletedData{FinalOutput: finalOutput})
}

// Fail emits the terminal error message.
func (c *Channel) Fail(err error) error {
	msg := "run failed"
	if err != nil {
		msg = err.Error()
	}
	return c.Emit(TypeError, ErrorData{Message: msg})
}

// Closed reports whether the terminal message has been emitted.
func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Terminated is closed once the terminal message has been emitted.
func (c *Channel) Terminated() <-chan struct{} {
	return c.terminated
}

// Subscribe attaches the only consumer. The returned channel yields every
// message in production order and is closed after the terminal message or
// on Detach.
func (c *Channel) Subscribe() (<-chan Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.subscribed {
		return nil, ErrAlreadySubscribed
	}
	c.subscribed = true
	go c.pump()
	return c.out, nil
}

// Detach drops the subscriber. The run keeps producing; its messages are
// discarded.
func (c *Channel) Detach() {
	c.detachOnce.Do(func() {
		c.mu.Lock()
		c.dropped = true
		c.queue = nil
		c.mu.Unlock()
		close(c.detached)
	})
}

func (c *Channel) pump() {
	defer close(c.out)

	for {
		c.mu.Lock()
		batch := c.queue
		c.queue = nil
		drained := c.closed && len(batch) == 0
		c.mu.Unlock()

		if drained {
			return
		}

		for _, msg := range batch {
			select {
			case c.out <- msg:
			case <-c.detached:
				return
			}
		}
		if len(batch) > 0 {
			continue
		}

		select {
		case <-c.signal:
		case <-c.detached:
			return
		}
	}
}
