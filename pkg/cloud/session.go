package cloud

import (
	"context"
	"time"
)

type EventKind int

const (
	Connected EventKind = iota
	ConnectionLost
	Message
)

func (k EventKind) String() string {
	switch k {
	case Connected:
		return "connected"
	case ConnectionLost:
		return "lost"
	case Message:
		return "message"
	default:
		return "unknown"
	}
}

// Event is posted by a Session from its own goroutines and handled by
// Client.Process.
type Event struct {
	Kind      EventKind
	Topic     string
	Payload   []byte
	Duplicate bool
	Err       error

	session uint64
}

// PostFunc queues an event. It never blocks.
type PostFunc func(Event)

type SessionOptions struct {
	ClientID string
	Username string
	Password string
	Timeout  time.Duration
}

// Session is one publish-subscribe connection. It is discarded once lost.
type Session interface {
	Start(ctx context.Context) error
	Subscribe(topic string, qos byte) error
	Unsubscribe(topic string) error
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Close()
}

type Dialer interface {
	Dial(ctx context.Context, opts SessionOptions, post PostFunc) (Session, error)
}
