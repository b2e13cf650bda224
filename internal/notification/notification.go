package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Channel is a delivery medium.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

const (
	// KindEmailVerification carries the email verification link.
	KindEmailVerification = "email_verification"
	// KindPhoneVerification carries the six-digit phone code.
	KindPhoneVerification = "phone_verification"
	// KindPasswordReset carries the password reset link.
	KindPasswordReset = "password_reset"
)

// ErrNoTransport is returned when no notifier is configured for a channel.
var ErrNoTransport = errors.New("no transport configured for channel")

// Message describes a notification payload.
type Message struct {
	Kind        string
	Channel     Channel
	Destination string
	Subject     string
	Body        string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the logger. Development only: the
// body contains live verification secrets.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification",
		"kind", message.Kind,
		"channel", string(message.Channel),
		"destination", message.Destination,
		"subject", message.Subject,
		"body", message.Body,
	)
	return nil
}

// Router sends each message through the notifier registered for its channel.
type Router struct {
	routes map[Channel]Notifier
}

// NewRouter builds a router. Nil notifiers are skipped.
func NewRouter(email, sms Notifier) *Router {
	r := &Router{routes: make(map[Channel]Notifier, 2)}
	if email != nil {
		r.routes[ChannelEmail] = email
	}
	if sms != nil {
		r.routes[ChannelSMS] = sms
	}
	return r
}

func (r *Router) Send(ctx context.Context, message Message) error {
	n, ok := r.routes[message.Channel]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoTransport, message.Channel)
	}
	return n.Send(ctx, message)
}

// MemoryNotifier records messages and can be told to fail per channel.
type MemoryNotifier struct {
	mu       sync.Mutex
	messages []Message
	failures map[Channel]error
}

// FailChannel makes every later Send on channel return err.
func (n *MemoryNotifier) FailChannel(channel Channel, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failures == nil {
		n.failures = make(map[Channel]error)
	}
	n.failures[channel] = err
}

func (n *MemoryNotifier) Send(_ context.Context, message Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.failures[message.Channel]; err != nil {
		return err
	}
	n.messages = append(n.messages, message)
	return nil
}

// Messages returns a snapshot of delivered messages.
func (n *MemoryNotifier) Messages() []Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Message, len(n.messages))
	copy(out, n.messages)
	return out
}

// Last returns the most recent message of kind, if any.
func (n *MemoryNotifier) Last(kind string) (Message, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.messages) - 1; i >= 0; i-- {
		if n.messages[i].Kind == kind {
			return n.messages[i], true
		}
	}
	return Message{}, false
}
