package notification

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Result is the per-channel delivery outcome reported to callers.
type Result struct {
	Sent  bool   `json:"sent"`
	Error string `json:"error,omitempty"`
}

const errTimedOut = "delivery timed out"

// Dispatcher sends a batch of messages concurrently under one deadline.
// It never returns an error: failures are reported in the results.
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	logger   *slog.Logger
}

// NewDispatcher wraps notifier. timeout bounds the whole batch.
func NewDispatcher(notifier Notifier, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{notifier: notifier, timeout: timeout, logger: logger}
}

// Dispatch delivers msgs and returns once every send finished or the
// deadline passed, whichever comes first. Sends still running at the
// deadline are reported as timed out and left to finish in the background.
func (d *Dispatcher) Dispatch(ctx context.Context, msgs ...Message) map[Channel]Result {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)

	var (
		mu      sync.Mutex
		results = make(map[Channel]Result, len(msgs))
		g       errgroup.Group
	)
	for _, msg := range msgs {
		msg := msg
		g.Go(func() error {
			err := d.notifier.Send(ctx, msg)
			res := Result{Sent: err == nil}
			if err != nil {
				res.Error = err.Error()
				d.logger.Warn("notification failed",
					slog.String("kind", msg.Kind),
					slog.String("channel", string(msg.Channel)),
					slog.Any("error", err))
			}
			mu.Lock()
			results[msg.Channel] = res
			mu.Unlock()
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		cancel()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}

	mu.Lock()
	defer mu.Unlock()
	out := make(map[Channel]Result, len(msgs))
	for _, msg := range msgs {
		if res, ok := results[msg.Channel]; ok {
			out[msg.Channel] = res
		} else {
			out[msg.Channel] = Result{Error: errTimedOut}
		}
	}
	return out
}
