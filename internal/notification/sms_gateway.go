package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
)

const defaultGatewayTimeout = 5 * time.Second

// SMSGateway posts text messages to an HTTP gateway as
// {"to": "+15551234567", "body": "..."} with a bearer token.
type SMSGateway struct {
	url   string
	token string
}

// NewSMSGateway builds an SMS notifier for the gateway at url.
func NewSMSGateway(url, token string) *SMSGateway {
	return &SMSGateway{url: url, token: token}
}

type smsRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

func (g *SMSGateway) Send(ctx context.Context, message Message) error {
	if message.Channel != ChannelSMS {
		return fmt.Errorf("sms gateway: unsupported channel %s", message.Channel)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	timeout := defaultGatewayTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return context.DeadlineExceeded
		}
	}

	agent := fiber.Post(g.url).
		Timeout(timeout).
		JSON(smsRequest{To: message.Destination, Body: message.Body})
	if g.token != "" {
		agent.Set(fiber.HeaderAuthorization, "Bearer "+g.token)
	}

	status, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("sms gateway: %w", errors.Join(errs...))
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("sms gateway: status %d: %s", status, truncate(body, 200))
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n])
	}
	return string(b)
}
