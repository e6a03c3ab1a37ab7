// Package notifier delivers alert text to the operator's LINE audience.
package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

type textMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type broadcastRequest struct {
	Messages []textMessage `json:"messages"`
}

// LINE sends broadcast messages through the LINE Messaging API.
type LINE struct {
	token  string
	url    string
	client *resty.Client
}

func NewLINE(token, url string) *LINE {
	client := resty.New()
	client.SetTimeout(30 * time.Second)
	client.SetHeader("Content-Type", "application/json")

	return &LINE{
		token:  token,
		url:    url,
		client: client,
	}
}

// Enabled reports whether a token is configured.
func (n *LINE) Enabled() bool {
	return n.token != ""
}

// Broadcast joins messages with a blank line and sends them as one text
// message. Delivery is attempted once; failures are returned to the caller
// to log. Without a token the call only logs and returns nil.
func (n *LINE) Broadcast(ctx context.Context, messages []string) error {
	if len(messages) == 0 {
		return nil
	}
	if !n.Enabled() {
		slog.Info("LINE token not found, skipping notification", "messages", len(messages))
		return nil
	}

	text := strings.Join(messages, "\n\n")
	res, err := n.client.R().
		SetContext(ctx).
		SetAuthToken(n.token).
		SetBody(broadcastRequest{
			Messages: []textMessage{{Type: "text", Text: text}},
		}).
		Post(n.url)
	if err != nil {
		return fmt.Errorf("send LINE broadcast: %w", err)
	}
	if !res.IsSuccess() {
		return fmt.Errorf("LINE broadcast returned status %d: %s", res.StatusCode(), strings.TrimSpace(res.String()))
	}

	first, _, _ := strings.Cut(text, "\n")
	slog.Info("LINE notification sent", "messages", len(messages), "first_line", first)
	return nil
}
