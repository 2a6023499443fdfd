// Package notify delivers broadcast messages to an outbound webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"schoolrecords/internal/logger"
	"schoolrecords/internal/queue"
)

// Broadcaster posts messages to a webhook. With Skip set it only logs them.
type Broadcaster struct {
	URL  string
	HTTP *http.Client
	Skip bool

	// Observe, when set, is called with the outcome of every Send made by Run.
	Observe func(error)
}

// New creates a broadcaster. An empty url forces skip mode.
func New(url string, skip bool) *Broadcaster {
	return &Broadcaster{
		URL:  url,
		Skip: skip || url == "",
		HTTP: &http.Client{Timeout: 10 * time.Second},
	}
}

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	SentAt  time.Time       `json:"sentAt"`
}

// Send delivers one message.
func (b *Broadcaster) Send(ctx context.Context, msg queue.Message) error {
	if b.Skip {
		logger.Info().Str("type", msg.Type).Int("bytes", len(msg.Body)).Msg("broadcast skipped")
		return nil
	}
	payload := json.RawMessage(msg.Body)
	if !json.Valid(payload) {
		quoted, _ := json.Marshal(string(msg.Body))
		payload = quoted
	}
	body, err := json.Marshal(envelope{Type: msg.Type, Payload: payload, SentAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("webhook error %s: %s", resp.Status, string(respBody))
	}
	return nil
}

// Run consumes q until ctx is done, sending each message. Failures are
// logged and the message is dropped.
func Run(ctx context.Context, q queue.Queue, b *Broadcaster) error {
	msgs, err := q.Consume(ctx)
	if err != nil {
		return err
	}
	for msg := range msgs {
		sendCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		err := b.Send(sendCtx, msg)
		cancel()
		if err != nil {
			logger.Error().Err(err).Str("type", msg.Type).Msg("broadcast failed")
		}
		if b.Observe != nil {
			b.Observe(err)
		}
	}
	return nil
}
