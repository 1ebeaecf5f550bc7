package srv

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultChunkDelay spaces out the chunks of one message.
const DefaultChunkDelay = 3 * time.Second

// Message is one notification. Title is sent as is; Body is split into
// code blocks that fit the chat message limit.
type Message struct {
	Title string
	Body  string
}

// Notifier delivers messages to a chat channel. Channel names where the
// messages go; it is recorded with each delivery.
type Notifier interface {
	Post(ctx context.Context, msg Message) error
	Channel() string
}

// ChunkText splits text on line boundaries into chunks that fit in maxLen
// characters once fenced by codeBlock. A chunk not ending in a newline counts
// one extra, so every fenced chunk is at most maxLen+6. A line longer than
// maxLen is split on its own.
func ChunkText(text string, maxLen int) []string {
	var chunks []string
	var cur strings.Builder
	curLen := 0

	flush := func() {
		if curLen > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curLen = 0
		}
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		n := utf8.RuneCountInString(line)
		if n == 0 {
			continue
		}
		if !strings.HasSuffix(line, "\n") {
			n++
		}
		if curLen+n > maxLen {
			flush()
		}
		for n > maxLen {
			runes := []rune(line)
			chunks = append(chunks, string(runes[:maxLen-1]))
			line = string(runes[maxLen-1:])
			n -= maxLen - 1
		}
		cur.WriteString(line)
		curLen += n
	}
	flush()
	return chunks
}

// codeBlock fences a chunk. The trailing newline is dropped, so a chunk
// ending in one fits in its length plus 6.
func codeBlock(chunk string) string {
	return "```\n" + strings.TrimSuffix(chunk, "\n") + "```"
}

// Render returns the chat messages msg is sent as.
func (msg Message) Render(maxLen int) []string {
	var out []string
	if msg.Title != "" {
		out = append(out, msg.Title)
	}
	for _, c := range ChunkText(msg.Body, maxLen) {
		out = append(out, codeBlock(c))
	}
	return out
}

// WebhookError is returned when the chat service rejects a message.
type WebhookError struct {
	StatusCode int
	Body       string
}

func (e *WebhookError) Error() string {
	return fmt.Sprintf("webhook returned %d: %s", e.StatusCode, e.Body)
}

// DiscordNotifier posts to a Discord webhook.
type DiscordNotifier struct {
	URL       string
	MaxLength int
	Delay     time.Duration
	client    *http.Client
}

// NewDiscordNotifier returns a notifier for the webhook at webhookURL.
func NewDiscordNotifier(webhookURL string, maxLength int) *DiscordNotifier {
	return &DiscordNotifier{
		URL:       webhookURL,
		MaxLength: maxLength,
		Delay:     DefaultChunkDelay,
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   15 * time.Second,
		},
	}
}

type webhookPayload struct {
	Content string `json:"content"`
}

type rateLimitPayload struct {
	RetryAfter float64 `json:"retry_after"`
}

// Post sends every part of msg in order. It stops at the first failure.
func (d *DiscordNotifier) Post(ctx context.Context, msg Message) error {
	for i, part := range msg.Render(d.MaxLength) {
		if i > 0 && d.Delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.Delay):
			}
		}
		if err := d.send(ctx, part); err != nil {
			return fmt.Errorf("post part %d: %w", i+1, err)
		}
	}
	return nil
}

// send posts one message, retrying once when Discord asks to slow down.
func (d *DiscordNotifier) send(ctx context.Context, content string) error {
	body, err := json.Marshal(webhookPayload{Content: content})
	if err != nil {
		return err
	}

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := d.client.Do(req)
		if err != nil {
			return err
		}
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()

		switch {
		case resp.StatusCode < 300:
			return nil
		case resp.StatusCode == http.StatusTooManyRequests && attempt == 0:
			var rl rateLimitPayload
			_ = json.Unmarshal(respBody, &rl)
			wait := time.Duration(rl.RetryAfter * float64(time.Second))
			slog.Warn("webhook rate limited", "retry_after", wait)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		default:
			return &WebhookError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
		}
	}
}

// Channel is "discord:" followed by the webhook id. The token is never
// included.
func (d *DiscordNotifier) Channel() string {
	u, err := url.Parse(d.URL)
	if err != nil {
		return "discord"
	}
	_, rest, ok := strings.Cut(u.Path, "/webhooks/")
	if !ok {
		return "discord"
	}
	id, _, _ := strings.Cut(rest, "/")
	if id == "" {
		return "discord"
	}
	return "discord:" + id
}

// LogNotifier writes messages to the log. It is used when no webhook is
// configured.
type LogNotifier struct {
	MaxLength int
}

// Post logs every part of msg.
func (l LogNotifier) Post(ctx context.Context, msg Message) error {
	parts := msg.Render(l.MaxLength)
	for i, part := range parts {
		slog.InfoContext(ctx, "notification", "part", i+1, "of", len(parts), "content", part)
	}
	return nil
}

func (l LogNotifier) Channel() string { return "log" }
