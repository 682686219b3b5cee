package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

const embedColor = 0x2ecc71

// Discord posts a single embed per message to a channel webhook.
type Discord struct {
	Webhook string
	Client  *http.Client
	Now     func() time.Time
	// MaxRateLimitWaits bounds how often a 429 is waited out before giving up.
	MaxRateLimitWaits int
}

// NewDiscord returns nil when no webhook is configured.
func NewDiscord(webhook string) *Discord {
	if webhook == "" {
		return nil
	}
	return &Discord{
		Webhook:           webhook,
		Client:            &http.Client{Timeout: 10 * time.Second},
		Now:               time.Now,
		MaxRateLimitWaits: 2,
	}
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordImage struct {
	URL string `json:"url"`
}

type discordEmbed struct {
	Title     string         `json:"title"`
	URL       string         `json:"url,omitempty"`
	Color     int            `json:"color"`
	Timestamp string         `json:"timestamp"`
	Fields    []discordField `json:"fields"`
	Thumbnail *discordImage  `json:"thumbnail,omitempty"`
}

type discordPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

func (d *Discord) Send(ctx context.Context, msg Message) error {
	if d == nil || d.Webhook == "" {
		return errors.New("discord disabled")
	}
	embed := discordEmbed{
		Title:     msg.Title,
		URL:       msg.URL,
		Color:     embedColor,
		Timestamp: d.Now().UTC().Format(time.RFC3339),
	}
	for _, f := range msg.Fields {
		embed.Fields = append(embed.Fields, discordField{Name: f.Name, Value: f.Value, Inline: true})
	}
	if msg.Thumbnail != "" {
		embed.Thumbnail = &discordImage{URL: msg.Thumbnail}
	}
	body, _ := json.Marshal(discordPayload{Embeds: []discordEmbed{embed}})

	for waits := 0; ; waits++ {
		status, retryAfter, err := d.post(ctx, body)
		if err != nil {
			return err
		}
		if status == http.StatusTooManyRequests && waits < d.MaxRateLimitWaits {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryAfter):
			}
			continue
		}
		if status/100 != 2 {
			return fmt.Errorf("discord non-2xx: %d", status)
		}
		return nil
	}
}

func (d *Discord) post(ctx context.Context, body []byte) (int, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.Webhook, bytes.NewReader(body))
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.Client.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()

	retryAfter := time.Second
	if v, err := strconv.ParseFloat(resp.Header.Get("Retry-After"), 64); err == nil && v >= 0 {
		retryAfter = time.Duration(v * float64(time.Second))
	}
	return resp.StatusCode, retryAfter, nil
}
