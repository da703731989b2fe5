package emit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fenimore/stuff/internal/domain"
)

// Webhook posts each listing as JSON to a notification gateway (an SMS
// bridge, a chat hook, whatever accepts a bearer token and a POST). It
// stands in for the per-provider channels of the original setup.
type Webhook struct {
	URL    string
	Token  string // optional; sent as a Bearer header when set
	Client *http.Client
}

func NewWebhook(url, token string) *Webhook {
	return &Webhook{
		URL:    url,
		Token:  token,
		Client: &http.Client{Timeout: 15 * time.Second},
	}
}

type webhookPayload struct {
	Text      string   `json:"text"`
	Title     string   `json:"title"`
	URL       string   `json:"url"`
	Price     int      `json:"price"`
	ImageURLs []string `json:"image_urls,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
}

func (w *Webhook) Emit(ctx context.Context, l domain.Listing) (Result, error) {
	p := webhookPayload{
		Text:      fmt.Sprintf("%s for $%d at %s. Click %s for more details", l.Title, l.Price, l.Neighborhood, l.URL),
		Title:     l.Title,
		URL:       l.URL,
		Price:     l.Price,
		ImageURLs: l.ImageURLs,
	}
	if l.Coordinates != nil {
		lon, lat := l.Coordinates.Longitude, l.Coordinates.Latitude
		p.Longitude, p.Latitude = &lon, &lat
	}

	body, err := json.Marshal(p)
	if err != nil {
		return Result{}, fmt.Errorf("webhook marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.Token != "" {
		req.Header.Set("Authorization", "Bearer "+w.Token)
	}

	res, err := w.Client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("webhook post: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		return Result{}, fmt.Errorf("webhook status %d", res.StatusCode)
	}
	return Result{Channel: "webhook", Ref: res.Status}, nil
}

func (w *Webhook) Describe(r Result) string {
	return fmt.Sprintf("Webhook<%s %s>", w.URL, r.Ref)
}
