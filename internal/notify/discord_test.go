package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestDiscord_PostsEmbed(t *testing.T) {
	var got discordPayload
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	d := NewDiscord(ts.URL)
	d.Now = func() time.Time { return time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC) }
	err := d.Send(context.Background(), Message{
		Title:     "Casa Paco",
		URL:       "https://resy.com/cities/toronto-on/venues/casa-paco",
		Thumbnail: "https://img/1.jpg",
		Fields: []Field{
			{Name: "Date:", Value: "2025-09-03"},
			{Name: "Time:", Value: "7:00 PM"},
		},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(got.Embeds) != 1 {
		t.Fatalf("want one embed, got %+v", got)
	}
	e := got.Embeds[0]
	if e.Title != "Casa Paco" || e.Color != embedColor || e.Timestamp != "2025-09-01T12:00:00Z" {
		t.Fatalf("unexpected embed header %+v", e)
	}
	if len(e.Fields) != 2 || e.Fields[1].Value != "7:00 PM" || e.Thumbnail == nil || e.Thumbnail.URL != "https://img/1.jpg" {
		t.Fatalf("unexpected embed body %+v", e)
	}
}

func TestDiscord_WaitsOutRateLimit(t *testing.T) {
	var n atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if n.Add(1) == 1 {
			w.Header().Set("Retry-After", "0.01")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	if err := NewDiscord(ts.URL).Send(context.Background(), Message{Title: "X"}); err != nil {
		t.Fatalf("want success after rate limit, got %v", err)
	}
	if n.Load() != 2 {
		t.Fatalf("want 2 posts, got %d", n.Load())
	}
}

func TestDiscord_Non2xx(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	if err := NewDiscord(ts.URL).Send(context.Background(), Message{Title: "X"}); err == nil {
		t.Fatalf("expected error on non-2xx")
	}
}

type stubNotifier struct {
	n   int
	err error
}

func (s *stubNotifier) Send(context.Context, Message) error {
	s.n++
	return s.err
}

func TestMulti_DeliversToAllAndCombinesErrors(t *testing.T) {
	a := &stubNotifier{err: errors.New("a down")}
	b := &stubNotifier{}
	c := &stubNotifier{err: errors.New("c down")}

	err := Multi{a, nil, b, c}.Send(context.Background(), Message{Title: "X"})
	if a.n != 1 || b.n != 1 || c.n != 1 {
		t.Fatalf("every notifier should be called once: %d %d %d", a.n, b.n, c.n)
	}
	if err == nil || err.Error() != "a down; c down" {
		t.Fatalf("want combined error, got %v", err)
	}
}
