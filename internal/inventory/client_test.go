package inventory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/nerrad567/sensorbridge/internal/credential"
)

// staticTokens is a TokenProvider returning a fixed token.
type staticTokens struct {
	token       string
	err         error
	invalidated atomic.Int32
}

func (s *staticTokens) GetToken(context.Context) (*oauth2.Token, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &oauth2.Token{AccessToken: s.token}, nil
}

func (s *staticTokens) Invalidate() { s.invalidated.Add(1) }

func newTestClient(t *testing.T, handler http.HandlerFunc, tokens TokenProvider) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL+"/v2/", "proj-1", tokens, 2*time.Second)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func TestNewClient_Validation(t *testing.T) {
	if _, err := NewClient("", "p", &staticTokens{}, 0); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("NewClient() error = %v, want ErrInvalidConfig", err)
	}
}

func TestFetch(t *testing.T) {
	tokens := &staticTokens{token: "abc"}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/projects/proj-1/devices" {
			http.NotFound(w, r)
			return
		}
		if got := r.URL.Query().Get("token"); got != "abc" {
			t.Errorf("token = %q, want abc", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"devices":[
			{"name":"projects/proj-1/devices/t1","type":"temperature","labels":{"name":"Office"},
			 "reported":{"temperature":{"value":21.5},"batteryStatus":{"percentage":90}}},
			{"name":"projects/proj-1/devices/p1","type":"proximity","labels":{}},
			{"name":42}
		]}`)
	}, tokens)

	descriptors, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(descriptors) != 2 {
		t.Fatalf("Fetch() returned %d descriptors, want 2 (undecodable device skipped)", len(descriptors))
	}

	d := descriptors[0]
	if d.ID != "projects/proj-1/devices/t1" || d.Type != "temperature" || d.Label() != "Office" {
		t.Errorf("descriptor = %+v", d)
	}
	if _, ok := d.Reported["temperature"]; !ok {
		t.Error("reported temperature missing")
	}
	if descriptors[1].Label() != "p1" {
		t.Errorf("Label() fallback = %q, want p1", descriptors[1].Label())
	}
}

func TestFetch_Paging(t *testing.T) {
	var requests atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		switch r.URL.Query().Get("pageToken") {
		case "":
			fmt.Fprint(w, `{"devices":[{"name":"projects/p/devices/a","type":"touch"}],"nextPageToken":"page2"}`)
		case "page2":
			fmt.Fprint(w, `{"devices":[{"name":"projects/p/devices/b","type":"touch"}]}`)
		default:
			t.Errorf("unexpected pageToken %q", r.URL.Query().Get("pageToken"))
		}
	}, &staticTokens{token: "abc"})

	descriptors, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(descriptors) != 2 || requests.Load() != 2 {
		t.Errorf("Fetch() = %d descriptors in %d requests, want 2 in 2", len(descriptors), requests.Load())
	}
}

func TestFetch_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantInv int32
	}{
		{"server error", http.StatusInternalServerError, `oops`, 0},
		{"unauthorized", http.StatusUnauthorized, `{"error":"expired"}`, 1},
		{"bad json", http.StatusOK, `{"devices": [`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens := &staticTokens{token: "abc"}
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}, tokens)

			_, err := c.Fetch(context.Background())
			if !errors.Is(err, ErrFetch) {
				t.Fatalf("Fetch() error = %v, want ErrFetch", err)
			}
			if got := tokens.invalidated.Load(); got != tt.wantInv {
				t.Errorf("Invalidate() calls = %d, want %d", got, tt.wantInv)
			}
		})
	}
}

func TestFetch_TokenError(t *testing.T) {
	tokens := &staticTokens{err: fmt.Errorf("%w: identity endpoint down", credential.ErrAuth)}
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		t.Error("inventory called without a token")
	}, tokens)

	_, err := c.Fetch(context.Background())
	if !errors.Is(err, credential.ErrAuth) {
		t.Errorf("Fetch() error = %v, want credential.ErrAuth", err)
	}
	if errors.Is(err, ErrFetch) {
		t.Error("token failure should not be reported as ErrFetch")
	}
}

func TestFetch_Timeout(t *testing.T) {
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL, "p", &staticTokens{token: "abc"}, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	start := time.Now()
	if _, err := c.Fetch(context.Background()); !errors.Is(err, ErrFetch) {
		t.Errorf("Fetch() error = %v, want ErrFetch", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Fetch() took %v, want bounded by timeout", elapsed)
	}
}

func TestRedact(t *testing.T) {
	got := redact(`Get "http://x/projects/p/devices?pageToken=2&token=secret": dial tcp`)
	want := `Get "http://x/projects/p/devices?pageToken=2&token=REDACTED": dial tcp`
	if got != want {
		t.Errorf("redact() = %q, want %q", got, want)
	}
}
