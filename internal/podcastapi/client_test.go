package podcastapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"podscribe/internal/config"
	"podscribe/internal/podcastapi"
	"podscribe/internal/services"
)

func newTestClient(t *testing.T, baseURL string) *podcastapi.Client {
	t.Helper()
	client, err := podcastapi.NewClient(config.PodcastAPI{
		BaseURL:      baseURL,
		RefreshToken: "refresh",
		DeviceID:     "device",
	}, nil, podcastapi.WithRetryPolicy(services.Policy{Attempts: 3, Backoff: time.Millisecond}))
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	return client
}

func TestNewClientRequiresRefreshToken(t *testing.T) {
	if _, err := podcastapi.NewClient(config.PodcastAPI{BaseURL: "https://example.com"}, nil); err == nil {
		t.Fatal("expected error when refresh token is missing")
	}
}

func TestEpisodesFollowsPagination(t *testing.T) {
	var pages atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/app_auth_tokens.refresh":
			_ = json.NewEncoder(w).Encode(map[string]string{"x-jike-access-token": "token"})
		case "/v1/episode/list":
			if r.Header.Get("x-jike-access-token") != "token" {
				t.Errorf("missing access token header")
			}
			switch pages.Add(1) {
			case 1:
				_, _ = w.Write([]byte(`{"data":[{"eid":"e1","title":"one","duration":600,"pubDate":"2024-05-01T10:00:00Z","payType":"FREE","enclosure":{"url":"https://cdn/e1.mp3"}}],"loadMoreKey":{"pubDate":"x"}}`))
			default:
				_, _ = w.Write([]byte(`{"data":[{"eid":"e2","title":"two","duration":300,"payType":"PAY","enclosure":{"url":"https://cdn/e2.mp3"}}],"loadMoreKey":null}`))
			}
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	t.Cleanup(server.Close)

	client := newTestClient(t, server.URL)
	episodes, err := client.Episodes(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Episodes returned error: %v", err)
	}
	if len(episodes) != 2 {
		t.Fatalf("expected 2 episodes, got %d", len(episodes))
	}
	if episodes[0].EID != "e1" || episodes[0].PID != "p1" {
		t.Fatalf("unexpected first episode: %+v", episodes[0])
	}
	if episodes[0].PayTier {
		t.Fatal("free episode marked pay tier")
	}
	if !episodes[1].PayTier {
		t.Fatal("pay episode not marked pay tier")
	}
	if episodes[0].PubDate == 0 {
		t.Fatal("expected parsed publish timestamp")
	}
}

func TestEpisodesRefreshesTokenOn401(t *testing.T) {
	var refreshes atomic.Int32
	var rejected atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/app_auth_tokens.refresh":
			refreshes.Add(1)
			_ = json.NewEncoder(w).Encode(map[string]string{"x-jike-access-token": "token"})
		case "/v1/episode/list":
			if !rejected.Swap(true) {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"data":[],"loadMoreKey":null}`))
		}
	}))
	t.Cleanup(server.Close)

	client := newTestClient(t, server.URL)
	if _, err := client.Episodes(context.Background(), "p1"); err != nil {
		t.Fatalf("Episodes returned error: %v", err)
	}
	// One eager acquisition plus one refresh triggered by the 401.
	if got := refreshes.Load(); got != 2 {
		t.Fatalf("expected 2 token refreshes, got %d", got)
	}
}

func TestEpisodesNotFoundIsNotRetried(t *testing.T) {
	var listCalls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/app_auth_tokens.refresh":
			_ = json.NewEncoder(w).Encode(map[string]string{"x-jike-access-token": "token"})
		case "/v1/episode/list":
			listCalls.Add(1)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)

	client := newTestClient(t, server.URL)
	_, err := client.Episodes(context.Background(), "gone")
	if err == nil {
		t.Fatal("expected error for missing podcast")
	}
	if !errors.Is(err, services.ErrNotFound) {
		t.Errorf("expected a not-found classification, got %v", err)
	}
	if got := listCalls.Load(); got != 1 {
		t.Errorf("missing podcast must not be retried, got %d attempts", got)
	}
}

func TestSubscriptionsNormalizes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/app_auth_tokens.refresh":
			_ = json.NewEncoder(w).Encode(map[string]string{"x-jike-access-token": "token"})
		case "/v1/subscription/list":
			_, _ = w.Write([]byte(`{"data":[{"pid":"p1","title":"show","brief":"b","episodeCount":12}],"loadMoreKey":null}`))
		}
	}))
	t.Cleanup(server.Close)

	client := newTestClient(t, server.URL)
	podcasts, err := client.Subscriptions(context.Background())
	if err != nil {
		t.Fatalf("Subscriptions returned error: %v", err)
	}
	if len(podcasts) != 1 || podcasts[0].PID != "p1" || podcasts[0].EpisodeCount != 12 {
		t.Fatalf("unexpected podcasts: %+v", podcasts)
	}
}
