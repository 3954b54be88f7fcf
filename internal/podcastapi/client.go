package podcastapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"podscribe/internal/config"
	"podscribe/internal/logging"
	"podscribe/internal/services"
)

const (
	applicationID   = "app.podcast.cosmos"
	pageLimit       = 25
	defaultTimeout  = 15 * time.Second
	defaultAttempts = 3
	defaultBackoff  = 5 * time.Second
)

// Client talks to the podcast subscription platform. The access token is an
// immutable value replaced wholesale on refresh; requests never mutate shared
// header state.
type Client struct {
	baseURL      string
	deviceID     string
	refreshToken string
	httpClient   *http.Client
	logger       *slog.Logger
	policy       services.Policy

	mu          sync.RWMutex
	accessToken string
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryPolicy overrides the default retry budget (3 attempts, 5s backoff).
func WithRetryPolicy(policy services.Policy) Option {
	return func(c *Client) {
		c.policy = policy
	}
}

// NewClient constructs a podcast platform client from configuration.
func NewClient(cfg config.PodcastAPI, logger *slog.Logger, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.RefreshToken) == "" {
		return nil, errors.New("podcast api refresh token required")
	}
	client := &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		deviceID:     strings.TrimSpace(cfg.DeviceID),
		refreshToken: strings.TrimSpace(cfg.RefreshToken),
		httpClient:   &http.Client{Timeout: defaultTimeout},
		logger:       logging.NewComponentLogger(logger, "podcastapi"),
		policy:       services.Policy{Attempts: defaultAttempts, Backoff: defaultBackoff},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// RefreshAccessToken exchanges the refresh token for a new access token,
// replacing the held credential.
func (c *Client) RefreshAccessToken(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/app_auth_tokens.refresh", nil)
	if err != nil {
		return fmt.Errorf("build refresh request: %w", err)
	}
	c.setHeaders(req, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "podcastapi", "refresh token", "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return services.Wrap(services.ErrFatal, "podcastapi", "refresh token", fmt.Sprintf("http %d", resp.StatusCode), nil)
	}

	var payload map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decode refresh response: %w", err)
	}
	token := payload["x-jike-access-token"]
	if token == "" {
		return services.Wrap(services.ErrFatal, "podcastapi", "refresh token", "no access token in response", nil)
	}

	c.mu.Lock()
	c.accessToken = token
	c.mu.Unlock()
	c.logger.Debug("access token refreshed")
	return nil
}

// EnsureToken acquires an access token if none is held yet.
func (c *Client) EnsureToken(ctx context.Context) error {
	c.mu.RLock()
	have := c.accessToken != ""
	c.mu.RUnlock()
	if have {
		return nil
	}
	return c.RefreshAccessToken(ctx)
}

// Subscriptions fetches the full subscription list, following pagination.
func (c *Client) Subscriptions(ctx context.Context) ([]Podcast, error) {
	var result []Podcast
	body := map[string]any{
		"limit":     pageLimit,
		"sortBy":    "subscribedAt",
		"sortOrder": "desc",
	}
	var loadMoreKey json.RawMessage
	for {
		if loadMoreKey != nil {
			body["loadMoreKey"] = loadMoreKey
		}
		var page struct {
			Data        []subscriptionRecord `json:"data"`
			LoadMoreKey json.RawMessage      `json:"loadMoreKey"`
		}
		if err := c.post(ctx, "/v1/subscription/list", body, &page); err != nil {
			return nil, err
		}
		for _, record := range page.Data {
			result = append(result, record.normalize())
		}
		if isNullKey(page.LoadMoreKey) {
			return result, nil
		}
		loadMoreKey = page.LoadMoreKey
	}
}

// Episodes fetches every episode of the given podcast, following pagination,
// normalized into the pipeline's episode record.
func (c *Client) Episodes(ctx context.Context, pid string) ([]Episode, error) {
	pid = strings.TrimSpace(pid)
	if pid == "" {
		return nil, errors.New("pid must not be empty")
	}
	var result []Episode
	var loadMoreKey json.RawMessage
	for {
		body := map[string]any{
			"limit": pageLimit,
			"pid":   pid,
		}
		if loadMoreKey != nil {
			body["loadMoreKey"] = loadMoreKey
		}
		var page struct {
			Data        []episodeRecord `json:"data"`
			LoadMoreKey json.RawMessage `json:"loadMoreKey"`
		}
		if err := c.post(ctx, "/v1/episode/list", body, &page); err != nil {
			return nil, err
		}
		if len(page.Data) == 0 {
			return result, nil
		}
		for _, record := range page.Data {
			episode, ok := record.normalize(pid)
			if !ok {
				c.logger.Warn("skipping episode without eid", logging.String("title", record.Title))
				continue
			}
			result = append(result, episode)
		}
		if isNullKey(page.LoadMoreKey) {
			return result, nil
		}
		loadMoreKey = page.LoadMoreKey
	}
}

// post issues one authenticated JSON request under the retry policy,
// refreshing the access token once on an auth rejection.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	if err := c.EnsureToken(ctx); err != nil {
		return err
	}
	return services.Retry(ctx, c.policy, c.RefreshAccessToken, func(ctx context.Context) error {
		return c.postOnce(ctx, path, body, out)
	})
}

func (c *Client) postOnce(ctx context.Context, path string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	c.mu.RLock()
	token := c.accessToken
	c.mu.RUnlock()
	c.setHeaders(req, token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "podcastapi", path, "", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return services.Wrap(services.ErrUnauthorized, "podcastapi", path, "token rejected", nil)
	case resp.StatusCode == http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, "podcastapi", path, "http 404", nil)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return services.Wrap(services.ErrTransient, "podcastapi", path, fmt.Sprintf("http %d", resp.StatusCode), nil)
	case resp.StatusCode != http.StatusOK:
		return services.Wrap(services.ErrFatal, "podcastapi", path, fmt.Sprintf("http %d", resp.StatusCode), nil)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request, accessToken string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("applicationid", applicationID)
	req.Header.Set("x-jike-refresh-token", c.refreshToken)
	if c.deviceID != "" {
		req.Header.Set("x-jike-device-id", c.deviceID)
	}
	if accessToken != "" {
		req.Header.Set("x-jike-access-token", accessToken)
	}
}

func isNullKey(key json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(key))
	return trimmed == "" || trimmed == "null"
}

type subscriptionRecord struct {
	PID                  string `json:"pid"`
	Title                string `json:"title"`
	Brief                string `json:"brief"`
	Description          string `json:"description"`
	EpisodeCount         int    `json:"episodeCount"`
	LatestEpisodePubDate string `json:"latestEpisodePubDate"`
}

func (r subscriptionRecord) normalize() Podcast {
	return Podcast{
		PID:                  r.PID,
		Title:                r.Title,
		Brief:                r.Brief,
		Description:          r.Description,
		EpisodeCount:         r.EpisodeCount,
		LatestEpisodePubDate: r.LatestEpisodePubDate,
	}
}

type episodeRecord struct {
	EID         string `json:"eid"`
	PID         string `json:"pid"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Duration    int    `json:"duration"`
	PubDate     string `json:"pubDate"`
	PayType     string `json:"payType"`
	Enclosure   struct {
		URL string `json:"url"`
	} `json:"enclosure"`
	Media struct {
		Size int64 `json:"size"`
	} `json:"media"`
	Podcast struct {
		Author string `json:"author"`
	} `json:"podcast"`
}

func (r episodeRecord) normalize(pid string) (Episode, bool) {
	if strings.TrimSpace(r.EID) == "" {
		return Episode{}, false
	}
	if r.PID == "" {
		r.PID = pid
	}
	var published int64
	if r.PubDate != "" {
		if ts, err := time.Parse(time.RFC3339, r.PubDate); err == nil {
			published = ts.UTC().Unix()
		}
	}
	payTier := r.PayType != "" && !strings.EqualFold(r.PayType, "FREE")
	return Episode{
		EID:         r.EID,
		PID:         r.PID,
		Title:       r.Title,
		Description: r.Description,
		Duration:    r.Duration,
		Enclosure: Enclosure{
			URL:    r.Enclosure.URL,
			Type:   "audio/mpeg",
			Length: r.Media.Size,
		},
		PubDate: published,
		Author:  r.Podcast.Author,
		PayTier: payTier,
	}, true
}
