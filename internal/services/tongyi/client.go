package tongyi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"podscribe/internal/config"
	"podscribe/internal/logging"
	"podscribe/internal/services"
	"podscribe/internal/transcript"
)

const (
	component = "tongyi"

	// The record listing endpoint pages at a fixed size.
	listPageSize = 48

	defaultTimeout = 30 * time.Second

	resolvePollInterval = time.Second
)

// Client talks to the transcription service. Folder management, job
// submission, and listing go through the assistant endpoint; audio
// resolution and result retrieval go through the efficiency endpoint.
type Client struct {
	assistantBaseURL  string
	efficiencyBaseURL string
	httpClient        *http.Client
	logger            *slog.Logger

	mu     sync.RWMutex
	cookie string

	// Retry budgets per call family.
	control services.Policy
	resolve services.Policy
	fetch   services.Policy

	resolvePollLimit int
}

// Option adjusts client construction.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithRetryPolicies overrides the per-call-family retry budgets.
func WithRetryPolicies(control, resolve, fetch services.Policy) Option {
	return func(c *Client) {
		c.control = control
		c.resolve = resolve
		c.fetch = fetch
	}
}

// NewClient builds a transcription service client from configuration.
func NewClient(cfg config.Tongyi, logger *slog.Logger, opts ...Option) (*Client, error) {
	if cfg.Cookie == "" {
		return nil, services.Wrap(services.ErrFatal, component, "new_client", "session cookie required", nil)
	}
	backoff := time.Duration(cfg.RetryBackoffSeconds) * time.Second
	client := &Client{
		assistantBaseURL:  cfg.AssistantBaseURL,
		efficiencyBaseURL: cfg.EfficiencyBaseURL,
		httpClient:        &http.Client{Timeout: defaultTimeout},
		logger:            logging.NewComponentLogger(logger, component),
		cookie:            cfg.Cookie,
		control:           services.Policy{Attempts: 3, Backoff: backoff},
		resolve:           services.Policy{Attempts: 10, Backoff: backoff},
		fetch:             services.Policy{Attempts: 5, Backoff: backoff},
		resolvePollLimit:  cfg.ResolvePollLimit,
	}
	if client.resolvePollLimit <= 0 {
		client.resolvePollLimit = 300
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// UpdateCookie replaces the session credential for subsequent requests.
func (c *Client) UpdateCookie(cookie string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cookie = cookie
}

func (c *Client) currentCookie() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cookie
}

// EnsureFolder returns the id of the named remote folder, creating it when
// it does not exist yet.
func (c *Client) EnsureFolder(ctx context.Context, name string) (string, error) {
	var listing []struct {
		Dir struct {
			DirName string `json:"dirName"`
			IDStr   string `json:"idStr"`
		} `json:"dir"`
	}
	err := c.post(ctx, c.control, c.assistantBaseURL, "/assistant/api/record/dir/list/get", nil, &listing)
	if err != nil {
		return "", services.Wrap(nil, component, "ensure_folder", "list folders", err)
	}
	for _, entry := range listing {
		if entry.Dir.DirName == name {
			return entry.Dir.IDStr, nil
		}
	}

	payload := map[string]any{"dirName": name, "parentIdStr": -1}
	var created struct {
		FocusDir struct {
			IDStr string `json:"idStr"`
		} `json:"focusDir"`
	}
	err = c.post(ctx, c.control, c.assistantBaseURL, "/assistant/api/record/dir/add", payload, &created)
	if err != nil {
		return "", services.Wrap(nil, component, "ensure_folder", "create folder", err)
	}
	if created.FocusDir.IDStr == "" {
		return "", services.Wrap(services.ErrFatal, component, "ensure_folder", "create returned no folder id", nil)
	}
	c.logger.Info("created remote folder", logging.String("folder", name), logging.String("folder_id", created.FocusDir.IDStr))
	return created.FocusDir.IDStr, nil
}

// ListTasks returns every transcription job in the folder, walking all
// pages of the listing.
func (c *Client) ListTasks(ctx context.Context, folderID string) ([]Task, error) {
	var tasks []Task
	for pageNo := 1; ; pageNo++ {
		payload := map[string]any{
			"dirIdStr": folderID,
			"pageNo":   pageNo,
			"pageSize": listPageSize,
			"status":   []int{StatusRunning, StatusSucceeded, StatusFailed, StatusFailedRetry},
		}
		var page struct {
			BatchRecord []struct {
				RecordList []struct {
					GenRecordID  string `json:"genRecordId"`
					RecordID     string `json:"recordId"`
					RecordTitle  string `json:"recordTitle"`
					RecordStatus int    `json:"recordStatus"`
				} `json:"recordList"`
			} `json:"batchRecord"`
		}
		err := c.post(ctx, c.control, c.assistantBaseURL, "/assistant/api/record/list", payload, &page)
		if err != nil {
			return nil, services.Wrap(nil, component, "list_tasks", fmt.Sprintf("page %d", pageNo), err)
		}
		if len(page.BatchRecord) == 0 {
			break
		}
		for _, batch := range page.BatchRecord {
			for _, record := range batch.RecordList {
				tasks = append(tasks, Task{
					TaskID:   record.GenRecordID,
					RecordID: record.RecordID,
					Title:    record.RecordTitle,
					Status:   record.RecordStatus,
				})
			}
		}
	}
	return tasks, nil
}

// DeleteTask removes one job from the remote folder by record id.
func (c *Client) DeleteTask(ctx context.Context, recordID string) error {
	payload := map[string]any{"recordIds": []string{recordID}}
	err := c.post(ctx, c.control, c.assistantBaseURL, "/assistant/api/record/task/delete", payload, nil)
	if err != nil {
		return services.Wrap(nil, component, "delete_task", recordID, err)
	}
	return nil
}

// ResolveAudioSource registers an audio URL with the resolver and polls
// until the remote file is ready, returning the submission record. The
// display name becomes the job title.
func (c *Client) ResolveAudioSource(ctx context.Context, displayName, audioURL string) (*SubmitFile, error) {
	parsePayload := map[string]any{
		"action":  "parseNetSourceUrl",
		"version": "1.0",
		"url":     audioURL,
	}
	var parsed struct {
		TaskID string `json:"taskId"`
	}
	err := c.post(ctx, c.resolve, c.efficiencyBaseURL, "/api/trans/parseNetSourceUrl", parsePayload, &parsed)
	if err != nil {
		return nil, services.Wrap(nil, component, "resolve_audio", "parse url", err)
	}
	if parsed.TaskID == "" {
		return nil, services.Wrap(services.ErrFatal, component, "resolve_audio", "resolver returned no task id", nil)
	}

	queryPayload := map[string]any{
		"action":  "queryNetSourceParse",
		"version": "1.0",
		"taskId":  parsed.TaskID,
	}
	for poll := 0; poll < c.resolvePollLimit; poll++ {
		var state struct {
			Status int `json:"status"`
			URLs   []struct {
				FileID string `json:"fileId"`
				Size   int64  `json:"size"`
			} `json:"urls"`
		}
		err := c.post(ctx, c.resolve, c.efficiencyBaseURL, "/api/trans/queryNetSourceParse", queryPayload, &state)
		if err != nil {
			return nil, services.Wrap(nil, component, "resolve_audio", "query parse state", err)
		}
		switch {
		case state.Status == 0:
			if len(state.URLs) == 0 {
				return nil, services.Wrap(services.ErrFatal, component, "resolve_audio", "resolver returned no files", nil)
			}
			file := NewSubmitFile(state.URLs[0].FileID, state.URLs[0].Size, displayName)
			return &file, nil
		case state.Status == -1:
			if err := services.SleepWithContext(ctx, resolvePollInterval); err != nil {
				return nil, err
			}
		default:
			return nil, services.Wrap(services.ErrFatal, component, "resolve_audio",
				fmt.Sprintf("resolver failed with status %d", state.Status), nil)
		}
	}
	return nil, services.Wrap(services.ErrFatal, component, "resolve_audio", "resolver did not finish within poll limit", nil)
}

// SubmitBatch starts transcription jobs for the resolved files in the
// given folder.
func (c *Client) SubmitBatch(ctx context.Context, folderID string, files []SubmitFile) error {
	if len(files) == 0 {
		return nil
	}
	payload := map[string]any{
		"dirIdStr":    folderID,
		"files":       files,
		"taskType":    "net_source",
		"bizTerminal": "web",
	}
	err := c.post(ctx, c.control, c.assistantBaseURL, "/assistant/api/record/blog/start", payload, nil)
	if err != nil {
		return services.Wrap(nil, component, "submit_batch", fmt.Sprintf("%d files", len(files)), err)
	}
	c.logger.Info("submitted transcription batch",
		logging.String("folder_id", folderID),
		logging.Int("file_count", len(files)))
	return nil
}

// FetchTranscript retrieves and parses the utterances of a completed job.
func (c *Client) FetchTranscript(ctx context.Context, taskID string) ([]transcript.Utterance, error) {
	payload := map[string]any{
		"action":  "getTransResult",
		"version": "1.0",
		"transId": taskID,
	}
	var utterances []transcript.Utterance
	err := services.Retry(ctx, c.fetch, nil, func(ctx context.Context) error {
		var raw transcriptPayload
		if err := c.postOnce(ctx, c.efficiencyBaseURL, "/api/trans/getTransResult", payload, &raw); err != nil {
			return err
		}
		parsed, err := parseUtterances(raw)
		if err != nil {
			return err
		}
		utterances = parsed
		return nil
	})
	if err != nil {
		return nil, services.Wrap(nil, component, "fetch_transcript", taskID, err)
	}
	return utterances, nil
}

// FetchAnnotations retrieves the summary, mindmap, chapter, and Q&A cards
// of a completed job.
func (c *Client) FetchAnnotations(ctx context.Context, taskID string) (*transcript.Annotations, error) {
	payload := map[string]any{
		"action":  "getAllLabInfo",
		"content": []string{"labInfo", "labSummaryInfo"},
		"transId": taskID,
	}
	var annotations *transcript.Annotations
	err := services.Retry(ctx, c.fetch, nil, func(ctx context.Context) error {
		var raw annotationPayload
		if err := c.postOnce(ctx, c.efficiencyBaseURL, "/api/lab/getAllLabInfo", payload, &raw); err != nil {
			return err
		}
		parsed, err := parseAnnotations(raw)
		if err != nil {
			return err
		}
		annotations = parsed
		return nil
	})
	if err != nil {
		return nil, services.Wrap(nil, component, "fetch_annotations", taskID, err)
	}
	return annotations, nil
}

func (c *Client) post(ctx context.Context, policy services.Policy, base, path string, payload, out any) error {
	return services.Retry(ctx, policy, nil, func(ctx context.Context) error {
		return c.postOnce(ctx, base, path, payload, out)
	})
}

type envelope struct {
	Success  bool            `json:"success"`
	ErrorMsg string          `json:"errorMsg"`
	Message  string          `json:"message"`
	Data     json.RawMessage `json:"data"`
}

func (c *Client) postOnce(ctx context.Context, base, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return services.Wrap(services.ErrFatal, component, "request", "encode payload", err)
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path+"?c=tongyi-web", body)
	if err != nil {
		return services.Wrap(services.ErrFatal, component, "request", "build request", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, component, "request", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return services.Wrap(services.ErrUnauthorized, component, "request", "session cookie rejected", nil)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return services.Wrap(services.ErrTransient, component, "request",
			fmt.Sprintf("%s returned status %d", path, resp.StatusCode), nil)
	case resp.StatusCode != http.StatusOK:
		return services.Wrap(services.ErrFatal, component, "request",
			fmt.Sprintf("%s returned status %d", path, resp.StatusCode), nil)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return services.Wrap(services.ErrTransient, component, "request", "decode response", err)
	}
	if !env.Success {
		msg := env.ErrorMsg
		if msg == "" {
			msg = env.Message
		}
		if msg == "" {
			msg = "request rejected"
		}
		return services.Wrap(services.ErrFatal, component, "request", msg, nil)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return services.Wrap(services.ErrFatal, component, "request", "decode response data", err)
		}
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "https://tongyi.aliyun.com")
	req.Header.Set("Referer", "https://tongyi.aliyun.com/efficiency/doc/transcripts")
	req.Header.Set("X-Tw-From", "tongyi")
	req.Header.Set("Cookie", c.currentCookie())
}
