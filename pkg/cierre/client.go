// Package cierre wraps the payroll-close backend REST API: file uploads,
// job status polling, header mapping, and ledger account classification.
package cierre

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/cierreops/cierre-cli/internal/model"
	"github.com/cierreops/cierre-cli/internal/resilience"
)

// TokenProvider supplies the bearer token authorizing every request.
// Injected so callers control credential lifetime; the client never reads
// ambient global state.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenProvider for a fixed token.
type StaticToken string

// Token returns the fixed token.
func (t StaticToken) Token(_ context.Context) (string, error) {
	return string(t), nil
}

// UploadResult is the synchronous answer to a file upload.
type UploadResult struct {
	JobID string         `json:"job_id"`
	State model.JobState `json:"state"`
}

// RecordPayload is the full classification state submitted for one account.
type RecordPayload struct {
	Name            string            `json:"name"`
	NameEN          string            `json:"name_en,omitempty"`
	Classifications map[string]string `json:"classifications"`
}

// Client defines the backend operations used by this application.
type Client interface {
	UploadFile(ctx context.Context, docType model.DocumentType, path string) (*UploadResult, error)
	GetJobStatus(ctx context.Context, jobID string) (*model.JobStatus, error)
	DeleteJob(ctx context.Context, jobID string) error

	GetHeaders(ctx context.Context, jobID string) (*model.HeaderSets, error)
	SubmitHeaderMapping(ctx context.Context, jobID string, mapping []model.HeaderAssignment) error
	TriggerProcessing(ctx context.Context, jobID string) error

	ListRecords(ctx context.Context, clientID string) ([]model.Record, error)
	ListSets(ctx context.Context, clientID string) ([]model.ClassificationSet, error)
	ListOptions(ctx context.Context, setID string) ([]model.Option, error)
	UpsertRecord(ctx context.Context, accountCode string, payload RecordPayload) (*model.Record, error)
	DeleteRecord(ctx context.Context, accountCode string) error

	LogActivity(ctx context.Context, entry model.ActivityEntry) error
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit overrides the default request throttle (5 req/s).
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

type httpClient struct {
	baseURL string
	tokens  TokenProvider
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a backend client. Requests are throttled to 5 req/s by
// default so bulk classification loops stay inside the backend's limits.
func NewClient(baseURL string, tokens TokenProvider, opts ...Option) Client {
	c := &httpClient{
		baseURL: baseURL,
		tokens:  tokens,
		limiter: rate.NewLimiter(5, 5),
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do issues one request and returns the response body. Transient statuses
// (408, 429, 5xx) come back wrapped as resilience.TransientError so callers
// can tell transport trouble apart from authoritative rejections. There is
// no retry here: polling has its own error budget and commands must fail
// synchronously.
func (c *httpClient) do(ctx context.Context, method, path string, body io.Reader, contentType string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "cierre: rate limit")
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, eris.Wrapf(err, "cierre: create request %s %s", method, path)
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "cierre: resolve token")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "cierre: %s %s", method, path)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "cierre: read response %s %s", method, path)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return respBody, nil
	}

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Message:    serverMessage(respBody),
	}
	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientError(apiErr, resp.StatusCode)
	}
	return nil, apiErr
}

func (c *httpClient) getJSON(ctx context.Context, path string, out any) error {
	body, err := c.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrapf(err, "cierre: unmarshal GET %s", path)
	}
	return nil
}

func (c *httpClient) sendJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return eris.Wrapf(err, "cierre: marshal %s %s", method, path)
		}
		body = bytes.NewReader(raw)
	}
	respBody, err := c.do(ctx, method, path, body, "application/json")
	if err != nil {
		return err
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return eris.Wrapf(err, "cierre: unmarshal %s %s", method, path)
		}
	}
	return nil
}

func (c *httpClient) UploadFile(ctx context.Context, docType model.DocumentType, path string) (*UploadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "cierre: open %s", path)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, eris.Wrap(err, "cierre: create multipart")
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, eris.Wrap(err, "cierre: buffer file")
	}
	if err := mw.Close(); err != nil {
		return nil, eris.Wrap(err, "cierre: finalize multipart")
	}

	endpoint := fmt.Sprintf("/api/cierres/%s/files", docType)
	respBody, err := c.do(ctx, http.MethodPost, endpoint, &buf, mw.FormDataContentType())
	if err != nil {
		return nil, classifyUploadError(err)
	}

	var result UploadResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "cierre: unmarshal upload result")
	}
	return &result, nil
}

func (c *httpClient) GetJobStatus(ctx context.Context, jobID string) (*model.JobStatus, error) {
	var status model.JobStatus
	if err := c.getJSON(ctx, "/api/jobs/"+jobID+"/status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *httpClient) DeleteJob(ctx context.Context, jobID string) error {
	_, err := c.do(ctx, http.MethodDelete, "/api/jobs/"+jobID, nil, "")
	return err
}

func (c *httpClient) GetHeaders(ctx context.Context, jobID string) (*model.HeaderSets, error) {
	var sets model.HeaderSets
	if err := c.getJSON(ctx, "/api/jobs/"+jobID+"/headers", &sets); err != nil {
		return nil, err
	}
	return &sets, nil
}

func (c *httpClient) SubmitHeaderMapping(ctx context.Context, jobID string, mapping []model.HeaderAssignment) error {
	return c.sendJSON(ctx, http.MethodPut, "/api/jobs/"+jobID+"/headers/mapping", mapping, nil)
}

func (c *httpClient) TriggerProcessing(ctx context.Context, jobID string) error {
	return c.sendJSON(ctx, http.MethodPost, "/api/jobs/"+jobID+"/process", nil, nil)
}

func (c *httpClient) ListRecords(ctx context.Context, clientID string) ([]model.Record, error) {
	var records []model.Record
	if err := c.getJSON(ctx, "/api/clients/"+clientID+"/cuentas", &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *httpClient) ListSets(ctx context.Context, clientID string) ([]model.ClassificationSet, error) {
	var sets []model.ClassificationSet
	if err := c.getJSON(ctx, "/api/clients/"+clientID+"/sets", &sets); err != nil {
		return nil, err
	}
	return sets, nil
}

func (c *httpClient) ListOptions(ctx context.Context, setID string) ([]model.Option, error) {
	var options []model.Option
	if err := c.getJSON(ctx, "/api/sets/"+setID+"/options", &options); err != nil {
		return nil, err
	}
	return options, nil
}

func (c *httpClient) UpsertRecord(ctx context.Context, accountCode string, payload RecordPayload) (*model.Record, error) {
	var record model.Record
	if err := c.sendJSON(ctx, http.MethodPut, "/api/cuentas/"+accountCode, payload, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (c *httpClient) DeleteRecord(ctx context.Context, accountCode string) error {
	_, err := c.do(ctx, http.MethodDelete, "/api/cuentas/"+accountCode, nil, "")
	return err
}

func (c *httpClient) LogActivity(ctx context.Context, entry model.ActivityEntry) error {
	return c.sendJSON(ctx, http.MethodPost, "/api/clients/"+entry.ClientID+"/activity", entry, nil)
}
