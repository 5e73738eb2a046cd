// Package client is a Go client for the docqa HTTP API.
package client

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"docqa/internal/model"
)

// DefaultServer is used when no server URL is configured.
const DefaultServer = "http://localhost:8080"

// APIError is a non-2xx response decoded from the server's error envelope.
type APIError struct {
	Status    int
	Code      string
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

// UploadResult mirrors the upload response.
type UploadResult struct {
	Message   string           `json:"message"`
	Documents []model.Document `json:"documents"`
	Chunks    int              `json:"chunks"`
}

// DocumentList mirrors the paginated document listing.
type DocumentList struct {
	Items []model.Document `json:"data"`
	Total int              `json:"total"`
}

// StreamResult is the final event of a streamed answer.
type StreamResult struct {
	Response  string           `json:"response"`
	Sources   []string         `json:"sources"`
	Citations []model.Citation `json:"citations"`
}

// Client talks to one docqa server.
type Client struct {
	base *url.URL
	http *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default traced client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func New(server string, opts ...Option) (*Client, error) {
	if server == "" {
		server = DefaultServer
	}
	u, err := url.Parse(strings.TrimRight(server, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server url %q", server)
	}
	c := &Client{
		base: u,
		http: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *Client) url(path string, q url.Values) string {
	u := *c.base
	u.Path = u.Path + path
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := sonic.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	apiErr := &APIError{Status: resp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var env struct {
		RequestID string `json:"request_id"`
		Error     struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if sonic.Unmarshal(body, &env) == nil {
		apiErr.Code, apiErr.Message, apiErr.RequestID = env.Error.Code, env.Error.Message, env.RequestID
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}

// Upload sends the files at paths in one multipart request.
func (c *Client) Upload(ctx context.Context, paths []string) (*UploadResult, error) {
	if len(paths) == 0 {
		return nil, errors.New("no files given")
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return nil, err
		}
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeFiles(mw, paths))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/upload_pdfs/", nil), pr)
	if err != nil {
		pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var res UploadResult
	if err := c.do(req, &res); err != nil {
		pr.Close()
		return nil, err
	}
	return &res, nil
}

func writeFiles(mw *multipart.Writer, paths []string) error {
	for _, p := range paths {
		part, err := mw.CreateFormFile("files", filepath.Base(p))
		if err != nil {
			return err
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		_, err = io.Copy(part, f)
		f.Close()
		if err != nil {
			return err
		}
	}
	return mw.Close()
}

func (c *Client) askRequest(ctx context.Context, path, question string) (*http.Request, error) {
	form := url.Values{"question": {question}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path, nil), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req, nil
}

// Ask returns the complete answer in one response.
func (c *Client) Ask(ctx context.Context, question string) (*model.Answer, error) {
	req, err := c.askRequest(ctx, "/ask/", question)
	if err != nil {
		return nil, err
	}
	var ans model.Answer
	if err := c.do(req, &ans); err != nil {
		return nil, err
	}
	return &ans, nil
}

// AskStream calls onToken for every streamed piece of the answer and returns
// the final sources event.
func (c *Client) AskStream(ctx context.Context, question string, onToken func(string)) (*StreamResult, error) {
	req, err := c.askRequest(ctx, "/ask/stream", question)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var event string
	var data bytes.Buffer
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 64*1024), 4<<20)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case line == "":
			res, done, err := handleEvent(event, data.Bytes(), onToken)
			if err != nil || done {
				return res, err
			}
			event = ""
			data.Reset()
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read stream: %w", err)
	}
	return nil, errors.New("stream ended without a result")
}

func handleEvent(event string, data []byte, onToken func(string)) (*StreamResult, bool, error) {
	switch event {
	case "token":
		var tok struct {
			Text string `json:"text"`
		}
		if err := sonic.Unmarshal(data, &tok); err != nil {
			return nil, true, fmt.Errorf("decode token: %w", err)
		}
		if onToken != nil {
			onToken(tok.Text)
		}
		return nil, false, nil
	case "sources":
		var res StreamResult
		if err := sonic.Unmarshal(data, &res); err != nil {
			return nil, true, fmt.Errorf("decode sources: %w", err)
		}
		return &res, true, nil
	case "error":
		var e struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		_ = sonic.Unmarshal(data, &e)
		return nil, true, &APIError{Status: http.StatusOK, Code: e.Code, Message: e.Message}
	default:
		return nil, false, nil
	}
}

// ListDocuments returns one page of the document registry. An empty status lists all.
func (c *Client) ListDocuments(ctx context.Context, limit, offset int, status string) (*DocumentList, error) {
	q := url.Values{"limit": {strconv.Itoa(limit)}, "offset": {strconv.Itoa(offset)}}
	if status != "" {
		q.Set("status", status)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/documents", q), nil)
	if err != nil {
		return nil, err
	}
	var list DocumentList
	if err := c.do(req, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

func (c *Client) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/documents/"+url.PathEscape(id), nil), nil)
	if err != nil {
		return nil, err
	}
	var doc model.Document
	if err := c.do(req, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// DownloadDocument copies the uploaded file into w. Presigned redirects are
// followed by the underlying http.Client.
func (c *Client) DownloadDocument(ctx context.Context, id string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/documents/"+url.PathEscape(id)+"/download", nil), nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return 0, err
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("read download: %w", err)
	}
	return n, nil
}

func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.url("/documents/"+url.PathEscape(id), nil), nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// Health calls /test and then /health, returning the first failure.
func (c *Client) Health(ctx context.Context) error {
	for _, p := range []string{"/test", "/health"} {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(p, nil), nil)
		if err != nil {
			return err
		}
		if err := c.do(req, nil); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}
