package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/litechat/protocol"
)

// Failure taxonomy for login attempts. Both are terminal for the attempt;
// the user resubmits.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnreachable        = errors.New("cannot connect to server")
)

// messagesCandidates are the history paths probed once at startup, in order.
var messagesCandidates = []string{"/messages", "/api/messages"}

// Client talks to the chat backend's HTTP surface.
type Client struct {
	base         string
	httpc        *http.Client
	messagesPath string
}

func New(base string) *Client {
	return &Client{
		base:         strings.TrimRight(base, "/"),
		httpc:        &http.Client{Timeout: 15 * time.Second},
		messagesPath: messagesCandidates[0],
	}
}

// Base returns the resolved backend base URL.
func (c *Client) Base() string { return c.base }

// WebsocketURL maps the backend base to its websocket endpoint.
func (c *Client) WebsocketURL() string {
	u := c.base + "/ws"
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

// Login exchanges credentials for a session. The backend issues no token;
// a 2xx response means the typed username becomes the identity.
func (c *Client) Login(ctx context.Context, username, password string) error {
	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/login", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return ErrInvalidCredentials
	}
	return nil
}

// DetectMessagesPath probes the candidate history routes once and freezes the
// first one answering a valid JSON array. Detection is startup configuration,
// not runtime logic; on total failure the default path stays in place.
func (c *Client) DetectMessagesPath(ctx context.Context) error {
	var lastErr error
	for _, p := range messagesCandidates {
		if _, err := c.fetchHistory(ctx, p); err != nil {
			lastErr = err
			continue
		}
		c.messagesPath = p
		log.Debug().Str("path", p).Msg("[backend] messages path detected")
		return nil
	}
	return fmt.Errorf("detect messages path: %w", lastErr)
}

// History fetches the full message backlog in server order.
func (c *Client) History(ctx context.Context) ([]protocol.Message, error) {
	return c.fetchHistory(ctx, c.messagesPath)
}

func (c *Client) fetchHistory(ctx context.Context, path string) ([]protocol.Message, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, err
	}
	res, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history %s: unexpected status %s", path, res.Status)
	}
	var msgs []protocol.Message
	if err := json.NewDecoder(res.Body).Decode(&msgs); err != nil {
		return nil, fmt.Errorf("history %s: %w", path, err)
	}
	return msgs, nil
}

const historyMaxAttempts = 8

// HistoryWithRetry fetches history under a bounded exponential backoff
// (500ms doubling, 5s cap, 8 attempts). notify reports each failed attempt
// so the view can render sync health instead of hanging silently.
func (c *Client) HistoryWithRetry(ctx context.Context, notify func(err error, next time.Duration)) ([]protocol.Message, error) {
	pol := backoff.NewExponentialBackOff()
	pol.InitialInterval = 500 * time.Millisecond
	pol.MaxInterval = 5 * time.Second
	pol.MaxElapsedTime = 0

	var msgs []protocol.Message
	op := func() error {
		var err error
		msgs, err = c.History(ctx)
		return err
	}
	wrapped := backoff.WithContext(backoff.WithMaxRetries(pol, historyMaxAttempts-1), ctx)
	if notify == nil {
		notify = func(error, time.Duration) {}
	}
	if err := backoff.RetryNotify(op, wrapped, notify); err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return msgs, nil
}

// Upload posts the file to the backend's own upload endpoint as a multipart
// form ("file" + "sender" fields) and returns the hosted URL.
func (c *Client) Upload(ctx context.Context, sender, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", err
	}
	if err := mw.WriteField("sender", sender); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/upload", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	res, err := c.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return "", fmt.Errorf("upload failed: %s: %s", res.Status, strings.TrimSpace(string(raw)))
	}
	return decodeUploadURL(res.Body)
}

// decodeUploadURL accepts both response conventions seen in the wild:
// {"url": ...} from the chat backend, {"secure_url": ...} from hosted media.
func decodeUploadURL(r io.Reader) (string, error) {
	var out struct {
		URL       string `json:"url"`
		SecureURL string `json:"secure_url"`
	}
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if out.SecureURL != "" {
		return out.SecureURL, nil
	}
	if out.URL == "" {
		return "", errors.New("upload response carries no url")
	}
	return out.URL, nil
}

// ResolveBase picks the backend base URL: explicit value, then environment
// override, then the built-in default. Invalid URLs fall through.
func ResolveBase(flagValue, envValue, fallback string) string {
	for _, v := range []string{flagValue, envValue} {
		if v == "" {
			continue
		}
		if u, err := url.Parse(v); err == nil && u.Scheme != "" && u.Host != "" {
			return strings.TrimRight(v, "/")
		}
		log.Warn().Str("url", v).Msg("[backend] ignoring invalid base URL")
	}
	return fallback
}
