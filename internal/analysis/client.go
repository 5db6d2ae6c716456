package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dooshek/murmur/internal/logger"
)

var (
	// ErrNetwork covers failed, timed out or non-2xx requests.
	ErrNetwork = errors.New("analysis service unreachable")

	// ErrDecode is returned for payloads that are not a valid tick.
	ErrDecode = errors.New("malformed analysis response")
)

const (
	SessionHeader = "X-Session-ID"

	maxBodySize = 1 << 20
)

// Service is the remote analysis service as seen by the poller.
type Service interface {
	Start(ctx context.Context) error
	Fetch(ctx context.Context) (TickSample, error)
	Stop(ctx context.Context) error
}

type sessionKey struct{}

// WithSession tags ctx so that requests made with it carry the session ID.
func WithSession(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

func sessionFrom(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

// Client talks to the analysis service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a client for baseURL. A nil httpClient gets a default
// one with the given timeout.
func NewClient(baseURL string, httpClient *http.Client, timeout time.Duration) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Start asks the service to begin analysing.
func (c *Client) Start(ctx context.Context) error {
	return c.signal(ctx, "/start")
}

// Stop asks the service to stop analysing.
func (c *Client) Stop(ctx context.Context) error {
	return c.signal(ctx, "/stop")
}

// Fetch returns the latest analysis tick. An error response that still
// carries a status payload, such as {"status":"error","message":...}, is
// returned as a tick so the service's message reaches the user.
func (c *Client) Fetch(ctx context.Context) (TickSample, error) {
	body, err := c.do(ctx, http.MethodGet, "/get_analysis")
	if err != nil {
		var se *statusError
		if errors.As(err, &se) {
			if tick, derr := Decode(se.body); derr == nil {
				return tick, nil
			}
		}
		return TickSample{}, err
	}
	return Decode(body)
}

func (c *Client) signal(ctx context.Context, path string) error {
	body, err := c.do(ctx, http.MethodPost, path)
	if err != nil {
		return err
	}
	logger.Debugf("Analysis service %s: %s", path, strings.TrimSpace(string(body)))
	return nil
}

func (c *Client) do(ctx context.Context, method, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	req.Header.Set("Accept", "application/json")
	if id := sessionFrom(ctx); id != "" {
		req.Header.Set(SessionHeader, id)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrNetwork, method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrNetwork, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &statusError{method: method, path: path, code: resp.StatusCode, body: body}
	}
	return body, nil
}

// statusError is a non-2xx response. It keeps the body for callers that
// understand the service's error payload.
type statusError struct {
	method string
	path   string
	code   int
	body   []byte
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%v: %s %s: status %d", ErrNetwork, e.method, e.path, e.code)
}

func (e *statusError) Unwrap() error {
	return ErrNetwork
}
