package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// tokenPayload is the expected JSON shape stored in SSM for the bearer token.
type tokenPayload struct {
	Token string `json:"token"`
}

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// HTTPStatusError captures non-2xx responses from the channel service.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("connector: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client posts reply activities to the channel's service URL.
type Client struct {
	httpClient  *http.Client
	getter      Getter
	paramPrefix string

	mu    sync.Mutex
	token string
}

const tokenFetchTimeout = 5 * time.Second

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a Client whose bearer token is read from SSM on the first
// send and reused for the lifetime of the process. A failed read is retried on
// the next send.
func NewClient(ps Getter, paramPrefix string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("connector: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("connector: parameter prefix must not be empty")
	}
	c := &Client{
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		getter:      ps,
		paramPrefix: paramPrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) resolveToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" {
		return c.token, nil
	}

	// cached past this request, so ignore its cancellation
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), tokenFetchTimeout)
	defer cancel()
	token, err := fetchTokenFromParamStore(fetchCtx, c.getter, c.tokenParameterName())
	if err != nil {
		return "", err
	}
	c.token = token
	return token, nil
}

func (c *Client) tokenParameterName() string {
	return c.paramPrefix + "/connector-token"
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

// activitiesURL builds the Bot Connector reply endpoint. Without a replyToID
// the activity is appended to the conversation.
func activitiesURL(serviceURL, conversationID, replyToID string) string {
	u := strings.TrimRight(serviceURL, "/") + "/v3/conversations/" + url.PathEscape(conversationID) + "/activities"
	if replyToID != "" {
		u += "/" + url.PathEscape(replyToID)
	}
	return u
}

// SendActivity delivers one reply and waits for the channel to accept it.
func (c *Client) SendActivity(ctx context.Context, reply Activity) error {
	if strings.TrimSpace(reply.ServiceURL) == "" {
		return errors.New("connector: service url must not be empty")
	}
	if reply.Conversation == nil || reply.Conversation.ID == "" {
		return errors.New("connector: conversation id must not be empty")
	}

	token, err := c.resolveToken(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("connector: marshal activity: %w", err)
	}

	target := activitiesURL(reply.ServiceURL, reply.Conversation.ID, reply.ReplyToID)
	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if reqErr != nil {
		return fmt.Errorf("connector: create request: %w", reqErr)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	if err := c.doRequest(req, target); err != nil {
		return fmt.Errorf("connector: send activity: %w", err)
	}
	return nil
}

func (c *Client) doRequest(req *http.Request, target string) error {
	res, doErr := c.resolvedHTTPClient().Do(req)
	if doErr != nil {
		return doErr
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        target,
			Body:       string(buf),
		}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<20))
	return nil
}

func fetchTokenFromParamStore(ctx context.Context, getter Getter, name string) (string, error) {
	if getter == nil {
		return "", errors.New("connector: paramstore getter is nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("connector: token parameter name is empty")
	}

	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("connector: fetch token from paramstore: %w", err)
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("connector: unmarshal paramstore token value as JSON: %w", err)
	}
	if tp.Token == "" {
		return "", errors.New("connector: token is empty")
	}
	return tp.Token, nil
}
