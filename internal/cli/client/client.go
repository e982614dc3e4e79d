package client

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sigmesh/sigmesh-go/internal/server/wire"
)

// headerTransport carries the caller's transport session ID.
const headerTransport = "X-Sigmesh-Transport"

// Client talks to one sigmesh-server over HTTP.
type Client struct {
	baseURL   string
	transport string
	client    *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithTLSConfig sets the TLS configuration used for server connections,
// typically to trust a private root CA.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *Client) {
		c.client.Transport = &http.Transport{TLSClientConfig: cfg}
	}
}

// New creates a client for the given server address. The transport ID
// identifies this client's session for connection ownership and event
// stream routing.
func New(server, transport string, opts ...Option) *Client {
	baseURL := server
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}

	c := &Client{
		baseURL:   baseURL,
		transport: transport,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the base URL of the client.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Transport returns the transport session ID.
func (c *Client) Transport() string {
	return c.transport
}

// APIError is a server-reported failure, carrying the wire status and
// the domain error code from the envelope.
type APIError struct {
	HTTPStatus int
	Status     wire.Status
	Code       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("server error [%s] (%s, HTTP %d)", e.Code, e.Status, e.HTTPStatus)
	}
	return fmt.Sprintf("request failed with status %d", e.HTTPStatus)
}

// CreateCommunity registers a community and opens the creator's
// connection.
func (c *Client) CreateCommunity(ctx context.Context, req *wire.CreateCommunityRequest) (*wire.CreateCommunityResponse, error) {
	var out wire.CreateCommunityResponse
	if err := c.post(ctx, "/v1/communities", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CommunityStatus fetches the live connection snapshot for a community.
func (c *Client) CommunityStatus(ctx context.Context, teamID string) (*wire.CommunityStatusResponse, error) {
	var out wire.CommunityStatusResponse
	if err := c.get(ctx, "/v1/communities/"+teamID, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Connect opens a membership connection for userID in teamID.
func (c *Client) Connect(ctx context.Context, teamID, userID string) (*wire.ConnectionResponse, error) {
	var out wire.ConnectionResponse
	req := &wire.StartConnectionRequest{UserID: userID}
	if err := c.post(ctx, "/v1/communities/"+teamID+"/connections", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Disconnect signs userID out of teamID. Idempotent.
func (c *Client) Disconnect(ctx context.Context, teamID, userID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/communities/"+teamID+"/connections/"+userID, nil, nil)
}

// SubmitEntry submits one signed log entry.
func (c *Client) SubmitEntry(ctx context.Context, req *wire.SubmitEntryRequest) (*wire.SubmitEntryResponse, error) {
	var out wire.SubmitEntryResponse
	if err := c.post(ctx, "/v1/entries", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PullEntries fetches one page of stored entries.
func (c *Client) PullEntries(ctx context.Context, req *wire.PullEntriesRequest) (*wire.PullEntriesResponse, error) {
	var out wire.PullEntriesResponse
	if err := c.post(ctx, "/v1/entries/pull", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendMembership delivers a membership envelope to the community ledger.
func (c *Client) SendMembership(ctx context.Context, req *wire.MembershipMessageRequest) error {
	return c.post(ctx, "/v1/membership/messages", req, nil)
}

// Health fetches the health payload as a generic map.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.get(ctx, "/health", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Events subscribes to the server-sent event stream and invokes fn for
// every frame until ctx is canceled or the stream ends.
func (c *Client) Events(ctx context.Context, fn func(kind string, env *wire.Envelope) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/events", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set(headerTransport, c.transport)
	req.Header.Set("Accept", "text/event-stream")

	// The stream outlives any sane request timeout.
	streamClient := &http.Client{Transport: c.client.Transport}
	resp, err := streamClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return parseErrorBody(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 2<<20)

	var kind string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, ":"):
			// Heartbeat comment.
		case strings.HasPrefix(line, "event: "):
			kind = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			var env wire.Envelope
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &env); err != nil {
				return fmt.Errorf("parse event: %w", err)
			}
			if err := fn(kind, &env); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

// do sends one request and unwraps the envelope response into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set(headerTransport, c.transport)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return parseErrorBody(resp)
	}

	var env wire.Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	if env.Status != wire.StatusSuccess {
		return &APIError{HTTPStatus: resp.StatusCode, Status: env.Status, Code: env.Reason}
	}
	if out != nil && len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, out); err != nil {
			return fmt.Errorf("parse payload: %w", err)
		}
	}
	return nil
}

// parseErrorBody turns a non-2xx response into an APIError.
func parseErrorBody(resp *http.Response) error {
	apiErr := &APIError{HTTPStatus: resp.StatusCode, Status: wire.StatusError}
	var env wire.Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err == nil {
		apiErr.Status = env.Status
		apiErr.Code = env.Reason
	}
	return apiErr
}
