package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/seedhook/seedhook/internal/apperr"
)

const sessionIDHeader = "X-Transmission-Session-Id"

// Client is the RPC client contract spec.md §4.E requires of the core: typed
// wrappers over torrent-get/remove/set/set-location/reannounce/start/stop,
// sessionGet, freeSpace, and a cached seedDir/snapshot.
type Client struct {
	httpClient *http.Client
	url        string
	username   string
	password   string
	log        *zap.Logger

	mu        sync.Mutex
	sessionID string

	seedDirOverride string

	cacheMu          sync.Mutex
	cachedSeedDir    string
	cachedTorrents   map[int64]Torrent
	cachedTorrentsOK bool
}

// Config holds the constructor parameters for Client.
type Config struct {
	Protocol string // "http" or "https"; defaults to "http"
	Host     string // defaults to "127.0.0.1"
	Port     int    // defaults to 9091
	Path     string // defaults to "/transmission/rpc"
	Username string
	Password string
	SeedDir  string // optional override; empty means discover via session-get
	Timeout  time.Duration
	Logger   *zap.Logger

	// BaseURL, if set, is used verbatim instead of assembling one from
	// Protocol/Host/Port/Path. Exercised by tests that point the client at
	// an httptest server.
	BaseURL string
}

// New builds a Client from cfg, filling in spec.md §6 defaults.
func New(cfg Config) *Client {
	if cfg.Protocol == "" {
		cfg.Protocol = "http"
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 9091
	}
	if cfg.Path == "" {
		cfg.Path = "/transmission/rpc"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	url := cfg.BaseURL
	if url == "" {
		url = fmt.Sprintf("%s://%s:%d%s", cfg.Protocol, cfg.Host, cfg.Port, cfg.Path)
	}
	return &Client{
		httpClient:      &http.Client{Timeout: cfg.Timeout},
		url:             url,
		username:        cfg.Username,
		password:        cfg.Password,
		seedDirOverride: cfg.SeedDir,
		log:             cfg.Logger,
	}
}

type rpcRequest struct {
	Method    string      `json:"method"`
	Arguments interface{} `json:"arguments,omitempty"`
}

type rpcResponse struct {
	Result    string          `json:"result"`
	Arguments json.RawMessage `json:"arguments"`
}

// call issues one RPC method, retrying transport failures up to 3 attempts
// total with no delay between attempts, and handling the 409 session-token
// handshake and 401/403 auth failures per spec.md §4.E.
func (c *Client) call(ctx context.Context, method string, args map[string]interface{}, ids *IDs) (json.RawMessage, error) {
	if ids != nil {
		if err := ids.Validate(); err != nil {
			return nil, err
		}
		if v := ids.argument(); v != nil {
			if args == nil {
				args = map[string]interface{}{}
			}
			args["ids"] = v
		}
	}

	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(0), 2) // 3 total attempts
	var result json.RawMessage

	operation := func() error {
		raw, status, err := c.attempt(ctx, method, args)
		if err != nil {
			return err // transport error: retryable
		}
		switch status {
		case http.StatusUnauthorized, http.StatusForbidden:
			return backoff.Permanent(apperr.Wrapf(apperr.ErrAuth, "rpc %s: status %d", method, status))
		case http.StatusConflict:
			// Session token already captured in attempt(); re-issue the call
			// once, inside this same outer attempt, so the 409 does not count
			// against the outer budget.
			return c.retryWithFreshSession(ctx, method, args, &result)
		}
		var resp rpcResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return err
		}
		if resp.Result != "success" {
			return apperr.Wrapf(apperr.ErrTransport, "rpc %s: result %q", method, resp.Result)
		}
		result = resp.Arguments
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		return nil, apperr.Wrap(err, "rpc call failed")
	}
	return result, nil
}

// retryWithFreshSession re-issues the call once the 409 handshake has
// captured a session id; it does not consume one of the outer retry budget's
// attempts, matching spec.md's "capture it and retry immediately (do not
// consume an attempt)".
func (c *Client) retryWithFreshSession(ctx context.Context, method string, args map[string]interface{}, result *json.RawMessage) error {
	raw, status, err := c.attempt(ctx, method, args)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return backoff.Permanent(apperr.Wrapf(apperr.ErrAuth, "rpc %s: status %d", method, status))
	}
	if status == http.StatusConflict {
		return apperr.Wrapf(apperr.ErrTransport, "rpc %s: session handshake did not converge", method)
	}
	var resp rpcResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return err
	}
	if resp.Result != "success" {
		return apperr.Wrapf(apperr.ErrTransport, "rpc %s: result %q", method, resp.Result)
	}
	*result = resp.Arguments
	return nil
}

func (c *Client) attempt(ctx context.Context, method string, args map[string]interface{}) (json.RawMessage, int, error) {
	body, err := json.Marshal(rpcRequest{Method: method, Arguments: args})
	if err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.mu.Lock()
	if c.sessionID != "" {
		req.Header.Set(sessionIDHeader, c.sessionID)
	}
	c.mu.Unlock()
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	c.log.Debug("rpc request", zap.String("method", method))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		c.mu.Lock()
		c.sessionID = resp.Header.Get(sessionIDHeader)
		c.mu.Unlock()
		return nil, resp.StatusCode, nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return data, resp.StatusCode, nil
}

// invalidateSnapshot drops the cached torrent list. Called after any
// mutating RPC (torrentRemove, torrentSetLocation).
func (c *Client) invalidateSnapshot() {
	c.cacheMu.Lock()
	c.cachedTorrentsOK = false
	c.cacheMu.Unlock()
}
