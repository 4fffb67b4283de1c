// Package shotgrid implements tracking.Source over the ShotGrid REST API.
package shotgrid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"shotrelay/internal/tracking"
	logx "shotrelay/pkg/logx"
)

// Filters are sent in api3 array form, not the REST hash form.
const searchContentType = "application/vnd+shotgun.api3_array+json"

type Config struct {
	// BaseURL is the site root, e.g. https://studio.shotgrid.autodesk.com.
	BaseURL string
	// ScriptName and APIKey are the script-credentials pair used for the
	// client_credentials grant.
	ScriptName string
	APIKey     string
	Timeout    time.Duration
}

// Client talks to one ShotGrid site. Safe for concurrent use; the access
// token is cached and refreshed under tokenMu.
type Client struct {
	base string
	cfg  Config
	http *http.Client
	log  logx.Logger

	tokenMu     sync.Mutex
	token       string
	tokenExpiry time.Time

	now func() time.Time
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("shotgrid: base url is empty")
	}
	if cfg.ScriptName == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("shotgrid: script credentials are empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		base: base,
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
		log:  log,
		now:  time.Now,
	}, nil
}

// FindOne returns the first match, or (nil, nil) when nothing matches.
func (c *Client) FindOne(ctx context.Context, kind tracking.Kind, filters []tracking.Filter, fields []tracking.Field) (tracking.Record, error) {
	recs, err := c.search(ctx, kind, filters, fields, 1)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

func (c *Client) Find(ctx context.Context, kind tracking.Kind, filters []tracking.Filter, fields []tracking.Field) ([]tracking.Record, error) {
	return c.search(ctx, kind, filters, fields, 0)
}

func (c *Client) search(ctx context.Context, kind tracking.Kind, filters []tracking.Filter, fields []tracking.Field, limit int) ([]tracking.Record, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"filters": filterArrays(filters),
		"fields":  tracking.FieldNames(fields),
	}
	if limit > 0 {
		body["page"] = map[string]any{"size": limit}
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/api/v1/entity/%s/_search", c.base, url.PathEscape(string(kind)))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", searchContentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", tracking.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		// Token revoked server-side before its advertised expiry.
		c.invalidateToken()
		return nil, fmt.Errorf("%w: authorization rejected", tracking.ErrUnavailable)
	}
	if resp.StatusCode/100 == 5 {
		return nil, fmt.Errorf("%w: search %s returned http %d", tracking.ErrUnavailable, kind, resp.StatusCode)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("shotgrid: search %s returned http %d", kind, resp.StatusCode)
	}

	var out struct {
		Data []entityPayload `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("shotgrid: decode search response: %w", err)
	}

	recs := make([]tracking.Record, 0, len(out.Data))
	for _, p := range out.Data {
		recs = append(recs, p.record())
	}
	return recs, nil
}

// entityPayload is one JSON:API resource object. Scalar fields live in
// attributes; entity links live in relationships.
type entityPayload struct {
	Type          string         `json:"type"`
	ID            int64          `json:"id"`
	Attributes    map[string]any `json:"attributes"`
	Relationships map[string]struct {
		Data any `json:"data"`
	} `json:"relationships"`
}

// record flattens a resource object into the dotted-field shape the rest of
// the system reads.
func (p entityPayload) record() tracking.Record {
	rec := tracking.Record{"type": p.Type, "id": float64(p.ID)}
	for k, v := range p.Attributes {
		rec[k] = v
	}
	for k, v := range p.Relationships {
		rec[k] = v.Data
	}
	return rec
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.cfg.ScriptName},
		"client_secret": {c.cfg.APIKey},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.base+"/api/v1/auth/access_token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", tracking.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("%w: token request returned http %d", tracking.ErrUnavailable, resp.StatusCode)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("shotgrid: decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("shotgrid: token response carried no access_token")
	}

	ttl := time.Duration(tok.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	// Refresh a little early so in-flight requests never straddle expiry.
	c.token = tok.AccessToken
	c.tokenExpiry = c.now().Add(ttl - 30*time.Second)
	c.log.Debug("access token refreshed", logx.Duration("ttl", ttl))
	return c.token, nil
}

func (c *Client) invalidateToken() {
	c.tokenMu.Lock()
	c.token = ""
	c.tokenMu.Unlock()
}

func filterArrays(filters []tracking.Filter) []any {
	out := make([]any, 0, len(filters))
	for _, f := range filters {
		out = append(out, []any{string(f.Field), f.Op, f.Value})
	}
	return out
}
