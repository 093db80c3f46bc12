package countdown

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"calendar-countdown/domain"
)

const maxResponseSize = 64 << 10

// Client talks to the countdown HTTP endpoints.
type Client struct {
	base string
	loc  *time.Location
	http *http.Client
}

type lookupPayload struct {
	Success  bool   `json:"success"`
	Datetime string `json:"datetime"`
	Title    string `json:"title"`
	ID       int64  `json:"id"`
	Nonce    string `json:"nonce"`
}

// NewClient creates a client for the service at base. Datetimes are wall clock
// values in loc, the site time zone.
func NewClient(base string, loc *time.Location, hc *http.Client) *Client {
	if loc == nil {
		loc = time.UTC
	}
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{base: strings.TrimRight(base, "/"), loc: loc, http: hc}
}

// Seed fetches the initial target at offset, like a page render does.
func (c *Client) Seed(ctx context.Context, offset int) (Target, bool, error) {
	q := url.Values{}
	q.Set("offset", strconv.Itoa(offset))
	return c.get(ctx, "/api/countdown?"+q.Encode())
}

// NextEvent implements Fetcher against the lookup endpoint.
func (c *Client) NextEvent(ctx context.Context, exclude int64, nonce string) (Target, bool, error) {
	q := url.Values{}
	q.Set("exclude", strconv.FormatInt(exclude, 10))
	q.Set("nonce", nonce)
	return c.get(ctx, "/api/next-event?"+q.Encode())
}

func (c *Client) get(ctx context.Context, path string) (Target, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return Target{}, false, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return Target{}, false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Target{}, false, fmt.Errorf("lookup: unexpected status %d", resp.StatusCode)
	}

	var p lookupPayload
	if err := sonic.ConfigStd.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&p); err != nil {
		return Target{}, false, fmt.Errorf("lookup: decode: %w", err)
	}
	if !p.Success {
		return Target{}, false, nil
	}
	at, err := time.ParseInLocation(domain.WireLayout, html.UnescapeString(p.Datetime), c.loc)
	if err != nil {
		return Target{}, false, fmt.Errorf("lookup: datetime %q: %w", p.Datetime, err)
	}
	return Target{ID: p.ID, Title: html.UnescapeString(p.Title), At: at, Nonce: p.Nonce}, true, nil
}
