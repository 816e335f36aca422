// Package archive talks to the public luftdaten archive: the root listing of
// dates, the per-day listing of sensor exports and the CSV exports
// themselves.
package archive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/errs"
	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/logging"
	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/utils"
)

var log = logging.Component("archive")

const (
	// SensorModelMarker selects the exports of the supported sensor model.
	SensorModelMarker = "sds011"

	// EpochCutoff is the day after which archive dates are considered.
	EpochCutoff = "2017-01-01"

	rootListingKey = "root"
)

// Client fetches listings and exports from the archive.
type Client struct {
	baseURL  string
	http     *http.Client
	cacheTTL time.Duration
	now      func() time.Time

	group singleflight.Group

	mu       sync.Mutex
	cached   []string
	cachedAt time.Time
}

// NewClient constructs a client for the archive at baseURL. A positive
// cacheTTL keeps the parsed root listing for that long.
func NewClient(baseURL string, httpClient *http.Client, cacheTTL time.Duration) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     httpClient,
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

// SensorFileName is the export name of one sensor for one day.
func SensorFileName(date string, sensorID int) string {
	return fmt.Sprintf("%s_%s_sensor_%d.csv", date, SensorModelMarker, sensorID)
}

// ListAvailableDates returns the archive's dates after EpochCutoff in listing
// order, without duplicates. Concurrent callers share one request; the
// shared request runs detached from any single caller and is bounded by the
// HTTP client timeout, so a caller giving up never fails the others.
func (c *Client) ListAvailableDates(ctx context.Context) ([]string, error) {
	if dates, ok := c.cachedDates(); ok {
		return dates, nil
	}

	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(rootListingKey, func() (any, error) {
		dates, err := c.fetchRootListing(fetchCtx)
		if err != nil {
			return nil, err
		}
		c.storeDates(dates)
		return dates, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("list archive dates: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			log.Debug("root listing shared between callers")
		}
		dates := res.Val.([]string)
		return append([]string(nil), dates...), nil
	}
}

// IsDateListed reports whether the archive lists date.
func (c *Client) IsDateListed(ctx context.Context, date string) (bool, error) {
	dates, err := c.ListAvailableDates(ctx)
	if err != nil {
		return false, err
	}
	for _, d := range dates {
		if d == date {
			return true, nil
		}
	}
	return false, nil
}

// ListDayFiles returns the export names of the supported sensor model for
// one day.
func (c *Client) ListDayFiles(ctx context.Context, date string) ([]string, error) {
	url := c.baseURL + "/" + date + "/"
	body, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}

	links, err := parseListing(body)
	if err != nil {
		return nil, &errs.ParseError{Source: url, Err: err}
	}

	files := make([]string, 0, len(links))
	for _, l := range links {
		if strings.Contains(l.href, SensorModelMarker) {
			files = append(files, l.href)
		}
	}
	return files, nil
}

// FetchFile downloads one export of a day.
func (c *Client) FetchFile(ctx context.Context, date, name string) ([]byte, error) {
	return c.get(ctx, c.baseURL+"/"+date+"/"+name)
}

func (c *Client) fetchRootListing(ctx context.Context) ([]string, error) {
	url := c.baseURL + "/"
	body, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}

	links, err := parseListing(body)
	if err != nil {
		return nil, &errs.ParseError{Source: url, Err: err}
	}

	cutoff, _ := utils.ParseDate(EpochCutoff)
	seen := make(map[string]struct{}, len(links))
	dates := make([]string, 0, len(links))
	for _, l := range links {
		name := strings.SplitN(l.text, "/", 2)[0]
		ts, err := utils.ParseDate(name)
		if err != nil || !ts.After(cutoff) {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		dates = append(dates, name)
	}

	log.Info("root listing fetched", "dates", len(dates))
	return dates, nil
}

func (c *Client) cachedDates() ([]string, bool) {
	if c.cacheTTL <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cached == nil || c.now().Sub(c.cachedAt) >= c.cacheTTL {
		return nil, false
	}
	return append([]string(nil), c.cached...), true
}

func (c *Client) storeDates(dates []string) {
	if c.cacheTTL <= 0 {
		return
	}
	c.mu.Lock()
	c.cached = dates
	c.cachedAt = c.now()
	c.mu.Unlock()
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &errs.FetchError{URL: url, Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &errs.FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &errs.FetchError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &errs.FetchError{URL: url, Err: fmt.Errorf("read body: %w", err)}
	}
	return body, nil
}
