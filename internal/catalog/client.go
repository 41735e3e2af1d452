// Package catalog talks to the remote manga catalogue API.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"mangadl/internal/model"
)

const (
	defaultTimeout   = 10 * time.Second
	maxMetadataBytes = 8 << 20

	// page URLs served relative to the image host start with this marker
	relativeMangaPrefix = "//manga/"
)

// Filters is the fixed allow-list attached to every search request.
type Filters struct {
	SiteIDs  []int
	Statuses []int
	Types    []int
}

type Options struct {
	BaseURL     string
	ImageHost   string
	Timeout     time.Duration
	Filters     Filters
	ThumbWidth  int
	ThumbHeight int
}

// Client is a thin request/response wrapper over the catalogue API.
type Client struct {
	baseURL     string
	imageHost   string
	httpClient  *http.Client
	filters     Filters
	thumbWidth  int
	thumbHeight int
}

func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		imageHost:   strings.Trim(opts.ImageHost, "/"),
		httpClient:  &http.Client{Timeout: timeout},
		filters:     opts.Filters,
		thumbWidth:  opts.ThumbWidth,
		thumbHeight: opts.ThumbHeight,
	}
}

type pagesEnvelope struct {
	Data struct {
		Pages []struct {
			URL string `json:"url"`
		} `json:"pages"`
	} `json:"data"`
}

// Pages returns the ordered, rewritten page URLs of a chapter or the reason
// they could not be obtained.
func (c *Client) Pages(ctx context.Context, ref model.ChapterRef) ([]string, error) {
	query := url.Values{}
	query.Set("number", ref.Chapter)
	query.Set("volume", ref.Volume)

	var envelope pagesEnvelope
	if err := c.getJSON(ctx, "/manga/"+url.PathEscape(ref.Slug)+"/chapter", query, &envelope); err != nil {
		return nil, err
	}
	pageURLs := make([]string, 0, len(envelope.Data.Pages))
	for _, p := range envelope.Data.Pages {
		if strings.TrimSpace(p.URL) == "" {
			continue
		}
		pageURLs = append(pageURLs, c.rewritePageURL(p.URL))
	}
	if len(pageURLs) == 0 {
		return nil, fmt.Errorf("%w: no pages for %s", ErrEmptyResult, ref)
	}
	return pageURLs, nil
}

// ResolvePages is Pages with every failure reported as an empty list.
func (c *Client) ResolvePages(ctx context.Context, ref model.ChapterRef) []string {
	pageURLs, err := c.Pages(ctx, ref)
	if err != nil {
		log.Warn().Err(err).Str("slug", ref.Slug).Str("volume", ref.Volume).Str("chapter", ref.Chapter).Msg("resolve pages failed")
		return []string{}
	}
	return pageURLs
}

func (c *Client) rewritePageURL(raw string) string {
	if strings.HasPrefix(raw, relativeMangaPrefix) {
		return "https://" + c.imageHost + raw[1:]
	}
	return raw
}

type searchEnvelope struct {
	Data []searchRecord `json:"data"`
}

type searchRecord struct {
	SlugURL string          `json:"slug_url"`
	RusName string          `json:"rus_name"`
	EngName string          `json:"eng_name"`
	Name    string          `json:"name"`
	Type    labelField      `json:"type"`
	Status  labelField      `json:"status"`
	Cover   json.RawMessage `json:"cover"`
}

type coverField struct {
	MD      string `json:"md"`
	Default string `json:"default"`
}

func (r searchRecord) toResult() model.SearchResult {
	name := r.RusName
	if name == "" {
		name = r.EngName
	}
	if name == "" {
		name = r.Name
	}
	var cover coverField
	// a cover that is not an object is treated as missing
	_ = json.Unmarshal(r.Cover, &cover)
	coverURL := cover.MD
	if coverURL == "" {
		coverURL = cover.Default
	}
	return model.SearchResult{
		ID:       r.SlugURL,
		Name:     name,
		CoverURL: coverURL,
		Type:     r.Type.orNA(),
		Status:   r.Status.orNA(),
	}
}

// Search returns the first page of titles matching query. Errors yield an
// empty list.
func (c *Client) Search(ctx context.Context, query string) []model.SearchResult {
	results, err := c.SearchTitles(ctx, query)
	if err != nil {
		log.Warn().Err(err).Str("query", query).Msg("search failed")
		return []model.SearchResult{}
	}
	return results
}

// SearchTitles is Search with the failure reported, so callers can tell "no
// match" from "request failed".
func (c *Client) SearchTitles(ctx context.Context, query string) ([]model.SearchResult, error) {
	params := url.Values{}
	for _, id := range c.filters.SiteIDs {
		params.Add("site_id[]", strconv.Itoa(id))
	}
	params.Set("q", query)
	params.Set("page", "1")
	for _, status := range c.filters.Statuses {
		params.Add("status[]", strconv.Itoa(status))
	}
	for _, kind := range c.filters.Types {
		params.Add("types[]", strconv.Itoa(kind))
	}

	var envelope searchEnvelope
	if err := c.getJSON(ctx, "/manga", params, &envelope); err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	results := make([]model.SearchResult, 0, len(envelope.Data))
	for _, record := range envelope.Data {
		if record.SlugURL == "" {
			continue
		}
		results = append(results, record.toResult())
	}
	return results, nil
}

type chaptersEnvelope struct {
	Data []struct {
		Volume flexString `json:"volume"`
		Number flexString `json:"number"`
		Name   string     `json:"name"`
	} `json:"data"`
}

// ListChapters fetches every chapter of a title. Unlike Search it reports
// failures, so callers can tell "no chapters" from "fetch failed".
func (c *Client) ListChapters(ctx context.Context, slug string) ([]model.ChapterEntry, error) {
	var envelope chaptersEnvelope
	if err := c.getJSON(ctx, "/manga/"+url.PathEscape(slug)+"/chapters", nil, &envelope); err != nil {
		return nil, fmt.Errorf("load chapters of %s: %w", slug, err)
	}
	entries := make([]model.ChapterEntry, 0, len(envelope.Data))
	for _, ch := range envelope.Data {
		entries = append(entries, model.ChapterEntry{
			Volume: string(ch.Volume),
			Number: string(ch.Number),
			Name:   ch.Name,
		})
	}
	return entries, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, query url.Values, out any) error {
	target := c.baseURL + endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	resp, err := c.get(ctx, target, "application/json")
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxMetadataBytes)).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}

// get issues a GET and returns the response only for 2xx statuses.
func (c *Client) get(ctx context.Context, target, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrTransport, err)
	}
	req.Header.Set("Accept", accept)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_ = resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, URL: target}
	}
	return resp, nil
}

// labelField decodes {"label": "..."} and ignores any other shape.
type labelField string

func (l *labelField) UnmarshalJSON(data []byte) error {
	var obj struct {
		Label string `json:"label"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		*l = labelField(obj.Label)
	}
	return nil
}

func (l labelField) orNA() string {
	if l == "" {
		return "N/A"
	}
	return string(l)
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", string(data))
	}
	*f = flexString(n.String())
	return nil
}
