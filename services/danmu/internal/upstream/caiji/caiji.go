// Package caiji reads the vod aggregator: a catalog of multi-source playlists
// keyed by title.
package caiji

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/danmu-platform/services/danmu/internal/domain"
	"github.com/example/danmu-platform/services/danmu/internal/matcher"
	"github.com/example/danmu-platform/services/danmu/internal/upstream/httpx"
)

const DefaultBaseURL = "https://gctf.tfdh.top/api.php/provide/vod"

// ErrBadPayload is returned when the aggregator answers without code 1.
var ErrBadPayload = errors.New("caiji: invalid response")

type Client struct {
	HTTP    *httpx.Client
	BaseURL string
	Timeout time.Duration
	Log     *zap.Logger
}

func New(h *httpx.Client, baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	if h == nil {
		h = httpx.New()
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{HTTP: h, BaseURL: strings.TrimRight(baseURL, "/"), Timeout: timeout, Log: log}
}

type vod struct {
	Name     string          `json:"vod_name"`
	TypeName string          `json:"type_name"`
	DoubanID json.RawMessage `json:"vod_douban_id"`
	PlayFrom string          `json:"vod_play_from"`
	PlayURL  string          `json:"vod_play_url"`
}

type response struct {
	Code int   `json:"code"`
	List []vod `json:"list"`
}

// Search returns one VideoRecord per (title, source) playlist matching title.
func (c *Client) Search(ctx context.Context, title string) ([]domain.VideoRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	q := url.Values{}
	q.Set("ac", "detail")
	q.Set("wd", title)
	resp, err := httpx.GetJSON[response](ctx, c.HTTP, c.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("caiji search %q: %w", title, err)
	}
	if resp.Code != 1 {
		return nil, fmt.Errorf("caiji search %q: %w (code %d)", title, ErrBadPayload, resp.Code)
	}

	var out []domain.VideoRecord
	for _, v := range resp.List {
		out = append(out, v.records()...)
	}
	c.Log.Debug("caiji: search", zap.String("title", title), zap.Int("records", len(out)))
	return out, nil
}

// records splits a vod into one record per play source. Sources are separated
// by "$$$", episodes by "#", and each episode is "title$url" or a bare url.
func (v vod) records() []domain.VideoRecord {
	if v.PlayFrom == "" || v.PlayURL == "" {
		return nil
	}
	sources := strings.Split(v.PlayFrom, "$$$")
	lists := strings.Split(v.PlayURL, "$$$")
	catalogID := doubanID(v.DoubanID)

	var out []domain.VideoRecord
	for i, source := range sources {
		if i >= len(lists) {
			break
		}
		var eps []domain.Episode
		for j, raw := range strings.Split(lists[i], "#") {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}
			title, link, found := strings.Cut(raw, "$")
			if !found {
				title, link = fmt.Sprintf("第%d集", j+1), raw
			}
			if link, _, _ = strings.Cut(link, "$"); link == "" {
				continue
			}
			eps = append(eps, domain.Episode{Title: title, Index: strconv.Itoa(j + 1), URL: link})
		}
		if len(eps) == 0 {
			continue
		}
		out = append(out, domain.VideoRecord{
			Title:     v.Name,
			Source:    strings.TrimSpace(source),
			Type:      v.TypeName,
			CatalogID: catalogID,
			Episodes:  eps,
		})
	}
	return out
}

func doubanID(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil && n != "0" {
		return n.String()
	}
	return ""
}

// BestMatch picks the record serving title: unplayable titles (commentary,
// trailers, extras) are skipped, and the first record of type vt whose title
// equals, contains or is contained in title wins.
func BestMatch(records []domain.VideoRecord, title string, vt domain.VideoType) (domain.VideoRecord, bool) {
	for _, r := range records {
		if !domain.PlayableTitle(r.Title) {
			continue
		}
		if matcher.CanonicalType(r.Type) != string(vt) {
			continue
		}
		if r.Title == title || strings.Contains(r.Title, title) || strings.Contains(title, r.Title) {
			return r, true
		}
	}
	return domain.VideoRecord{}, false
}

// FindByTitle searches and applies BestMatch.
func (c *Client) FindByTitle(ctx context.Context, title string, vt domain.VideoType) (domain.VideoRecord, bool, error) {
	records, err := c.Search(ctx, title)
	if err != nil {
		return domain.VideoRecord{}, false, err
	}
	r, ok := BestMatch(records, title, vt)
	return r, ok, nil
}
