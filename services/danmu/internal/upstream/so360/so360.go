// Package so360 queries the 360kan search engine for provider deep links.
package so360

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/danmu-platform/services/danmu/internal/season"
	"github.com/example/danmu-platform/services/danmu/internal/upstream/httpx"
)

const DefaultBaseURL = "https://api.so.360kan.com"

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
		timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{HTTP: h, BaseURL: strings.TrimRight(baseURL, "/"), Timeout: timeout, Log: log}
}

// Row is one search hit. Playlinks keeps the order the engine lists them in.
type Row struct {
	Title     string     `json:"titleTxt"`
	CatID     flexInt    `json:"cat_id"`
	Playlinks orderedMap `json:"playlinks"`
}

type response struct {
	Data struct {
		LongData struct {
			Rows []Row `json:"rows"`
		} `json:"longData"`
	} `json:"data"`
}

// Search returns the deep links of the first row that is the requested season
// of title. isSeries selects series rows (cat_id >= 2) over films.
func (c *Client) Search(ctx context.Context, title, seasonNumber string, isSeries bool) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	u := fmt.Sprintf("%s/index?kw=%s&from&pageno=1&v_ap=1&tab=all", c.BaseURL, url.QueryEscape(title))
	resp, err := httpx.GetJSON[response](ctx, c.HTTP, u, nil)
	if err != nil {
		return nil, fmt.Errorf("so360 search %q: %w", title, err)
	}

	requested := season.Requested(seasonNumber)
	for _, row := range resp.Data.LongData.Rows {
		if len(row.Playlinks) == 0 {
			continue
		}
		if !season.Accept(row.Title, title, requested) {
			continue
		}
		if isSeries != (int(row.CatID) >= 2) {
			continue
		}
		c.Log.Debug("so360: row matched", zap.String("title", title), zap.String("row", row.Title), zap.Int("links", len(row.Playlinks)))
		return row.Playlinks.Values(), nil
	}
	return nil, nil
}

// flexInt decodes a number that may be sent as a JSON string.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("so360: cat_id %s: %w", b, err)
	}
	*f = flexInt(n)
	return nil
}

type entry struct {
	Key   string
	Value string
}

// orderedMap is a JSON object of string values decoded in document order.
// Non-string values are skipped.
type orderedMap []entry

func (m *orderedMap) UnmarshalJSON(b []byte) error {
	*m = nil
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		// Rows without links send [] or null.
		return nil
	}
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := kt.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		var v string
		if json.Unmarshal(raw, &v) == nil && v != "" {
			*m = append(*m, entry{Key: key, Value: v})
		}
	}
	return nil
}

func (m orderedMap) Values() []string {
	out := make([]string, len(m))
	for i, e := range m {
		out[i] = e.Value
	}
	return out
}
