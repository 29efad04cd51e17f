// Package douban is the catalog service adapter: subject metadata, vendor
// hints, subject page play links and title search.
package douban

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/example/danmu-platform/internal/platform/retry"
	"github.com/example/danmu-platform/services/danmu/internal/domain"
	"github.com/example/danmu-platform/services/danmu/internal/season"
	"github.com/example/danmu-platform/services/danmu/internal/upstream/httpx"
	"github.com/example/danmu-platform/services/danmu/internal/urlnorm"
)

const (
	DefaultAPIBase  = "https://frodo.douban.com/api/v2"
	DefaultPageBase = "https://movie.douban.cmliussss.net"
	DefaultAPIKey   = "0ac44ae016490db2204ce0a042db2916"

	miniProgramUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36 MicroMessenger/7.0.20.1781(0x6700143B) NetType/WIFI MiniProgramEnv/Windows WindowsWechat/WMPF WindowsWechat(0x63090c33)XWEB/11581"
	pageUA        = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

type Config struct {
	APIBase  string
	PageBase string
	APIKey   string
	Timeout  time.Duration
}

type Client struct {
	HTTP   *httpx.Client
	Config Config
	Retry  retry.Policy
	Log    *zap.Logger
}

type Option func(*Client)

func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.Log = log }
}

func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.Retry = p }
}

func New(h *httpx.Client, cfg Config, opts ...Option) *Client {
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	if cfg.PageBase == "" {
		cfg.PageBase = DefaultPageBase
	}
	if cfg.APIKey == "" {
		cfg.APIKey = DefaultAPIKey
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if h == nil {
		h = httpx.New()
	}
	c := &Client{
		HTTP: h,
		Config: Config{
			APIBase:  strings.TrimRight(cfg.APIBase, "/"),
			PageBase: strings.TrimRight(cfg.PageBase, "/"),
			APIKey:   cfg.APIKey,
			Timeout:  cfg.Timeout,
		},
		Retry: retry.Default,
		Log:   zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func apiHeader() http.Header {
	h := http.Header{}
	h.Set("User-Agent", miniProgramUA)
	h.Set("xweb_xhr", "1")
	h.Set("Content-Type", "application/json")
	h.Set("Sec-Fetch-Site", "cross-site")
	h.Set("Sec-Fetch-Mode", "cors")
	h.Set("Sec-Fetch-Dest", "empty")
	h.Set("Referer", "https://servicewechat.com/wx2f9b06c1de1ccfca/99/page-frame.html")
	h.Set("Accept-Language", "zh-CN,zh;q=0.9")
	return h
}

type subjectResponse struct {
	ID      string          `json:"id"`
	Title   string          `json:"title"`
	Type    json.RawMessage `json:"type"`
	Vendors []domain.Vendor `json:"vendors"`
}

// Subject fetches the catalog record of id.
func (c *Client) Subject(ctx context.Context, id string, vt domain.VideoType) (domain.Subject, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Config.Timeout)
	defer cancel()

	if vt == "" {
		vt = domain.VideoTV
	}
	u := fmt.Sprintf("%s/%s/%s?apiKey=%s", c.Config.APIBase, vt, url.PathEscape(id), c.Config.APIKey)
	resp, err := httpx.GetJSON[subjectResponse](ctx, c.HTTP, u, apiHeader())
	if err != nil {
		return domain.Subject{}, fmt.Errorf("douban subject %s: %w", id, err)
	}
	return domain.Subject{
		CatalogID: id,
		Title:     resp.Title,
		Type:      subjectType(resp.Type),
		Vendors:   resp.Vendors,
	}, nil
}

// subjectType accepts the type as a string or a list of strings.
func subjectType(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var ss []string
	if json.Unmarshal(raw, &ss) == nil && len(ss) > 0 {
		return ss[0]
	}
	return ""
}

var reLink2 = regexp.MustCompile(`https://www\.douban\.com/link2/\?url=(.*?)",.+ep:.+"(.*?)"`)

// SubjectLinks scrapes the per-episode play links embedded in the scripts of
// the subject page.
func (c *Client) SubjectLinks(ctx context.Context, id string) (domain.Mapping, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Config.Timeout)
	defer cancel()

	u := fmt.Sprintf("%s/subject/%s/", c.Config.PageBase, url.PathEscape(id))
	body, err := c.HTTP.Get(ctx, u, http.Header{"User-Agent": {pageUA}})
	if err != nil {
		return nil, fmt.Errorf("douban page %s: %w", id, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("douban page %s: %w", id, err)
	}

	out := domain.Mapping{}
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		for _, m := range reLink2.FindAllStringSubmatch(s.Text(), -1) {
			link, err := url.QueryUnescape(m[1])
			if err != nil {
				link = m[1]
			}
			out.Add(m[2], urlnorm.RewriteMobileYouku(link))
		}
	})
	return out, nil
}

type searchResponse struct {
	Items []struct {
		Layout string `json:"layout"`
		Target struct {
			ID           string `json:"id"`
			Title        string `json:"title"`
			HasLinewatch bool   `json:"has_linewatch"`
		} `json:"target"`
		TargetID string `json:"target_id"`
	} `json:"items"`
}

// FindByTitle searches the catalog for the requested season of title and
// returns the catalog id of the first acceptable subject, or "" when none is.
func (c *Client) FindByTitle(ctx context.Context, title, seasonNumber string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Config.Timeout)
	defer cancel()

	q := url.Values{}
	q.Set("q", title)
	q.Set("start", "0")
	q.Set("count", "20")
	q.Set("apiKey", c.Config.APIKey)
	resp, err := httpx.GetJSON[searchResponse](ctx, c.HTTP, c.Config.APIBase+"/search/weixin?"+q.Encode(), apiHeader())
	if err != nil {
		return "", fmt.Errorf("douban search %q: %w", title, err)
	}

	requested := season.Requested(seasonNumber)
	for _, it := range resp.Items {
		if it.Layout != "subject" || !it.Target.HasLinewatch {
			continue
		}
		if !season.Accept(it.Target.Title, title, requested) {
			continue
		}
		id := it.TargetID
		if id == "" {
			id = it.Target.ID
		}
		if id != "" {
			c.Log.Debug("douban: title matched", zap.String("title", title), zap.String("candidate", it.Target.Title), zap.String("id", id))
			return id, nil
		}
	}
	return "", nil
}
