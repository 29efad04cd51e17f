package provider

import (
	"context"
	"net/url"
	"strings"

	"github.com/example/danmu-platform/services/danmu/internal/upstream/httpx"
)

var hostMarkers = map[Platform]string{
	Bilibili: "bilibili.com",
	IQiyi:    "iqiyi.com",
	Sohu:     "sohu.com",
	Tencent:  "qq.com",
	Youku:    "youku.com",
	MGTV:     "mgtv.com",
}

// Owns reports whether pageURL is hosted by p.
func (p Platform) Owns(pageURL string) bool {
	m, ok := hostMarkers[p]
	return ok && strings.Contains(pageURL, m)
}

// TuplePayload is the comment document shared by the scraper sidecar and the
// public mirrors.
type TuplePayload struct {
	Code    int     `json:"code"`
	Name    string  `json:"name"`
	Danmuku [][]any `json:"danmuku"`
}

// Raws converts the tuples that carry at least five fields.
func (p TuplePayload) Raws() []RawComment {
	out := make([]RawComment, 0, len(p.Danmuku))
	for _, t := range p.Danmuku {
		if r, ok := RawFromTuple(t); ok {
			out = append(out, r)
		}
	}
	return out
}

type episodesPayload struct {
	Episodes map[string]string `json:"episodes"`
}

// RemoteScraper talks to a scraper sidecar exposing
// /{platform}/episodes?url= and /{platform}/comments?url=.
type RemoteScraper struct {
	Platform Platform
	BaseURL  string
	Client   *httpx.Client
}

func NewRemoteScraper(p Platform, baseURL string, c *httpx.Client) *RemoteScraper {
	return &RemoteScraper{Platform: p, BaseURL: strings.TrimRight(baseURL, "/"), Client: c}
}

// RemoteSet builds one RemoteScraper per platform sharing a client.
func RemoteSet(baseURL string, c *httpx.Client) map[Platform]Scraper {
	out := make(map[Platform]Scraper, len(EpisodeOrder))
	for _, p := range EpisodeOrder {
		out[p] = NewRemoteScraper(p, baseURL, c)
	}
	return out
}

func (s *RemoteScraper) endpoint(op, pageURL string) string {
	return s.BaseURL + "/" + s.Platform.String() + "/" + op + "?url=" + url.QueryEscape(pageURL)
}

func (s *RemoteScraper) Episodes(ctx context.Context, pageURL string) (map[string]string, error) {
	if !s.Platform.Owns(pageURL) {
		return nil, nil
	}
	out, err := httpx.GetJSON[episodesPayload](ctx, s.Client, s.endpoint("episodes", pageURL), nil)
	if err != nil {
		return nil, err
	}
	eps := make(map[string]string, len(out.Episodes))
	for k, v := range out.Episodes {
		if k != "" && v != "" {
			eps[k] = v
		}
	}
	return eps, nil
}

func (s *RemoteScraper) Comments(ctx context.Context, pageURL string) ([]RawComment, error) {
	out, err := httpx.GetJSON[TuplePayload](ctx, s.Client, s.endpoint("comments", pageURL), nil)
	if err != nil {
		return nil, err
	}
	return out.Raws(), nil
}
