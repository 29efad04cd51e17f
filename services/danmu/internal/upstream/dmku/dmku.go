// Package dmku is the combined fast path: public mirrors that already serve
// comments for any provider URL.
package dmku

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/example/danmu-platform/internal/platform/fanout"
	"github.com/example/danmu-platform/services/danmu/internal/domain"
	"github.com/example/danmu-platform/services/danmu/internal/provider"
	"github.com/example/danmu-platform/services/danmu/internal/upstream/httpx"
)

// DefaultMirrors are queried concurrently; each is completed with the
// escaped provider URL.
var DefaultMirrors = []string{
	"https://dmku.hls.one/?ac=dm&url=",
	"https://api.danmu.icu/?ac=dm&url=",
}

type Client struct {
	HTTP    *httpx.Client
	Mirrors []string
	Log     *zap.Logger
}

func New(h *httpx.Client, mirrors []string, log *zap.Logger) *Client {
	if h == nil {
		h = httpx.New()
	}
	if len(mirrors) == 0 {
		mirrors = DefaultMirrors
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{HTTP: h, Mirrors: mirrors, Log: log}
}

// Comments asks every mirror for pageURL and concatenates their answers in
// mirror order. A failing mirror contributes nothing.
func (c *Client) Comments(ctx context.Context, pageURL string) []domain.CommentEvent {
	fns := make([]func(context.Context) ([]domain.CommentEvent, error), 0, len(c.Mirrors))
	for _, m := range c.Mirrors {
		m := m
		fns = append(fns, func(ctx context.Context) ([]domain.CommentEvent, error) {
			return c.fetch(ctx, m, pageURL)
		})
	}

	var out []domain.CommentEvent
	for i, r := range fanout.Join(ctx, fns...) {
		if r.Err != nil {
			c.Log.Debug("dmku: mirror failed", zap.String("mirror", c.Mirrors[i]), zap.Error(r.Err))
			continue
		}
		out = append(out, r.Value...)
	}
	return out
}

func (c *Client) fetch(ctx context.Context, mirror, pageURL string) ([]domain.CommentEvent, error) {
	u := mirror + url.QueryEscape(pageURL)
	if !strings.Contains(mirror, "?") {
		u = strings.TrimRight(mirror, "/") + "/?ac=dm&url=" + url.QueryEscape(pageURL)
	}
	payload, err := httpx.GetJSON[provider.TuplePayload](ctx, c.HTTP, u, nil)
	if err != nil {
		return nil, err
	}
	return provider.NormalizeAll(payload.Raws()), nil
}
