package douban

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/example/danmu-platform/internal/platform/fanout"
	"github.com/example/danmu-platform/internal/platform/retry"
	"github.com/example/danmu-platform/services/danmu/internal/domain"
	"github.com/example/danmu-platform/services/danmu/internal/urlnorm"
)

var (
	reYoukuShow = regexp.MustCompile(`(?:https:)?//v\.youku\.com/+v_show/id_[^/]+\.html`)
	errNoLink   = errors.New("douban: no playable link")
)

// Records derives one single-episode VideoRecord per supported vendor of s,
// resolving the vendors that need a page fetch concurrently. Vendors that
// fail to resolve contribute nothing.
func (c *Client) Records(ctx context.Context, s domain.Subject) []domain.VideoRecord {
	var fns []func(context.Context) (domain.VideoRecord, error)
	for _, v := range s.Vendors {
		v := v
		var resolve func(context.Context, domain.Vendor) (string, error)
		switch app := v.AppURI; {
		case strings.HasPrefix(app, "iqiyi"):
			resolve = c.iqiyiLink
		case strings.HasPrefix(app, "youku"):
			resolve = c.youkuLink
		case strings.HasPrefix(app, "txvideo"):
			resolve = c.tencentLink
		case strings.HasPrefix(app, "bilibili"):
			resolve = c.bilibiliLink
		default:
			c.Log.Debug("douban: unsupported vendor", zap.String("vendor", v.Title), zap.String("app_uri", app))
			continue
		}
		fns = append(fns, func(ctx context.Context) (domain.VideoRecord, error) {
			link, err := resolve(ctx, v)
			if err != nil {
				return domain.VideoRecord{}, err
			}
			return domain.VideoRecord{
				Title:     s.Title,
				Source:    v.Title,
				Type:      s.Type,
				CatalogID: s.CatalogID,
				Episodes:  []domain.Episode{{Title: "第1集", Index: "1", URL: link}},
			}, nil
		})
	}
	return fanout.All(ctx, fns...)
}

func (c *Client) iqiyiLink(_ context.Context, v domain.Vendor) (string, error) {
	if link := urlnorm.StripQuery(v.URL); link != "" {
		return link, nil
	}
	return "", errNoLink
}

func (c *Client) bilibiliLink(_ context.Context, v domain.Vendor) (string, error) {
	if link := urlnorm.BilibiliCanonical(v.URL); link != "" {
		return link, nil
	}
	return "", errNoLink
}

func (c *Client) youkuLink(ctx context.Context, v domain.Vendor) (string, error) {
	q := urlnorm.Query(v.URI)
	showID := q.Get("showid")
	if showID == "" {
		return "", errNoLink
	}
	return c.youkuShowLink(ctx, fmt.Sprintf("https://v.youku.com/video?s=%s&refer=%s", showID, q.Get("refer")))
}

// youkuShowLink finds the first episode page linked from a Youku show page.
func (c *Client) youkuShowLink(ctx context.Context, page string) (string, error) {
	link, err := c.scrapeFirst(ctx, page, reYoukuShow)
	if err != nil {
		return "", err
	}
	link = strings.Replace(link, "//v_show", "/v_show", 1)
	return strings.Replace(link, "http://", "https://", 1), nil
}

func (c *Client) tencentLink(ctx context.Context, v domain.Vendor) (string, error) {
	q := urlnorm.Query(v.URI)
	cid, vid := q.Get("cid"), q.Get("vid")
	if cid == "" {
		return "", errNoLink
	}
	if vid != "" {
		return fmt.Sprintf("https://v.qq.com/x/cover/%s/%s.html", cid, vid), nil
	}
	re := regexp.MustCompile(`(?:https:)?//v\.qq\.com/x/cover/` + regexp.QuoteMeta(cid) + `/[^/?]+\.html`)
	return c.scrapeFirst(ctx, fmt.Sprintf("https://v.qq.com/x/cover/%s.html", cid), re)
}

// scrapeFirst fetches page and returns the first link matching re, preferring
// anchor targets over links embedded anywhere else in the document.
func (c *Client) scrapeFirst(ctx context.Context, page string, re *regexp.Regexp) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Config.Timeout)
	defer cancel()

	body, err := retry.Do(ctx, c.Retry, func(ctx context.Context) ([]byte, error) {
		return c.HTTP.Get(ctx, page, http.Header{"User-Agent": {pageUA}})
	})
	if err != nil {
		c.Log.Debug("douban: page fetch failed", zap.String("url", page), zap.Error(err))
		return "", err
	}

	var link string
	if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body)); err == nil {
		doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			href, _ := s.Attr("href")
			link = re.FindString(href)
			return link == ""
		})
	}
	if link == "" {
		link = re.FindString(string(body))
	}
	if link == "" {
		return "", errNoLink
	}
	if !strings.HasPrefix(link, "https:") && !strings.HasPrefix(link, "http:") {
		link = "https:" + link
	}
	return link, nil
}
