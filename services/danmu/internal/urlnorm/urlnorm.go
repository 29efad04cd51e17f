// Package urlnorm turns provider deep links into fetchable page URLs and
// derives the per-platform identifier used to compare records.
package urlnorm

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/samber/lo"
)

// ToHTTP converts an app-scheme deep link into its web page URL. HTTP(S) URLs
// pass through; unknown schemes are returned unchanged. ok is false when a
// known scheme lacks the parameters its page URL needs.
func ToHTTP(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if strings.HasPrefix(raw, "http") {
		return raw, true
	}
	scheme, _, found := strings.Cut(raw, ":")
	if !found {
		return raw, true
	}
	q := query(raw)
	switch strings.ToLower(scheme) {
	case "txvideo":
		cid, vid := q.Get("cid"), q.Get("vid")
		if cid == "" || vid == "" {
			return "", false
		}
		return fmt.Sprintf("https://v.qq.com/x/cover/%s/%s.html", cid, vid), true
	case "iqiyi":
		tvid := q.Get("tvid")
		if tvid == "" {
			return "", false
		}
		return "http://www.iqiyi.com?tvid=" + tvid, true
	case "youku":
		showid := q.Get("showid")
		if showid == "" {
			return "", false
		}
		return fmt.Sprintf("https://v.youku.com/video?s=%s&refer=%s", showid, q.Get("refer")), true
	}
	return raw, true
}

// ToHTTPAll converts every link, dropping those that cannot be converted and
// repeated results while keeping the original order.
func ToHTTPAll(raws []string) []string {
	out := lo.FilterMap(raws, func(r string, _ int) (string, bool) {
		return ToHTTP(r)
	})
	return lo.Uniq(out)
}

// query returns the query parameters of raw, or an empty set when it does not parse.
func query(raw string) url.Values {
	u, err := url.Parse(raw)
	if err != nil {
		if _, rest, ok := strings.Cut(raw, "?"); ok {
			v, _ := url.ParseQuery(rest)
			return v
		}
		return url.Values{}
	}
	return u.Query()
}

// Query exposes query for vendor uri parsing.
func Query(raw string) url.Values { return query(raw) }

// RewriteMobileYouku maps Youku mobile pages onto their desktop equivalent.
func RewriteMobileYouku(u string) string {
	if !strings.Contains(u, "m.youku.com") {
		return u
	}
	u = strings.ReplaceAll(u, "m.youku.com", "v.youku.com")
	return strings.ReplaceAll(u, "alipay_video", "v_show")
}

// BilibiliCanonical re-hosts a bilibili URL on www.bilibili.com, keeping only the path.
// An empty result means the URL carries no page path.
func BilibiliCanonical(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Path == "" || u.Path == "/" {
		return ""
	}
	return "https://www.bilibili.com" + u.Path
}

// StripQuery drops the query string and forces https.
func StripQuery(raw string) string {
	raw, _, _ = strings.Cut(raw, "?")
	if strings.HasPrefix(raw, "http://") {
		raw = "https://" + strings.TrimPrefix(raw, "http://")
	}
	return raw
}

var (
	reIqiyiID    = regexp.MustCompile(`v_[^.]+\.html`)
	reYoukuID    = regexp.MustCompile(`id_[^.]+\.html`)
	reBilibiliID = regexp.MustCompile(`bangumi/play/([^?\s]+)`)
	reTencentID  = regexp.MustCompile(`cover/([^/]+)/`)
)

// PlayableID extracts the stable identifier of a platform page: iqiyi "v_<id>",
// youku "id_<id>", the bilibili bangumi play segment, or the tencent cover id.
// URLs without one identify themselves.
func PlayableID(u string) string {
	switch {
	case strings.Contains(u, "iqiyi"):
		if m := reIqiyiID.FindString(u); m != "" {
			return strings.TrimSuffix(m, ".html")
		}
	case strings.Contains(u, "youku"):
		if m := reYoukuID.FindString(u); m != "" {
			return strings.TrimSuffix(m, ".html")
		}
	case strings.Contains(u, "bilibili"):
		if m := reBilibiliID.FindStringSubmatch(u); m != nil {
			return m[1]
		}
	case strings.Contains(u, "qq"):
		if m := reTencentID.FindStringSubmatch(u); m != nil {
			return m[1]
		}
	}
	return u
}
