package provider

import "strings"

// Platform is one of the supported video hosts.
type Platform int

const (
	Bilibili Platform = iota
	IQiyi
	Sohu
	Tencent
	Youku
	MGTV
)

var platformNames = [...]string{
	Bilibili: "bilibili",
	IQiyi:    "iqiyi",
	Sohu:     "sohu",
	Tencent:  "tencent",
	Youku:    "youku",
	MGTV:     "mgtv",
}

func (p Platform) String() string {
	if p < 0 || int(p) >= len(platformNames) {
		return "unknown"
	}
	return platformNames[p]
}

// EpisodeOrder is the order platforms are asked to list episodes for a page.
var EpisodeOrder = []Platform{Bilibili, IQiyi, Sohu, Tencent, Youku, MGTV}

// commentRoutes picks the platform serving comments for a URL; the first
// marker contained in the URL wins.
var commentRoutes = []struct {
	marker   string
	platform Platform
}{
	{marker: "mgtv", platform: MGTV},
	{marker: "qq", platform: Tencent},
	{marker: "youku", platform: Youku},
	{marker: "iqiyi", platform: IQiyi},
	{marker: "bilibili", platform: Bilibili},
	{marker: "sohu", platform: Sohu},
}

// PlatformForURL dispatches a page URL to the platform that hosts it.
func PlatformForURL(u string) (Platform, bool) {
	for _, r := range commentRoutes {
		if strings.Contains(u, r.marker) {
			return r.platform, true
		}
	}
	return 0, false
}
