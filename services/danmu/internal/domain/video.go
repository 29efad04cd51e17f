// Package domain holds the value types shared by the resolution and aggregation engine.
package domain

import (
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

type VideoType string

const (
	VideoTV    VideoType = "tv"
	VideoMovie VideoType = "movie"
)

// ParseVideoType accepts "tv" and "movie"; empty defaults to tv.
func ParseVideoType(s string) (VideoType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(VideoTV):
		return VideoTV, true
	case string(VideoMovie):
		return VideoMovie, true
	}
	return "", false
}

// Identity is the loose description a caller resolves from.
type Identity struct {
	CatalogID    string
	Title        string
	SeasonNumber string
	IsSeries     bool
	VideoType    VideoType
}

func (id Identity) HasCatalogID() bool { return strings.TrimSpace(id.CatalogID) != "" }
func (id Identity) HasTitle() bool     { return strings.TrimSpace(id.Title) != "" }

type Episode struct {
	Title string
	Index string
	URL   string
}

// VideoRecord is one source's view of a playable title.
type VideoRecord struct {
	Title     string
	Source    string
	Type      string
	CatalogID string
	Episodes  []Episode
}

// Vendor is a platform offer attached to a catalog subject.
type Vendor struct {
	Title  string `json:"title"`
	URL    string `json:"url"`
	URI    string `json:"uri"`
	AppURI string `json:"app_uri"`
}

// Subject is the catalog service's record for one catalog id.
type Subject struct {
	CatalogID string
	Title     string
	Type      string
	Vendors   []Vendor
}

// HintURLs returns the vendor links of s: the vendor url unless it points
// back at the catalog, otherwise its app uri.
func (s Subject) HintURLs() []string {
	var out []string
	for _, v := range s.Vendors {
		if v.URL != "" {
			path, _, _ := strings.Cut(v.URL, "?")
			if !strings.Contains(path, "douban") {
				out = append(out, v.URL)
				continue
			}
		}
		if v.URI != "" {
			out = append(out, v.URI)
		}
	}
	return out
}

// Mapping maps an episode index to the fetchable URLs serving it.
type Mapping map[string][]string

func (m Mapping) Empty() bool { return len(m) == 0 }

// Add appends non-empty urls under index; an index never maps to an empty list.
func (m Mapping) Add(index string, urls ...string) {
	urls = lo.Filter(urls, func(u string, _ int) bool { return strings.TrimSpace(u) != "" })
	if index == "" || len(urls) == 0 {
		return
	}
	m[index] = append(m[index], urls...)
}

// Select picks the URL for episode. When the episode is absent a single-entry
// mapping (a movie) falls back to its only entry; otherwise nothing is selected.
func (m Mapping) Select(episode string) (string, bool) {
	if urls, ok := m[episode]; ok && len(urls) > 0 {
		return urls[0], true
	}
	if len(m) == 1 {
		for _, urls := range m {
			if len(urls) > 0 {
				return urls[0], true
			}
		}
	}
	return "", false
}

// Indexes lists the episode indexes, numeric ones first in numeric order.
func (m Mapping) Indexes() []string {
	keys := lo.Keys(m)
	sort.SliceStable(keys, func(i, j int) bool {
		a, aErr := strconv.Atoi(keys[i])
		b, bErr := strconv.Atoi(keys[j])
		switch {
		case aErr == nil && bErr == nil:
			return a < b
		case aErr == nil:
			return true
		case bErr == nil:
			return false
		}
		return keys[i] < keys[j]
	})
	return keys
}
