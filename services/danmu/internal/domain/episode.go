package domain

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	reEpisodeCN     = regexp.MustCompile(`第\s*(\d+)\s*集`)
	reEpisodeEP     = regexp.MustCompile(`[Ee][Pp]?\s*(\d+)`)
	reEpisodeLeader = regexp.MustCompile(`^(\d+)(?:\s|$)`)
)

// ExtractEpisodeNumber reads the episode number from an episode title, trying
// "第N集", then "EPN"/"EN", then a leading number. The result has no zero padding.
func ExtractEpisodeNumber(title string) (string, bool) {
	if title == "" {
		return "", false
	}
	for _, re := range []*regexp.Regexp{reEpisodeCN, reEpisodeEP, reEpisodeLeader} {
		if m := re.FindStringSubmatch(title); m != nil {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			return strconv.Itoa(n), true
		}
	}
	return "", false
}

// MappingFromEpisodes indexes episodes by number: title-derived numbers take
// precedence over positional indexes.
func MappingFromEpisodes(episodes []Episode) Mapping {
	m := Mapping{}
	for _, ep := range episodes {
		if n, ok := ExtractEpisodeNumber(ep.Title); ok {
			if _, taken := m[n]; !taken {
				m.Add(n, ep.URL)
			}
		}
	}
	for _, ep := range episodes {
		if _, taken := m[ep.Index]; !taken {
			m.Add(ep.Index, ep.URL)
		}
	}
	return m
}

var invalidTitleMarkers = []string{"解说", "预告", "花絮", "动态漫", "之精彩"}

// PlayableTitle rejects commentary, trailers, extras and motion-comic uploads.
func PlayableTitle(title string) bool {
	for _, m := range invalidTitleMarkers {
		if strings.Contains(title, m) {
			return false
		}
	}
	return true
}
