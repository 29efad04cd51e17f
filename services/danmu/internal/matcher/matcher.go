// Package matcher reconciles video records from the catalog service with records
// from the aggregator. Two records denote the same playable title when their
// episode page identifiers overlap. The relation is pairwise and symmetric but
// not transitive: A~B and B~C says nothing about A and C.
package matcher

import (
	"strings"

	"github.com/example/danmu-platform/services/danmu/internal/domain"
	"github.com/example/danmu-platform/services/danmu/internal/urlnorm"
)

var sourceCodes = []struct {
	native string
	code   string
}{
	{native: "腾讯", code: "qq"},
	{native: "爱奇艺", code: "qiyi"},
	{native: "优酷", code: "youku"},
	{native: "哔哩哔哩", code: "bilibili"},
}

var typeCodes = map[string]string{
	"电视剧": "tv",
	"电影":  "movie",
	"动漫":  "tv",
	"少儿":  "tv",
}

// SourceCode maps a native platform name ("腾讯视频") to its code ("qq").
// Names that are already codes, or unknown, pass through.
func SourceCode(source string) string {
	source = strings.TrimSpace(source)
	for _, sc := range sourceCodes {
		if strings.Contains(source, sc.native) {
			return sc.code
		}
	}
	return source
}

// CanonicalType folds native genre labels into tv or movie.
func CanonicalType(t string) string {
	t = strings.TrimSpace(t)
	if c, ok := typeCodes[t]; ok {
		return c
	}
	return strings.ToLower(t)
}

// SamePlayable reports whether a and b share at least one episode page identifier.
func SamePlayable(a, b domain.VideoRecord) bool {
	ids := playableIDs(a)
	if len(ids) == 0 {
		return false
	}
	for _, ep := range b.Episodes {
		if ep.URL == "" {
			continue
		}
		if _, ok := ids[urlnorm.PlayableID(ep.URL)]; ok {
			return true
		}
	}
	return false
}

// Corresponds is the full pairwise test: same platform, same canonical type,
// same playable title.
func Corresponds(a, b domain.VideoRecord) bool {
	if SourceCode(a.Source) != SourceCode(b.Source) {
		return false
	}
	ta, tb := CanonicalType(a.Type), CanonicalType(b.Type)
	if ta == "" || ta != tb {
		return false
	}
	return SamePlayable(a, b)
}

// Match pairs every catalog record with every aggregator record and emits, per
// corresponding pair, the aggregator's record re-keyed to the catalog id.
// Output order follows catalog order, then aggregator order.
func Match(catalog, aggregator []domain.VideoRecord) []domain.VideoRecord {
	var out []domain.VideoRecord
	for _, c := range catalog {
		for _, a := range aggregator {
			if !Corresponds(c, a) {
				continue
			}
			out = append(out, domain.VideoRecord{
				Title:     a.Title,
				Source:    a.Source,
				Type:      a.Type,
				CatalogID: c.CatalogID,
				Episodes:  a.Episodes,
			})
		}
	}
	return out
}

func playableIDs(r domain.VideoRecord) map[string]struct{} {
	ids := make(map[string]struct{}, len(r.Episodes))
	for _, ep := range r.Episodes {
		if ep.URL != "" {
			ids[urlnorm.PlayableID(ep.URL)] = struct{}{}
		}
	}
	return ids
}
