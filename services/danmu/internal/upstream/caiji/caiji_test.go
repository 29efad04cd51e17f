package caiji

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/danmu-platform/services/danmu/internal/domain"
)

const listJSON = `{"code": 1, "list": [
  {"vod_name": "凡人修仙传 解说", "type_name": "动漫", "vod_douban_id": 0,
   "vod_play_from": "qq", "vod_play_url": "第1集$https://v.qq.com/x/cover/jie/1.html"},
  {"vod_name": "凡人修仙传", "type_name": "动漫", "vod_douban_id": 30419644,
   "vod_play_from": "qq$$$qiyi$$$youku",
   "vod_play_url": "第01集$https://v.qq.com/x/cover/abc/e1.html#第02集$https://v.qq.com/x/cover/abc/e2.html$$$https://www.iqiyi.com/v_1.html#https://www.iqiyi.com/v_2.html"},
  {"vod_name": "凡人修仙传", "type_name": "电影", "vod_douban_id": "1",
   "vod_play_from": "", "vod_play_url": ""}
]}`

func newServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("ac") != "detail" || r.URL.Query().Get("wd") == "" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSearch_ParsesPlaylists(t *testing.T) {
	c := New(nil, newServer(t, listJSON).URL, 0, nil)
	recs, err := c.Search(context.Background(), "凡人修仙传")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	// jie(qq) + qq + qiyi; youku has no playlist and the film has no sources.
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %+v", recs)
	}
	qq := recs[1]
	if qq.Source != "qq" || qq.CatalogID != "30419644" || len(qq.Episodes) != 2 {
		t.Fatalf("qq record = %+v", qq)
	}
	if qq.Episodes[1].Title != "第02集" || qq.Episodes[1].Index != "2" {
		t.Fatalf("episode = %+v", qq.Episodes[1])
	}
	qiyi := recs[2]
	if qiyi.Episodes[0].Title != "第1集" || qiyi.Episodes[1].Title != "第2集" {
		t.Fatalf("untitled episodes should be numbered, got %+v", qiyi.Episodes)
	}
	if recs[0].CatalogID != "" {
		t.Fatalf("zero douban id should be empty, got %q", recs[0].CatalogID)
	}
}

func TestSearch_BadCode(t *testing.T) {
	c := New(nil, newServer(t, `{"code": 0, "msg": "err", "list": []}`).URL, 0, nil)
	if _, err := c.Search(context.Background(), "x"); !errors.Is(err, ErrBadPayload) {
		t.Fatalf("expected ErrBadPayload, got %v", err)
	}
}

func TestBestMatch(t *testing.T) {
	recs := []domain.VideoRecord{
		{Title: "凡人修仙传 预告", Type: "动漫"},
		{Title: "凡人修仙传", Type: "电影"},
		{Title: "凡人修仙传 再别天南", Type: "动漫", Source: "qq"},
		{Title: "凡人修仙传", Type: "动漫", Source: "qiyi"},
	}
	got, ok := BestMatch(recs, "凡人修仙传", domain.VideoTV)
	if !ok {
		t.Fatal("expected a match")
	}
	// Single pass: the containing title comes first and wins.
	if got.Source != "qq" {
		t.Fatalf("got %+v", got)
	}

	got, ok = BestMatch(recs, "凡人修仙传", domain.VideoMovie)
	if !ok || got.Type != "电影" {
		t.Fatalf("movie match = %+v %v", got, ok)
	}

	if _, ok := BestMatch(recs, "完美世界", domain.VideoTV); ok {
		t.Fatal("unexpected match")
	}
}

func TestFindByTitle(t *testing.T) {
	c := New(nil, newServer(t, listJSON).URL, 0, nil)
	r, ok, err := c.FindByTitle(context.Background(), "凡人修仙传", domain.VideoTV)
	if err != nil || !ok {
		t.Fatalf("FindByTitle: %v %v", ok, err)
	}
	if r.Source != "qq" || r.CatalogID != "30419644" {
		t.Fatalf("got %+v", r)
	}
	m := domain.MappingFromEpisodes(r.Episodes)
	if got, _ := m.Select("2"); got != "https://v.qq.com/x/cover/abc/e2.html" {
		t.Fatalf("episode 2 url = %q", got)
	}
}
