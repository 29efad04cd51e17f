package service

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/example/danmu-platform/internal/platform/analytics"
	"github.com/example/danmu-platform/services/danmu/internal/domain"
	"github.com/example/danmu-platform/services/danmu/internal/store"
)

type stubResolver struct {
	mapping     domain.Mapping
	got         []domain.Identity
	invalidated []string
}

func (s *stubResolver) Resolve(_ context.Context, id domain.Identity) domain.Mapping {
	s.got = append(s.got, id)
	return s.mapping
}

func (s *stubResolver) Invalidate(catalogID string) {
	s.invalidated = append(s.invalidated, catalogID)
}

type stubComments struct {
	byURL     map[string][]domain.CommentEvent
	urls      []string
	forgotten []string
}

func (s *stubComments) Forget(_ context.Context, pageURLs ...string) error {
	s.forgotten = append(s.forgotten, pageURLs...)
	return nil
}

func (s *stubComments) Fetch(_ context.Context, url string) []domain.CommentEvent {
	s.urls = append(s.urls, url)
	return s.byURL[url]
}

type recordedEvent struct {
	subject string
	props   map[string]any
}

type stubPublisher struct{ events []recordedEvent }

func (p *stubPublisher) Publish(subject, _, _ string, props map[string]any) {
	p.events = append(p.events, recordedEvent{subject: subject, props: props})
}

var hi = []domain.CommentEvent{{Time: 1, Position: 0, Color: "#FFFFFF", Size: 25, Text: "hi"}}

func TestByURL(t *testing.T) {
	comments := &stubComments{byURL: map[string][]domain.CommentEvent{"https://v.qq.com/x/cover/a/b.html": hi}}
	pub := &stubPublisher{}
	svc := New(&stubResolver{}, comments, WithPublisher(pub))

	resp := svc.ByURL(context.Background(), " https://v.qq.com/x/cover/a/b.html ")
	if resp.Code != CodeOK || resp.Danum != 1 || resp.Danmu != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}
	want := []any{1.0, 0, "#FFFFFF", 25, "hi"}
	if !reflect.DeepEqual(resp.Danmuku[0], want) {
		t.Fatalf("tuple = %v", resp.Danmuku[0])
	}
	if len(pub.events) != 1 || pub.events[0].subject != analytics.SubjectDanmuServed || pub.events[0].props["route"] != "url" {
		t.Fatalf("events = %+v", pub.events)
	}
}

func TestByURL_NoComments(t *testing.T) {
	svc := New(&stubResolver{}, &stubComments{})
	resp := svc.ByURL(context.Background(), "https://example.com/x")
	if resp.Code != CodeNotFound || resp.Name != NameNoDanmu || resp.Danmuku == nil {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestByCatalogID_MovieFallback(t *testing.T) {
	res := &stubResolver{mapping: domain.Mapping{"正片": {"https://v.qq.com/x/cover/m/1.html"}}}
	comments := &stubComments{byURL: map[string][]domain.CommentEvent{"https://v.qq.com/x/cover/m/1.html": hi}}
	svc := New(res, comments)

	resp := svc.ByCatalogID(context.Background(), "35267208", domain.VideoMovie, "3")
	if !resp.Found() || resp.Name != "https://v.qq.com/x/cover/m/1.html" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if got := res.got[0]; got.CatalogID != "35267208" || got.VideoType != domain.VideoMovie {
		t.Fatalf("identity = %+v", got)
	}
}

func TestByCatalogID_MissingEpisodeOfSeries(t *testing.T) {
	res := &stubResolver{mapping: domain.Mapping{"1": {"u1"}, "2": {"u2"}}}
	comments := &stubComments{}
	svc := New(res, comments)

	resp := svc.ByCatalogID(context.Background(), "1", domain.VideoTV, "3")
	if resp.Code != CodeNotFound || resp.Name != NameNoEpisode {
		t.Fatalf("unexpected response %+v", resp)
	}
	if len(comments.urls) != 0 {
		t.Fatal("no comments should be fetched without an episode")
	}
}

func TestByCatalogID_NothingResolved(t *testing.T) {
	svc := New(&stubResolver{mapping: domain.Mapping{}}, &stubComments{})
	if resp := svc.ByCatalogID(context.Background(), "1", domain.VideoTV, "1"); resp.Name != NameNoVideo {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestByTitle_ZeroPaddedEpisode(t *testing.T) {
	res := &stubResolver{mapping: domain.Mapping{"1": {"u1"}, "2": {"u2"}}}
	comments := &stubComments{byURL: map[string][]domain.CommentEvent{"u2": hi}}
	svc := New(res, comments)

	resp := svc.ByTitle(context.Background(), TitleQuery{Title: " 凡人修仙传 ", SeasonNumber: "1", IsSeries: true, VideoType: domain.VideoTV, Episode: "02"})
	if !resp.Found() || resp.Name != "u2" {
		t.Fatalf("unexpected response %+v", resp)
	}
	got := res.got[0]
	if got.Title != "凡人修仙传" || got.CatalogID != "" || !got.IsSeries || got.SeasonNumber != "1" {
		t.Fatalf("identity = %+v", got)
	}
}

func TestStatsAndPurge(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	_, _ = st.Replace(ctx, "7", "", domain.Mapping{"1": {"u1"}, "2": {"u2"}}, time.Now())
	res := &stubResolver{}
	comments := &stubComments{}
	var broadcast []string
	svc := New(res, comments,
		WithStore(st),
		WithBroadcast(func(keys []string) error {
			broadcast = append(broadcast, keys...)
			return errors.New("nats down")
		}, func(id string) []string { return []string{"id:" + id + ":tv"} }),
	)

	if n, err := svc.Stats(ctx); err != nil || n != 1 {
		t.Fatalf("stats = %d, %v", n, err)
	}
	if err := svc.Purge(ctx, "7"); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if !reflect.DeepEqual(res.invalidated, []string{"7"}) || !reflect.DeepEqual(broadcast, []string{"id:7:tv"}) {
		t.Fatalf("invalidated=%v broadcast=%v", res.invalidated, broadcast)
	}
	if !reflect.DeepEqual(comments.forgotten, []string{"u1", "u2"}) {
		t.Fatalf("cached comments not dropped: %v", comments.forgotten)
	}
	if err := svc.Purge(ctx, "7"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStats_NoStore(t *testing.T) {
	svc := New(&stubResolver{}, &stubComments{})
	if _, err := svc.Stats(context.Background()); !errors.Is(err, ErrMissingStore) {
		t.Fatalf("expected ErrMissingStore, got %v", err)
	}
}

func TestEpisodeNumber(t *testing.T) {
	for in, want := range map[string]string{"01": "1", " 12 ": "12", "0": "0", "sp": "sp", "": ""} {
		if got := EpisodeNumber(in); got != want {
			t.Errorf("EpisodeNumber(%q) = %q, want %q", in, got, want)
		}
	}
}
