package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/example/danmu-platform/internal/platform/auth"
	"github.com/example/danmu-platform/internal/platform/httpserver"
	"github.com/example/danmu-platform/services/danmu/internal/domain"
	"github.com/example/danmu-platform/services/danmu/internal/resolver"
	"github.com/example/danmu-platform/services/danmu/internal/service"
)

type stubEngine struct {
	byURL     int
	rid       string
	lastVT    domain.VideoType
	lastTitle service.TitleQuery
	purged    []string
	trace     resolver.Result
	purgeErr  error
}

func (s *stubEngine) ByURL(ctx context.Context, url string) service.Response {
	s.byURL++
	s.rid = httpserver.RequestIDFromContext(ctx)
	return service.Response{Name: url, Danum: 1, Danmu: 1, Danmuku: [][]any{{1.0, 0, "#FFFFFF", 25, "hi"}, {2.0, 0, "#FFFFFF", 25, "yo"}}}
}

func (s *stubEngine) ByCatalogID(_ context.Context, id string, vt domain.VideoType, episode string) service.Response {
	s.lastVT = vt
	if id == "404" {
		return service.Response{Code: service.CodeNotFound, Name: service.NameNoVideo, Danmuku: [][]any{}}
	}
	return service.Response{Name: "https://v.qq.com/x/cover/" + id + "/" + episode + ".html", Danmuku: [][]any{}}
}

func (s *stubEngine) ByTitle(_ context.Context, q service.TitleQuery) service.Response {
	s.lastTitle = q
	return service.Response{Name: "title:" + q.Title, Danmuku: [][]any{}}
}

func (s *stubEngine) Episode(_ context.Context, id domain.Identity, episode string) (string, domain.Mapping, bool) {
	if episode == "9" {
		return "", nil, false
	}
	return "https://v.qq.com/x/cover/" + id.CatalogID + "/" + episode + ".html", nil, true
}

func (s *stubEngine) Stats(context.Context) (int, error) { return 3, nil }

func (s *stubEngine) Purge(_ context.Context, id string) error {
	s.purged = append(s.purged, id)
	return s.purgeErr
}

func (s *stubEngine) Trace(context.Context, domain.Identity) resolver.Result { return s.trace }

type opener struct {
	engine *stubEngine
	opened int
	closed int
	config string
	level  string
}

func (o *opener) open(_ context.Context, configPath, logLevel string) (Engine, func() error, error) {
	o.opened++
	o.config, o.level = configPath, logLevel
	return o.engine, func() error { o.closed++; return nil }, nil
}

func execute(t *testing.T, o *opener, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand(o.open)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestComments_PrintsEnvelope(t *testing.T) {
	o := &opener{engine: &stubEngine{}}
	out, err := execute(t, o, "comments", "--url", "https://v.qq.com/x/cover/a/b.html", "--limit", "1", "-c", "danmu.toml")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	var resp service.Response
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if resp.Name != "https://v.qq.com/x/cover/a/b.html" || len(resp.Danmuku) != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if o.opened != 1 || o.closed != 1 {
		t.Fatalf("opened=%d closed=%d", o.opened, o.closed)
	}
	if o.config != "danmu.toml" || o.level != "warn" {
		t.Fatalf("config=%q level=%q", o.config, o.level)
	}
	if !strings.HasPrefix(o.engine.rid, "cli-") {
		t.Fatalf("expected a cli request id, got %q", o.engine.rid)
	}
}

func TestComments_RequiresURL(t *testing.T) {
	o := &opener{engine: &stubEngine{}}
	if _, err := execute(t, o, "comments"); err == nil {
		t.Fatal("expected missing flag error")
	}
	if o.opened != 0 {
		t.Fatal("engine must not open on flag errors")
	}
}

func TestResolve_PrintsStrategy(t *testing.T) {
	o := &opener{engine: &stubEngine{trace: resolver.Result{
		Mapping:  domain.Mapping{"2": {"u2"}, "1": {"u1"}},
		Strategy: resolver.StrategyVendorHints,
	}}}
	out, err := execute(t, o, "resolve", "--douban-id", "7")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	var got resolveOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatal(err)
	}
	if got.Strategy != "vendor_hints" || len(got.Episodes) != 2 {
		t.Fatalf("unexpected output %+v", got)
	}
	if strings.Join(got.Indexes, ",") != "1,2" {
		t.Fatalf("indexes = %v", got.Indexes)
	}
}

func TestResolve_NothingFound(t *testing.T) {
	o := &opener{engine: &stubEngine{}}
	if _, err := execute(t, o, "resolve", "--title", "nope"); err == nil {
		t.Fatal("expected error for empty mapping")
	}
	if o.closed != 1 {
		t.Fatalf("engine must be released on failure, closed=%d", o.closed)
	}
}

func TestResolve_IdentityFlags(t *testing.T) {
	cases := [][]string{
		{"resolve"},
		{"resolve", "--douban-id", "1", "--title", "x"},
		{"resolve", "--douban-id", "1", "--type", "anime"},
	}
	for _, args := range cases {
		o := &opener{engine: &stubEngine{}}
		if _, err := execute(t, o, args...); err == nil {
			t.Fatalf("%v: expected error", args)
		}
	}
}

func TestEpisode_CatalogAndTitle(t *testing.T) {
	e := &stubEngine{}
	o := &opener{engine: e}
	out, err := execute(t, o, "episode", "--douban-id", "c1", "--type", "movie", "-e", "3")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out, "https://v.qq.com/x/cover/c1/3.html") || e.lastVT != domain.VideoMovie {
		t.Fatalf("out=%q vt=%q", out, e.lastVT)
	}

	if _, err := execute(t, o, "episode", "--title", "芙莉莲", "--season", "2", "--series=false"); err != nil {
		t.Fatalf("execute: %v", err)
	}
	q := e.lastTitle
	if q.Title != "芙莉莲" || q.SeasonNumber != "2" || q.IsSeries || q.Episode != "1" {
		t.Fatalf("unexpected query %+v", q)
	}
}

func TestEpisode_NotFoundReturnsError(t *testing.T) {
	o := &opener{engine: &stubEngine{}}
	out, err := execute(t, o, "episode", "--douban-id", "404")
	if err == nil || err.Error() != "no video found" {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(out, `"code": 1`) {
		t.Fatalf("envelope still printed, got %q", out)
	}
}

func TestEpisode_URLOnly(t *testing.T) {
	o := &opener{engine: &stubEngine{}}
	out, err := execute(t, o, "episode", "--douban-id", "c1", "-e", "4", "--url-only")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "https://v.qq.com/x/cover/c1/4.html" {
		t.Fatalf("out = %q", out)
	}
	if _, err := execute(t, o, "episode", "--douban-id", "c1", "-e", "9", "--url-only"); err == nil {
		t.Fatal("expected missing episode error")
	}
}

func TestStatsAndPurge(t *testing.T) {
	e := &stubEngine{}
	o := &opener{engine: e}
	out, err := execute(t, o, "stats")
	if err != nil || strings.TrimSpace(out) != "Videos: 3" {
		t.Fatalf("stats out=%q err=%v", out, err)
	}
	if _, err := execute(t, o, "purge", "--douban-id", " 7 "); err != nil {
		t.Fatal(err)
	}
	if len(e.purged) != 1 || e.purged[0] != "7" {
		t.Fatalf("purged = %v", e.purged)
	}

	e.purgeErr = errors.New("boom")
	if _, err := execute(t, o, "purge", "--douban-id", "8"); err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("err = %v", err)
	}
}

func TestToken_SignsAdmin(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-test-secret")
	o := &opener{engine: &stubEngine{}}
	out, err := execute(t, o, "token", "--subject", "ops", "--ttl", "5m")
	if err != nil {
		t.Fatal(err)
	}
	claims, err := auth.Verifier{Secret: []byte("cli-test-secret")}.Parse(strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "ops" || claims.Role != auth.RoleAdmin {
		t.Fatalf("claims = %+v", claims)
	}
	if claims.ExpiresAt == nil || time.Until(claims.ExpiresAt.Time) > 5*time.Minute {
		t.Fatalf("unexpected expiry %v", claims.ExpiresAt)
	}
	if o.opened != 0 {
		t.Fatal("token must not open the engine")
	}
}

func TestToken_RequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	if _, err := execute(t, &opener{engine: &stubEngine{}}, "token"); err == nil {
		t.Fatal("expected error without JWT_SECRET")
	}
}
