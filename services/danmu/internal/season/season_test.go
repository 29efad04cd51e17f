package season

import "testing"

func TestNumeral(t *testing.T) {
	cases := map[int]string{
		0:     "零",
		1:     "一",
		2:     "二",
		9:     "九",
		10:    "十",
		11:    "十一",
		20:    "二十",
		21:    "二十一",
		100:   "一百",
		101:   "一百零一",
		110:   "一百一十",
		1001:  "一千零一",
		10000: "一万",
		10001: "一万零一",
		-3:    "负三",
	}
	for n, want := range cases {
		if got := Numeral(n); got != want {
			t.Errorf("Numeral(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestRequested(t *testing.T) {
	if got := Requested(""); got != "一" {
		t.Fatalf("empty season should default to 一, got %q", got)
	}
	if got := Requested("2"); got != "二" {
		t.Fatalf("expected 二, got %q", got)
	}
	if got := Requested("３"); got != "三" {
		t.Fatalf("expected full-width digit to parse, got %q", got)
	}
	if got := Requested("特别篇"); got != "特别篇" {
		t.Fatalf("expected raw token, got %q", got)
	}
}

func TestToken(t *testing.T) {
	cases := []struct {
		candidate, name, want string
	}{
		{candidate: "凡人修仙传 第二季", name: "凡人修仙传", want: "二"},
		{candidate: "凡人修仙传 第2季", name: "凡人修仙传", want: "二"},
		{candidate: "凡人修仙传 第２季", name: "凡人修仙传", want: "二"},
		{candidate: "Spy x Family Season 2", name: "Spy x Family", want: "二"},
		{candidate: "spy x family SEASON3", name: "Spy x Family", want: "三"},
		{candidate: "Seasons of Love", name: "Seasons of Love", want: "一"},
		{candidate: "间谍过家家2", name: "间谍过家家", want: "二"},
		{candidate: "鬼灭之刃III", name: "鬼灭之刃", want: "三"},
		{candidate: "鬼灭之刃XI", name: "鬼灭之刃", want: "一"},
		{candidate: "凡人修仙传", name: "凡人修仙传", want: "一"},
		{candidate: "a.b2", name: "a.b", want: "二"},
		{candidate: "axb2", name: "a.b", want: "一"},
	}
	for _, tc := range cases {
		if got := Token(tc.candidate, tc.name); got != tc.want {
			t.Errorf("Token(%q, %q) = %q, want %q", tc.candidate, tc.name, got, tc.want)
		}
	}
}

func TestAccept(t *testing.T) {
	if !Accept("凡人修仙传 第二季", "凡人修仙传", Requested("2")) {
		t.Fatal("expected season 2 to be accepted")
	}
	if Accept("凡人修仙传 第二季", "凡人修仙传", Requested("")) {
		t.Fatal("season 2 must not satisfy a first-season request")
	}
	if !Accept("凡人修仙传", "凡人修仙传", Requested("")) {
		t.Fatal("unmarked title is the first season")
	}
	if Accept("重制版 凡人修仙传", "凡人修仙传", Requested("")) {
		t.Fatal("candidate must start with the requested base title")
	}
	if !Accept("进击的巨人 最终季", "进击的巨人 最终季", "进击的巨人 最终季") {
		t.Fatal("a request naming the title itself is accepted")
	}
	if !Accept("进击的巨人 第三季", "进击的巨人 第三季", Requested("3")) {
		t.Fatal("only the first word of the name is required as prefix")
	}
}
