package db

import (
	"context"
	"testing"
)

func TestOpen_EmptyDSN(t *testing.T) {
	if _, err := Open(context.Background(), "  ", PoolOptions{}); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}

func TestIsPostgresDSN(t *testing.T) {
	cases := []struct {
		dsn  string
		want bool
	}{
		{dsn: "postgres://u:p@localhost:5432/danmu", want: true},
		{dsn: "postgresql://localhost/danmu", want: true},
		{dsn: "  POSTGRES://host/db ", want: true},
		{dsn: "file:/var/lib/danmu/danmu.db", want: false},
		{dsn: "/var/lib/danmu/danmu.db", want: false},
		{dsn: "", want: false},
	}
	for _, tc := range cases {
		if got := IsPostgresDSN(tc.dsn); got != tc.want {
			t.Errorf("IsPostgresDSN(%q) = %v, want %v", tc.dsn, got, tc.want)
		}
	}
}
