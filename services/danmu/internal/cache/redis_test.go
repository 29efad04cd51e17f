package cache

import (
	"context"
	"testing"
	"time"
)

func TestNewRedisCache_InvalidURL(t *testing.T) {
	if _, err := NewRedisCache("not-a-url", time.Minute); err == nil {
		t.Fatal("expected error for invalid url")
	}
}

func TestNewRedisCache_ParsesURL(t *testing.T) {
	c, err := NewRedisCache("redis://:secret@localhost:6379/2", 5*time.Minute)
	if err != nil {
		t.Fatalf("NewRedisCache: %v", err)
	}
	defer c.Close()
	if c.TTL != 5*time.Minute {
		t.Fatalf("ttl = %v", c.TTL)
	}
	opt := c.Client.Options()
	if opt.Addr != "localhost:6379" || opt.DB != 2 || opt.Password != "secret" {
		t.Fatalf("options = %+v", opt)
	}
}

func TestDelete_NoKeysIsNoop(t *testing.T) {
	c, err := NewRedisCache("redis://localhost:1/0", time.Minute)
	if err != nil {
		t.Fatalf("NewRedisCache: %v", err)
	}
	defer c.Close()
	if err := c.Delete(context.Background()); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}
