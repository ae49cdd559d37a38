package main

import (
	"testing"
	"time"
)

func TestHTTPLimitsFromEnv(t *testing.T) {
	t.Setenv("REQUEST_BODY_LIMIT_BYTES", "4096")
	t.Setenv("REQUEST_TIMEOUT", "3s")
	got := httpLimitsFromEnv()
	if got.BodyBytes != 4096 || got.Timeout != 3*time.Second {
		t.Fatalf("limits = %+v", got)
	}
}

func TestHTTPLimitsDefaults(t *testing.T) {
	t.Setenv("REQUEST_BODY_LIMIT_BYTES", "")
	t.Setenv("REQUEST_TIMEOUT", "")
	got := httpLimitsFromEnv()
	if got.BodyBytes != 1<<20 || got.Timeout != 15*time.Second {
		t.Fatalf("limits = %+v", got)
	}
}
