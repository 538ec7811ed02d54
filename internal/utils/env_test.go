package utils

import "testing"

func TestGetEnv(t *testing.T) {
	if got := GetEnv("ARCHMAP_TEST_UNSET", "fallback", nil); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
	t.Setenv("ARCHMAP_TEST_SET", "value")
	if got := GetEnv("ARCHMAP_TEST_SET", "fallback", nil); got != "value" {
		t.Fatalf("expected value, got %q", got)
	}
}

func TestGetEnvAsInt(t *testing.T) {
	if got := GetEnvAsInt("ARCHMAP_TEST_UNSET", 8080, nil); got != 8080 {
		t.Fatalf("expected default 8080, got %d", got)
	}
	t.Setenv("ARCHMAP_TEST_PORT", "9090")
	if got := GetEnvAsInt("ARCHMAP_TEST_PORT", 8080, nil); got != 9090 {
		t.Fatalf("expected 9090, got %d", got)
	}
	t.Setenv("ARCHMAP_TEST_PORT", "not-a-number")
	if got := GetEnvAsInt("ARCHMAP_TEST_PORT", 8080, nil); got != 8080 {
		t.Fatalf("unparsable value must fall back, got %d", got)
	}
}
