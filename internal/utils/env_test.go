package utils

import "testing"

func TestSafeEnv(t *testing.T) {
	const key = "_DELIBLAB_TEST_SAFEENV"
	t.Setenv(key, "")
	if got := SafeEnv(key, "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
	t.Setenv(key, " value ")
	if got := SafeEnv(key, "fallback"); got != "value" {
		t.Fatalf("expected 'value', got %q", got)
	}
}

func TestEnvBool(t *testing.T) {
	const key = "_DELIBLAB_TEST_ENVBOOL"
	cases := map[string]bool{"1": true, "true": true, "FALSE": false, "maybe": true, "": true}
	for v, want := range cases {
		t.Setenv(key, v)
		if got := EnvBool(key, true); got != want {
			t.Fatalf("%q: want %v, got %v", v, want, got)
		}
	}
}
