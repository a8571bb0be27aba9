package utils

import "testing"

func TestT_Fallback(t *testing.T) {
	if got := T("fr", "health.ok"); got != "ok" {
		t.Fatalf("fallback to en failed: %s", got)
	}
	if got := T("zh", "no.such.key"); got != "no.such.key" {
		t.Fatalf("unknown key should echo, got %s", got)
	}
}

func TestT_LocalesCoverSameKeys(t *testing.T) {
	for key := range translations["en"] {
		if _, ok := translations["zh"][key]; !ok {
			t.Fatalf("zh missing %s", key)
		}
	}
}
