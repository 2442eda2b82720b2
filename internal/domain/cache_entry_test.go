package domain

import "testing"

func TestLocalizedTextGet(t *testing.T) {
	names := LocalizedText{"en": "Plastic bottle", "ja": "ペットボトル", "de": ""}

	if got, ok := names.Get("en"); !ok || got != "Plastic bottle" {
		t.Errorf("Get(en) = %q, %v", got, ok)
	}
	if _, ok := names.Get("fr"); ok {
		t.Error("missing language should report not populated")
	}
	// An empty string counts as missing so a partial hit still triggers the
	// translation backfill.
	if _, ok := names.Get("de"); ok {
		t.Error("empty value should report not populated")
	}

	var nilText LocalizedText
	if _, ok := nilText.Get("en"); ok {
		t.Error("nil map should report not populated")
	}
}

func TestLocalizedTextScan(t *testing.T) {
	var names LocalizedText
	if err := names.Scan(`{"en":"Glass jar"}`); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, ok := names.Get("en"); !ok || got != "Glass jar" {
		t.Errorf("after scan: %q, %v", got, ok)
	}

	var empty LocalizedText
	if err := empty.Scan(nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if empty == nil {
		t.Error("scanning NULL should yield an empty map")
	}
}

func TestCacheEntryHasLanguage(t *testing.T) {
	entry := &CacheEntry{
		ItemNames:    LocalizedText{"en": "Plastic bottle", "ja": "ペットボトル"},
		Instructions: LocalizedText{"en": "Empty and recycle."},
	}
	if !entry.HasLanguage("en") {
		t.Error("expected en to be servable")
	}
	// A name without instructions is not servable yet.
	if entry.HasLanguage("ja") {
		t.Error("ja needs an instructions backfill first")
	}
	if entry.HasLanguage("de") {
		t.Error("de needs a backfill first")
	}
}
