package knowledge

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStaticProviderQuery(t *testing.T) {
	provider := NewStaticProvider([]Snippet{
		{Title: "ram", Content: "buy ram", Keywords: []string{"RAM"}},
		{Title: "swap", Content: "alcor", Tags: []string{"swap"}},
		{Title: "always", Content: "generic"},
	}, 2)

	got := provider.Query("Please buy some ram for me")
	if len(got) != 2 || got[0].Title != "ram" || got[1].Title != "always" {
		t.Fatalf("unexpected snippets: %+v", got)
	}

	got = provider.Query("swap 1 WAX")
	if len(got) != 2 || got[0].Title != "swap" {
		t.Fatalf("unexpected snippets for swap: %+v", got)
	}

	if got := provider.Query("   "); got != nil {
		t.Fatalf("expected no snippets for blank prompt, got %+v", got)
	}

	var nilProvider *StaticProvider
	if got := nilProvider.Query("ram"); got != nil {
		t.Fatalf("expected nil provider to return nil")
	}
}

func TestLoadStaticProviderFormats(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "kb.json")
	if err := os.WriteFile(jsonPath, []byte(`[{"title":"json","content":"c","keywords":["transfer"]}]`), 0o600); err != nil {
		t.Fatalf("write json: %v", err)
	}
	yamlPath := filepath.Join(dir, "kb.yaml")
	yamlContent := "- title: yaml\n  content: c\n  keywords:\n    - transfer\n"
	if err := os.WriteFile(yamlPath, []byte(yamlContent), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	for path, title := range map[string]string{jsonPath: "json", yamlPath: "yaml"} {
		provider, err := LoadStaticProvider(path, 0)
		if err != nil {
			t.Fatalf("load %s: %v", path, err)
		}
		got := provider.Query("transfer tokens")
		if len(got) != 1 || got[0].Title != title {
			t.Fatalf("unexpected snippets from %s: %+v", path, got)
		}
	}

	if _, err := LoadStaticProvider("", 1); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestDefaultProviderCoversRAM(t *testing.T) {
	got := NewDefaultProvider(3).Query("sell 1024 bytes of ram")
	if len(got) == 0 || got[0].Title != "RAM 市场" {
		t.Fatalf("unexpected default snippets: %+v", got)
	}
}

func TestStaticProviderRanksByHits(t *testing.T) {
	provider := NewStaticProvider([]Snippet{
		{Title: "general", Content: "always"},
		{Title: "one", Content: "c", Keywords: []string{"stake"}},
		{Title: "two", Content: "c", Keywords: []string{"stake", "cpu"}, Tags: []string{" "}},
	}, 5)

	got := provider.Query("stake 1 WAX for CPU")
	if len(got) != 3 {
		t.Fatalf("expected 3 snippets, got %+v", got)
	}
	if got[0].Title != "two" || got[1].Title != "one" || got[2].Title != "general" {
		t.Fatalf("unexpected order: %+v", got)
	}
}

func TestLoadStaticProviderRejectsIncompleteEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb.json")
	if err := os.WriteFile(path, []byte(`[{"title":"","content":"c"}]`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadStaticProvider(path, 1); err == nil {
		t.Fatalf("expected error for entry without title")
	}
}
