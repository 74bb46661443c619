package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Server.Port != 37780 {
		t.Errorf("port = %d, want 37780", cfg.Server.Port)
	}
	if cfg.Matcher.SimilarityThreshold != 0.1 || cfg.Matcher.Mode != "jaccard" {
		t.Errorf("matcher defaults = %+v", cfg.Matcher)
	}
	if cfg.Update.FirstAlpha != 1.0 || cfg.Update.AnomalyDeltaThreshold != 50 || cfg.Update.HistoryCap != 20 {
		t.Errorf("update defaults = %+v", cfg.Update)
	}
	if cfg.Update.DecayGraceDays != 30 || cfg.Update.DecayLambda != 0.1 {
		t.Errorf("decay defaults = %+v", cfg.Update)
	}
	if cfg.Evolution.SimilarityThreshold != 0.6 || cfg.Evolution.NoveltyThreshold != 0.6 || cfg.Evolution.ClusterEps != 0.3 {
		t.Errorf("evolution defaults = %+v", cfg.Evolution)
	}
	if cfg.Affinity.BottomUpAlpha != 0.5 || cfg.Affinity.TopDownBeta != 0.7 || cfg.Affinity.TopK != 10 {
		t.Errorf("affinity defaults = %+v", cfg.Affinity)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9090
matcher:
  mode: embedding
update:
  history_cap: 5
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Matcher.Mode != "embedding" {
		t.Errorf("mode = %q, want embedding", cfg.Matcher.Mode)
	}
	if cfg.Update.HistoryCap != 5 {
		t.Errorf("history cap = %d, want 5", cfg.Update.HistoryCap)
	}
	// Untouched fields keep their defaults.
	if cfg.Update.DecayGraceDays != 30 {
		t.Errorf("decay grace = %d, want default 30", cfg.Update.DecayGraceDays)
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 37780 {
		t.Errorf("port = %d, want default", cfg.Server.Port)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "test-key")
	t.Setenv("TWIN3_DB", "/tmp/twin3-test.db")
	t.Setenv("TWIN3_TAXONOMY", "/tmp/tax.json")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Oracle.APIKey != "test-key" {
		t.Errorf("api key = %q", cfg.Oracle.APIKey)
	}
	if cfg.Database.Path != "/tmp/twin3-test.db" {
		t.Errorf("db path = %q", cfg.Database.Path)
	}
	if cfg.Affinity.TaxonomyPath != "/tmp/tax.json" {
		t.Errorf("taxonomy path = %q", cfg.Affinity.TaxonomyPath)
	}
}

func TestListenAddr(t *testing.T) {
	cfg := Default()
	if got := cfg.ListenAddr(); got != "127.0.0.1:37780" {
		t.Errorf("ListenAddr = %q", got)
	}
}
