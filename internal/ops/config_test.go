package ops

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleConfig = `{
  "conflation": {"intervalMs": 250},
  "registry": {
    "venues": [{"name": "BINANCE"}],
    "symbols": [
      {"name": "BTCUSDT", "venue": "BINANCE", "scale": {"priceScale": 2, "quantityScale": 8}},
      {"name": "ETHUSDT", "venue": "BINANCE", "scale": {"priceScale": 2, "quantityScale": 8}}
    ]
  },
  "feed": {"mode": "synthetic", "queueSize": 128, "syntheticIntervalMs": 5},
  "grid": {"listenAddr": ":9090"}
}`

func TestLoadResolvesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Interval != 250*time.Millisecond {
		t.Fatalf("interval = %v", loaded.Interval)
	}
	if loaded.Registry.SymbolCount() != 2 {
		t.Fatalf("symbol count = %d", loaded.Registry.SymbolCount())
	}
	if loaded.Feed.Mode != FeedModeSynthetic || loaded.Feed.QueueSize != 128 {
		t.Fatalf("feed = %+v", loaded.Feed)
	}
	if loaded.Feed.SyntheticInterval != 5*time.Millisecond {
		t.Fatalf("synthetic interval = %v", loaded.Feed.SyntheticInterval)
	}
	if loaded.Grid.ListenAddr != ":9090" {
		t.Fatalf("grid addr = %q", loaded.Grid.ListenAddr)
	}
}

func TestResolveDefaults(t *testing.T) {
	loaded, err := Resolve(FileConfig{Conflation: ConflationConfig{IntervalMs: 100}})
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Feed.Mode != FeedModeBinance {
		t.Fatalf("default feed mode = %q", loaded.Feed.Mode)
	}
	if loaded.Feed.QueueSize != 4096 {
		t.Fatalf("default queue size = %d", loaded.Feed.QueueSize)
	}
	if loaded.Grid.ListenAddr != ":8080" {
		t.Fatalf("default grid addr = %q", loaded.Grid.ListenAddr)
	}
}

func TestResolveRejectsBadConfig(t *testing.T) {
	if _, err := Resolve(FileConfig{}); err == nil {
		t.Fatal("zero interval expected error")
	}
	if _, err := Resolve(FileConfig{
		Conflation: ConflationConfig{IntervalMs: -5},
	}); err == nil {
		t.Fatal("negative interval expected error")
	}
	if _, err := Resolve(FileConfig{
		Conflation: ConflationConfig{IntervalMs: 100},
		Feed:       FeedConfig{Mode: "replay"},
	}); err == nil {
		t.Fatal("unknown feed mode expected error")
	}
	if _, err := Resolve(FileConfig{
		Conflation: ConflationConfig{IntervalMs: 100},
		Registry: RegistryConfig{
			Symbols: []SymbolConfig{{Name: "BTCUSDT", Venue: "NOWHERE"}},
		},
	}); err == nil {
		t.Fatal("unknown venue expected error")
	}
}
