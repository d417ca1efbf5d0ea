package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"main/internal/schema"
)

// Feed modes.
const (
	FeedModeBinance   = "binance"
	FeedModeSynthetic = "synthetic"
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Conflation ConflationConfig `json:"conflation"`
	Registry   RegistryConfig   `json:"registry"`
	Feed       FeedConfig       `json:"feed"`
	Grid       GridConfig       `json:"grid"`
	Postgres   PostgresConfig   `json:"postgres"`
	Profiler   ProfilerConfig   `json:"profiler"`
}

// ConflationConfig sets the flush window.
type ConflationConfig struct {
	IntervalMs int64 `json:"intervalMs"`
}

// RegistryConfig defines venue and symbol mappings.
type RegistryConfig struct {
	Venues  []VenueConfig  `json:"venues"`
	Symbols []SymbolConfig `json:"symbols"`
}

// VenueConfig describes a venue entry.
type VenueConfig struct {
	Name string `json:"name"`
}

// SymbolConfig describes a symbol entry.
type SymbolConfig struct {
	Name  string           `json:"name"`
	Venue string           `json:"venue"`
	Scale schema.ScaleSpec `json:"scale"`
}

// FeedConfig selects and tunes the tick source.
type FeedConfig struct {
	Mode                string `json:"mode"`
	QueueSize           int    `json:"queueSize"`
	SyntheticIntervalMs int64  `json:"syntheticIntervalMs"`
}

// GridConfig configures the grid gateway endpoint.
type GridConfig struct {
	ListenAddr string `json:"listenAddr"`
}

// PostgresConfig configures the optional instrument catalog store.
type PostgresConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"sslMode"`
}

// ProfilerConfig configures optional continuous profiling.
type ProfilerConfig struct {
	Enabled         bool   `json:"enabled"`
	ServerAddress   string `json:"serverAddress"`
	ApplicationName string `json:"applicationName"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Interval time.Duration
	Registry *schema.Registry
	Feed     FeedSpec
	Grid     GridConfig
	Postgres PostgresConfig
	Profiler ProfilerConfig
}

// FeedSpec is the resolved feed definition.
type FeedSpec struct {
	Mode              string
	QueueSize         int
	SyntheticInterval time.Duration
}

// Load reads a JSON config file and resolves it.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, err
	}
	return Resolve(cfg)
}

// Resolve validates a file config and applies defaults.
func Resolve(cfg FileConfig) (Loaded, error) {
	if cfg.Conflation.IntervalMs <= 0 {
		return Loaded{}, fmt.Errorf("conflation intervalMs must be > 0")
	}
	registry, err := buildRegistry(cfg.Registry)
	if err != nil {
		return Loaded{}, err
	}
	feed, err := resolveFeed(cfg.Feed)
	if err != nil {
		return Loaded{}, err
	}
	grid := cfg.Grid
	if grid.ListenAddr == "" {
		grid.ListenAddr = ":8080"
	}
	profiler := cfg.Profiler
	if profiler.Enabled && profiler.ApplicationName == "" {
		profiler.ApplicationName = "conflation-feed"
	}
	return Loaded{
		Interval: time.Duration(cfg.Conflation.IntervalMs) * time.Millisecond,
		Registry: registry,
		Feed:     feed,
		Grid:     grid,
		Postgres: cfg.Postgres,
		Profiler: profiler,
	}, nil
}

func buildRegistry(cfg RegistryConfig) (*schema.Registry, error) {
	reg := schema.NewRegistry()
	for _, venue := range cfg.Venues {
		if _, err := reg.AddVenue(venue.Name); err != nil {
			return nil, err
		}
	}
	for _, sym := range cfg.Symbols {
		venueID, ok := reg.VenueIDByName(sym.Venue)
		if !ok {
			return nil, fmt.Errorf("venue not found: %s", sym.Venue)
		}
		if _, err := reg.AddSymbol(sym.Name, venueID, sym.Scale); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func resolveFeed(cfg FeedConfig) (FeedSpec, error) {
	mode := cfg.Mode
	if mode == "" {
		mode = FeedModeBinance
	}
	if mode != FeedModeBinance && mode != FeedModeSynthetic {
		return FeedSpec{}, fmt.Errorf("unknown feed mode: %s", mode)
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 4096
	}
	syntheticInterval := time.Duration(cfg.SyntheticIntervalMs) * time.Millisecond
	if syntheticInterval <= 0 {
		syntheticInterval = 10 * time.Millisecond
	}
	return FeedSpec{
		Mode:              mode,
		QueueSize:         queueSize,
		SyntheticInterval: syntheticInterval,
	}, nil
}
