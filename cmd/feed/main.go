package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/conflate"
	"main/internal/grid"
	"main/internal/ingest"
	"main/internal/mdg"
	"main/internal/model"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/schema"
	"main/internal/store"
	"main/pkg/conn"
)

const (
	metricsLogInterval = 15 * time.Second
	shutdownTimeout    = 5 * time.Second

	syntheticBasePrice = 1_000_000
	syntheticBaseSize  = 100
	syntheticSpread    = 5
)

func main() {
	if err := run(); err != nil {
		log.Printf("feed: %v", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to JSON config")
	flag.Parse()
	if *configPath == "" {
		return errors.New("missing config; use -config")
	}

	cfg, err := ops.Load(*configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Profiler.Enabled {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: cfg.Profiler.ApplicationName,
			ServerAddress:   cfg.Profiler.ServerAddress,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			return err
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	registry, closeCatalog, err := resolveRegistry(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCatalog()
	if registry.SymbolCount() == 0 {
		return errors.New("no symbols configured")
	}

	metrics := obs.NewMetrics()
	subject, err := conflate.NewSubject(cfg.Interval,
		conflate.WithErrorHandler[string, model.Tick](func(err error) {
			metrics.IncSubscriberFault()
			logs.Errorf("feed: %+v", err)
		}))
	if err != nil {
		return err
	}

	hub := grid.NewHub(registry)
	subject.Subscribe(func(batch conflate.Batch[string, model.Tick]) {
		start := time.Now()
		hub.Broadcast(batch)
		metrics.ObserveBatch(len(batch), time.Since(start))
	})

	queue := bus.NewQueue(cfg.Feed.QueueSize)
	go queue.Run(ctx, func(t model.Tick) {
		metrics.ObserveTick(t.TsEvent, t.TsRecv)
		subject.Push(t.Symbol, t)
	})

	switch cfg.Feed.Mode {
	case ops.FeedModeSynthetic:
		if err := startSynthetic(ctx, cfg, registry, queue, metrics); err != nil {
			return err
		}
	case ops.FeedModeBinance:
		binance, err := startBinance(ctx, registry, queue, metrics)
		if err != nil {
			return err
		}
		defer binance.Close()
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", grid.NewServer(hub))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	server := &http.Server{Addr: cfg.Grid.ListenAddr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logs.Errorf("feed: grid gateway, err: %+v", err)
			stop()
		}
	}()
	logs.Infof("grid gateway listening on %s, flush interval %s", cfg.Grid.ListenAddr, cfg.Interval)

	go logMetrics(ctx, metrics)

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	queue.Close()
	// Deliver what is still buffered before tearing the subject down.
	subject.FlushNow()
	subject.Dispose()
	hub.CloseAll()
	return nil
}

func resolveRegistry(ctx context.Context, cfg ops.Loaded) (*schema.Registry, func(), error) {
	if !cfg.Postgres.Enabled {
		return cfg.Registry, func() {}, nil
	}

	client, err := conn.New(conn.Option{
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		Database: cfg.Postgres.Database,
		SSLMode:  cfg.Postgres.SSLMode,
	})
	if err != nil {
		return nil, nil, err
	}
	catalog := store.New(client)
	if err := catalog.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	registry, err := catalog.LoadRegistry(ctx)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return registry, func() { _ = client.Close() }, nil
}

func startSynthetic(ctx context.Context, cfg ops.Loaded, registry *schema.Registry, queue *bus.Queue, metrics *obs.Metrics) error {
	gen, err := mdg.NewGenerator(registry, syntheticBasePrice, syntheticBaseSize, syntheticSpread)
	if err != nil {
		return err
	}
	go func() {
		ticker := time.NewTicker(cfg.Feed.SyntheticInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				publish(queue, gen.Next(now), metrics)
			}
		}
	}()
	return nil
}

func startBinance(ctx context.Context, registry *schema.Registry, queue *bus.Queue, metrics *obs.Metrics) (*ingest.BinancePub, error) {
	binance := ingest.NewBinancePub(ctx)
	if err := binance.StartWebsocket(ctx); err != nil {
		return nil, err
	}
	for i := 0; i < registry.SymbolCount(); i++ {
		sym, ok := registry.SymbolAt(i)
		if !ok {
			continue
		}
		if err := binance.SubscribeBookTicker(ctx, sym.Name); err != nil {
			binance.Close()
			return nil, err
		}
	}

	normalizer := ingest.NewNormalizer(registry)
	binance.ObserveBookTicker(ctx, func(raw ingest.BinanceBookTicker) {
		tick, err := normalizer.NormalizeBookTicker(raw, time.Now())
		if err != nil {
			logs.Warnf("feed: drop tick, err: %+v", err)
			return
		}
		publish(queue, tick, metrics)
	})
	return binance, nil
}

func publish(queue *bus.Queue, t model.Tick, metrics *obs.Metrics) {
	switch err := queue.TryPublish(t); {
	case err == nil:
	case errors.Is(err, bus.ErrQueueFull):
		metrics.IncQueueDrop()
	case errors.Is(err, bus.ErrQueueClosed):
		metrics.IncQueueClosed()
	}
}

func logMetrics(ctx context.Context, metrics *obs.Metrics) {
	ticker := time.NewTicker(metricsLogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := metrics.Snapshot()
			logs.Infof("feed: ticks=%d batches=%d entries=%d drops=%d faults=%d broadcast_avg=%s",
				s.Ticks, s.Batches, s.BatchEntries, s.QueueDrops, s.SubscriberFaults, s.BroadcastLatency.Avg)
		}
	}
}
