package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"sflcompanion.app/internal/catalog"
	"sflcompanion.app/internal/config"
	"sflcompanion.app/internal/persistence/respcache"
	"sflcompanion.app/internal/planner"
	"sflcompanion.app/internal/transport/ws"
	"sflcompanion.app/internal/upstream"
	"sflcompanion.app/internal/web"
)

func main() {
	var (
		addr       = flag.String("addr", "", "http listen address (overrides config)")
		configPath = flag.String("config", "./configs/server.yaml", "server config path")
		catalogDir = flag.String("catalog", "", "catalogue directory (default: embedded data)")
		dataDir    = flag.String("data", "", "runtime data directory for the response cache")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cfg, found, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if !found {
		logger.Printf("config %s not found; using defaults", *configPath)
	}
	cfg.ApplyEnv()
	if v := strings.TrimSpace(*addr); v != "" {
		cfg.Server.Addr = v
	}
	if v := strings.TrimSpace(*catalogDir); v != "" {
		cfg.Catalog.Dir = v
	}
	if v := strings.TrimSpace(*dataDir); v != "" {
		cfg.ResponseCache.Path = filepath.Join(v, "respcache.sqlite")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("%v", err)
	}

	cat, err := loadCatalog(cfg.Catalog.Dir)
	if err != nil {
		logger.Fatalf("load catalogue: %v", err)
	}
	logger.Printf("catalogue: islands=%v expansions.json=%.12s", cat.IslandNames(), cat.Digests["expansions.json"])

	store, err := respcache.Open(cfg.ResponseCache.Store())
	if err != nil {
		logger.Fatalf("open response cache: %v", err)
	}
	defer store.Close()

	upLogger := log.New(os.Stdout, "[upstream] ", log.LstdFlags|log.Lmicroseconds)
	client := upstream.NewClient(upstream.Options{
		FarmBaseURL:  cfg.Upstream.FarmBaseURL,
		LandBaseURL:  cfg.Upstream.LandBaseURL,
		PriceURL:     cfg.Upstream.PriceURL,
		UserAgent:    cfg.Upstream.UserAgent,
		RateLimitRPS: cfg.Upstream.RateLimitRPS,
		RateBurst:    cfg.Upstream.RateLimitBurst,
		HTTPClient:   &http.Client{Timeout: cfg.Upstream.Timeout()},
		Cache:        store,
		Logger:       upLogger,
	})
	provider := upstream.NewProvider(client, upstream.ProviderOptions{
		SnapshotTTL: cfg.Upstream.SnapshotTTL(),
		PriceTTL:    cfg.Upstream.PriceTTL(),
		Timeout:     cfg.Upstream.Timeout(),
		Logger:      upLogger,
	})
	plan := planner.New(cat, log.New(os.Stdout, "[planner] ", log.LstdFlags|log.Lmicroseconds))

	var imagesDir string
	if cfg.Server.StaticDir != "" {
		imagesDir = filepath.Join(cfg.Server.StaticDir, "images")
	}
	site := web.New(web.Options{
		Snapshots: provider,
		Planner:   plan,
		Logger:    logger,
		Countdown: ws.NewCountdown(provider, logger),
		UpstreamStats: func() web.UpstreamStats {
			ps, cs := provider.Stats(), client.Stats()
			return web.UpstreamStats{
				CacheHits:     ps.Hits,
				CacheMisses:   ps.Misses,
				CacheEntries:  ps.Entries,
				Requests:      cs.Requests,
				BodyCacheHits: cs.BodyHits,
				Failures:      cs.Failures,
			}
		},
		ImagesDir: imagesDir,
	})

	ctx, cancel := signalContext()
	defer cancel()

	go reportCacheLoop(ctx, store, cfg.ResponseCache.Store().TTL, logger)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           newMux(site.Handler(), cfg.Server.EnablePprof, logger),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout(),
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", cfg.Server.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func loadCatalog(dir string) (*catalog.Catalog, error) {
	if dir == "" {
		return catalog.LoadEmbedded()
	}
	return catalog.Load(dir)
}

func newMux(site http.Handler, enablePprof bool, logger *log.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/", site)
	if !enablePprof {
		logger.Printf("pprof endpoints disabled (SFL_ENABLE_PPROF_HTTP=false)")
		return mux
	}
	loopbackOnly := func(h http.HandlerFunc) http.HandlerFunc {
		return func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			h(rw, r)
		}
	}
	mux.HandleFunc("/debug/pprof/", loopbackOnly(pprof.Index))
	mux.HandleFunc("/debug/pprof/cmdline", loopbackOnly(pprof.Cmdline))
	mux.HandleFunc("/debug/pprof/profile", loopbackOnly(pprof.Profile))
	mux.HandleFunc("/debug/pprof/symbol", loopbackOnly(pprof.Symbol))
	mux.HandleFunc("/debug/pprof/trace", loopbackOnly(pprof.Trace))
	return mux
}

// reportCacheLoop logs response cache occupancy once per TTL.
func reportCacheLoop(ctx context.Context, store respcache.Store, ttl time.Duration, logger *log.Logger) {
	if ttl <= 0 {
		ttl = respcache.DefaultTTL
	}
	t := time.NewTicker(ttl)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		st, err := store.Stats(ctx)
		if err != nil {
			logger.Printf("respcache stats: %v", err)
			continue
		}
		logger.Printf("respcache: %s entries=%d expired=%d stored=%dB raw=%dB", st.Backend, st.Entries, st.Expired, st.StoredSize, st.RawSize)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
