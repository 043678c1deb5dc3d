package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type CLI struct {
	Config string `help:"Path to the JSON configuration file." default:"conf/config.json" type:"path"`

	Serve   ServeCmd   `cmd:"" default:"1" help:"Run the wallpaper search proxy."`
	Search  SearchCmd  `cmd:"" help:"Run one aggregated search and print the page as JSON."`
	AddUser AddUserCmd `cmd:"" name:"adduser" help:"Create or update an API user (password from WALLPAPER_PASSWORD or stdin)."`
}

// Env is what every command runs with.
type Env struct {
	cfg *Config
	log *log.Logger
}

func main() {
	_ = godotenv.Load()

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("wallpaperproxy"),
		kong.Description("Stock wallpaper search proxy: multi-provider search, favorites and settings."),
		kong.UsageOnError(),
	)
	cfg, err := LoadConfig(cli.Config)
	ctx.FatalIfErrorf(err)
	logger := NewLogger(cfg.Log, os.Stderr)

	ctx.FatalIfErrorf(ctx.Run(&Env{cfg: cfg, log: logger}))
}

// buildSearchers registers every provider with a key, in configured order.
func buildSearchers(cfg *Config, up *Upstream, logger *log.Logger) []ImageSearcher {
	var apis []ImageSearcher
	for _, name := range cfg.Search.Providers {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "pixabay":
			if cfg.Pixabay.Key != "" {
				apis = append(apis, NewPixabayApi(cfg, up, logger))
			}
		case "pexels":
			if cfg.Pexels.Key != "" {
				apis = append(apis, NewPexelsApi(cfg, up, logger))
			}
		case "unsplash":
			if cfg.Unsplash.AccessKey != "" {
				apis = append(apis, NewUnsplashApi(cfg, up, logger))
			}
		}
	}
	return apis
}

func newAggregator(cfg *Config, apis []ImageSearcher, logger *log.Logger, metrics *Metrics) *Aggregator {
	return NewAggregator(apis, AggregatorOptions{
		MultiSource: cfg.Search.MultiSource,
		Timeout:     time.Duration(cfg.Search.TimeoutSec) * time.Second,
		PageSize:    PageSize,
	}, logger, metrics)
}

type ServeCmd struct{}

func (c *ServeCmd) Run(env *Env) error {
	cfg, logger := env.cfg, env.log
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := NewMetrics(reg)

	store, err := NewStore(cfg.Database, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	reqCache := NewReqCache(ctx, store, logger, metrics)
	defer reqCache.Close()

	apis := buildSearchers(cfg, NewUpstream(reqCache, cfg.Retry, logger), logger)
	if len(apis) == 0 {
		return errors.New("no image provider configured: set PIXABAY_KEY, PEXELS_KEY or UNSPLASH_ACCESS_KEY")
	}
	storage, err := NewStorage(cfg, store)
	if err != nil {
		return err
	}

	srv := NewServer(cfg, ServerDeps{
		Search:   newAggregator(cfg, apis, logger, metrics),
		Sessions: NewFeedSessions(time.Duration(cfg.Sessions.TTLSec)*time.Second, cfg.Features.Pagination),
		Storage:  storage,
		Users:    store,
		Gatherer: reg,
		Metrics:  metrics,
	}, logger)

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting Server", "addr", cfg.Listen, "providers", len(apis), "storage", cfg.Storage.Backend)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

type SearchCmd struct {
	Term      []string `arg:"" optional:"" help:"Search words; empty browses by category."`
	Category  string   `help:"Category filter."`
	ImageType string   `name:"type" default:"all" enum:"all,photo,illustration,vector" help:"Image type."`
	Colors    []string `help:"Color filters (repeat or comma separate)."`
	Order     string   `default:"popular" enum:"popular,latest" help:"Sort order."`
	Page      int      `default:"1" help:"Page number, starting at 1."`
	Safe      bool     `default:"true" negatable:"" help:"Ask providers to filter explicit images."`
	NoCache   bool     `help:"Bypass the upstream response cache."`
}

func (c *SearchCmd) Run(env *Env) error {
	cfg, logger := env.cfg, env.log
	ctx := context.Background()

	var reqCache *ReqCache
	if !c.NoCache {
		store, err := NewStore(cfg.Database, logger)
		if err != nil {
			return err
		}
		defer store.Close()
		reqCache = NewReqCache(ctx, store, logger, nil)
		defer reqCache.Close()
	}

	q := NewQuery(strings.Join(c.Term, " "))
	q.Category = c.Category
	q.ImageType = c.ImageType
	q.Colors = normalizeColors(c.Colors)
	q.Order = c.Order
	q.Page = c.Page
	q.SafeSearch = c.Safe

	apis := buildSearchers(cfg, NewUpstream(reqCache, cfg.Retry, logger), logger)
	page := newAggregator(cfg, apis, logger, nil).Search(ctx, q)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(page); err != nil {
		return err
	}
	if !page.OK {
		return errors.New(page.ErrorReason)
	}
	return nil
}

type AddUserCmd struct {
	User  string `arg:"" help:"User name."`
	Level int    `default:"1" help:"Access level."`
}

func (c *AddUserCmd) Run(env *Env) error {
	pass := os.Getenv("WALLPAPER_PASSWORD")
	if pass == "" {
		fmt.Fprint(os.Stderr, "Password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("reading password: %w", err)
		}
		pass = strings.TrimRight(line, "\r\n")
	}
	if pass == "" {
		return errors.New("empty password")
	}
	store, err := NewStore(env.cfg.Database, env.log)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.AddUser(c.User, pass, c.Level); err != nil {
		return err
	}
	env.log.Info("user saved", "user", c.User, "level", c.Level)
	return nil
}
