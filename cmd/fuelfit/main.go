package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/mde-formula-finder/internal/api"
	"github.com/banshee-data/mde-formula-finder/internal/config"
	"github.com/banshee-data/mde-formula-finder/internal/dataset"
	"github.com/banshee-data/mde-formula-finder/internal/db"
	"github.com/banshee-data/mde-formula-finder/internal/monitoring"
	"github.com/banshee-data/mde-formula-finder/internal/optimizer"
	"github.com/banshee-data/mde-formula-finder/internal/version"
)

var (
	configFile  = flag.String("config", "", "Path to a JSON fit configuration")
	dataFile    = flag.String("data", "", "Measurement file (CSV or TSV) to load at startup")
	dbPath      = flag.String("db", "", "SQLite run archive (empty in the config disables it)")
	listen      = flag.String("listen", "", "HTTP listen address")
	grpcListen  = flag.String("grpc-listen", "", "gRPC health listen address")
	headless    = flag.Bool("headless", false, "Run one fit in the foreground and exit")
	maxGens     = flag.Int("max-gens", 0, "Stop after this many generations (0 runs until interrupted)")
	popSize     = flag.Int("pop", 0, "Population size")
	randomSeed  = flag.Uint64("seed", 0, "Random seed for reproducible runs (0 uses entropy)")
	chartOut    = flag.String("chart-out", "", "Headless: write the fit chart to this .html file")
	chartMode   = flag.String("chart-mode", string(dataset.ChartModeCylinder), "Headless: chart grouping, cylinder or throttle")
	traceOut    = flag.String("trace-out", "", "Headless: write the fitness trace to this .png file")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// applyOverrides copies the flags that were set on the command line into
// cfg, so they win over the config file.
func applyOverrides(cfg *config.FitConfig, fs *flag.FlagSet) {
	fs.Visit(func(f *flag.Flag) {
		getter, ok := f.Value.(flag.Getter)
		if !ok {
			return
		}
		switch v := getter.Get().(type) {
		case string:
			s := v
			switch f.Name {
			case "data":
				cfg.DataFile = &s
			case "db":
				cfg.DBPath = &s
			case "listen":
				cfg.Listen = &s
			case "grpc-listen":
				cfg.GRPCListen = &s
			}
		case int:
			n := v
			switch f.Name {
			case "max-gens":
				cfg.MaxGenerations = &n
			case "pop":
				cfg.PopulationSize = &n
			}
		case uint64:
			if f.Name == "seed" {
				u := v
				cfg.RandomSeed = &u
			}
		}
	})
}

func loadConfig(path string, fs *flag.FlagSet) (*config.FitConfig, error) {
	cfg := config.EmptyFitConfig()
	if path != "" {
		var err error
		if cfg, err = config.LoadFitConfig(path); err != nil {
			return nil, err
		}
	}
	applyOverrides(cfg, fs)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func loadData(path string) (dataset.Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return dataset.Report{}, fmt.Errorf("failed to open data file: %w", err)
	}
	defer f.Close()
	rep, err := dataset.Parse(f)
	if err != nil {
		return dataset.Report{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if rep.Accepted() == 0 {
		return rep, fmt.Errorf("%s: no valid rows", path)
	}
	return rep, nil
}

// newController builds a controller seeded from cfg with the data file
// loaded when one is configured.
func newController(cfg *config.FitConfig) (*optimizer.Controller, error) {
	ctrl := optimizer.NewController(cfg.GetModel(), nil)
	if err := ctrl.SetParams(cfg.GetSeed()); err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	if path := cfg.GetDataFile(); path != "" {
		rep, err := loadData(path)
		if err != nil {
			return nil, err
		}
		if err := ctrl.SetData(rep.Points); err != nil {
			return nil, err
		}
		log.Printf("%s: %s, %d skipped, %d rejected", path, rep, rep.Skipped, rep.Rejected)
	}
	return ctrl, nil
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := loadConfig(*configFile, flag.CommandLine)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctrl, err := newController(cfg)
	if err != nil {
		log.Fatalf("Failed to initialise optimizer: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var archive *db.DB
	if path := cfg.GetDBPath(); path != "" {
		archive, err = db.NewDB(path)
		if err != nil {
			log.Fatalf("Failed to open run archive: %v", err)
		}
		defer archive.Close()
		ctrl.SetRecorder(db.NewRunStore(archive))
	}

	if *headless {
		err := runHeadless(ctx, ctrl, cfg.Request(), os.Stdout, headlessOutputs{
			ChartPath: *chartOut,
			ChartMode: *chartMode,
			TracePath: *traceOut,
		})
		if err != nil {
			log.Fatal(err)
		}
		return
	}

	if err := serve(ctx, cfg, ctrl, archive); err != nil {
		log.Fatal(err)
	}
	log.Printf("Graceful shutdown complete")
}

// serve runs the HTTP API and, when configured, the gRPC health service
// until ctx is cancelled or a listener fails.
func serve(ctx context.Context, cfg *config.FitConfig, ctrl *optimizer.Controller, archive *db.DB) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	apiServer := api.NewServer(ctx, ctrl, cfg.Request())
	mux := apiServer.ServeMux()
	if archive != nil {
		apiServer.SetRunArchive(db.NewRunStore(archive))
		if err := archive.AttachAdminRoutes(mux); err != nil {
			return fmt.Errorf("failed to attach admin routes: %w", err)
		}
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 2)
	fail := func(err error) {
		errCh <- err
		cancel()
	}

	if addr := cfg.GetGRPCListen(); addr != "" {
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", addr, err)
		}
		hs := api.NewHealthServer(ctrl)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := api.ServeGRPC(ctx, lis, hs); err != nil {
				fail(fmt.Errorf("gRPC server error: %w", err))
			}
		}()
	}

	server := &http.Server{
		Addr:    cfg.GetListen(),
		Handler: api.LoggingMiddleware(mux),
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("Starting HTTP server on %s (%s)", server.Addr, version.String())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fail(fmt.Errorf("HTTP server error: %w", err))
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		monitoring.Logf("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			monitoring.Logf("HTTP server shutdown error: %v", err)
		}
	}()

	wg.Wait()
	// The run context is gone; wait for the archive to see the finish.
	<-ctrl.Done()

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}
