// diy-delta ingests live racing-simulator telemetry, segments it into laps
// and serves lap analysis over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/nickz-gmm/diy-delta/internal/analysis"
	"github.com/nickz-gmm/diy-delta/internal/api"
	"github.com/nickz-gmm/diy-delta/internal/config"
	"github.com/nickz-gmm/diy-delta/internal/ingest"
	"github.com/nickz-gmm/diy-delta/internal/ingest/f1"
	"github.com/nickz-gmm/diy-delta/internal/ingest/gt7"
	"github.com/nickz-gmm/diy-delta/internal/ingest/lmu"
	"github.com/nickz-gmm/diy-delta/internal/lapdb"
	"github.com/nickz-gmm/diy-delta/internal/lapio"
	"github.com/nickz-gmm/diy-delta/internal/lapstore"
	"github.com/nickz-gmm/diy-delta/internal/telemetry"
	"github.com/nickz-gmm/diy-delta/internal/trackmap"
	"github.com/nickz-gmm/diy-delta/internal/version"
)

var (
	listen   = flag.String("listen", ":8080", "Listen address")
	dbFile   = flag.String("db", "laps.db", "Lap archive database file (empty to disable)")
	car      = flag.String("car", "", "Car label for autostarted sources")
	track    = flag.String("track", "", "Track label for autostarted sources")
	imports  = flag.String("import", "", "Comma-separated telemetry files to import at startup")
	startF1  = flag.Bool("f1", false, "Start the F1 UDP connector at launch")
	f1Port   = flag.Int("f1-port", 20777, "F1 UDP listen port")
	f1Format = flag.Int("f1-format", 2025, "F1 packet format year (2024 or 2025)")
	startGT7 = flag.Bool("gt7", false, "Start the GT7 connector at launch")
	gt7IP    = flag.String("gt7-console", "", "GT7 console IP address")
	gt7Var   = flag.String("gt7-variant", "A", "GT7 heartbeat variant (A, B or ~)")
	gt7Port  = flag.Int("gt7-port", 33740, "GT7 UDP listen port")
	startLMU = flag.Bool("lmu", false, "Start the LMU connector at launch")
	lmuPath  = flag.String("lmu-path", "", "LMU shared-memory mapping path (default /dev/shm)")
	tuneFile = flag.String("tuning", "", "Optional JSON tuning overrides file")
)

// newSource is the production SourceFactory: it maps a start request onto the
// matching connector config.
func newSource(name string, req api.SourceRequest) (ingest.Source, error) {
	switch name {
	case "f1":
		cfg := f1.DefaultConfig()
		if req.Port != 0 {
			cfg.Port = req.Port
		}
		if req.FormatVersion != 0 {
			cfg.FormatVersion = req.FormatVersion
		}
		return f1.New(cfg), nil
	case "gt7":
		cfg := gt7.DefaultConfig()
		cfg.ConsoleIP = req.ConsoleIP
		if cfg.ConsoleIP == "" {
			return nil, &telemetry.ValidationError{Reason: "gt7 requires a console address"}
		}
		if req.Variant != "" {
			cfg.Variant = req.Variant[0]
		}
		if req.Port != 0 {
			cfg.Port = req.Port
		}
		return gt7.New(cfg), nil
	case "lmu":
		cfg := lmu.DefaultConfig()
		if req.MappingPath != "" {
			cfg.MappingPath = req.MappingPath
		}
		return lmu.New(cfg), nil
	}
	return nil, &telemetry.ValidationError{Reason: fmt.Sprintf("unknown source %q", name)}
}

func autostart(manager *ingest.Manager) {
	meta := api.SourceRequest{Car: *car, Track: *track}
	starts := []struct {
		enabled bool
		name    string
		req     api.SourceRequest
	}{
		{*startF1, "f1", api.SourceRequest{Car: meta.Car, Track: meta.Track, Port: *f1Port, FormatVersion: *f1Format}},
		{*startGT7, "gt7", api.SourceRequest{Car: meta.Car, Track: meta.Track, ConsoleIP: *gt7IP, Variant: *gt7Var, Port: *gt7Port}},
		{*startLMU, "lmu", api.SourceRequest{Car: meta.Car, Track: meta.Track, MappingPath: *lmuPath}},
	}
	for _, s := range starts {
		if !s.enabled {
			continue
		}
		src, err := newSource(s.name, s.req)
		if err != nil {
			log.Fatalf("failed to configure %s source: %v", s.name, err)
		}
		lapMeta := telemetry.LapMeta{Game: gameFor(s.name), Car: s.req.Car, Track: s.req.Track}
		if err := manager.Start(src, lapMeta); err != nil {
			log.Fatalf("failed to start %s source: %v", s.name, err)
		}
	}
}

func gameFor(name string) telemetry.Game {
	switch name {
	case "f1":
		return telemetry.GameF1
	case "gt7":
		return telemetry.GameGT7
	case "lmu":
		return telemetry.GameLMU
	}
	return telemetry.GameImported
}

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	log.Printf("diy-delta %s (%s, built %s)", version.Version, version.GitSHA, version.BuildTime)

	builderCfg := ingest.DefaultBuilderConfig()
	mapTuning := trackmap.DefaultTuning()
	analysisCfg := analysis.DefaultConfig()
	if *tuneFile != "" {
		overrides, err := config.LoadTuningConfig(*tuneFile)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
		builderCfg = overrides.ApplyBuilder(builderCfg)
		mapTuning = overrides.ApplyTrackMap(mapTuning)
		analysisCfg = overrides.ApplyAnalysis(analysisCfg)
		log.Printf("loaded tuning overrides from %s", *tuneFile)
	}

	store := lapstore.NewStore()

	var archive ingest.Archive
	if *dbFile != "" {
		db, err := lapdb.NewLapDB(*dbFile)
		if err != nil {
			log.Fatalf("Failed to open lap archive: %v", err)
		}
		defer db.Close()

		laps, err := db.LoadLaps()
		if err != nil {
			log.Fatalf("Failed to load archived laps: %v", err)
		}
		for _, lap := range laps {
			if err := store.Insert(lap); err != nil {
				log.Printf("skipping archived lap %s: %v", lap.ID, err)
			}
		}
		if len(laps) > 0 {
			log.Printf("loaded %d laps from %s", len(laps), *dbFile)
		}
		archive = db
	}

	if *imports != "" {
		for _, path := range strings.Split(*imports, ",") {
			laps, err := lapio.ImportFile(strings.TrimSpace(path))
			if err != nil {
				log.Fatalf("Failed to import %s: %v", path, err)
			}
			for _, lap := range laps {
				if err := store.Insert(lap); err != nil {
					log.Printf("skipping imported lap %s: %v", lap.ID, err)
				}
			}
			log.Printf("imported %d laps from %s", len(laps), path)
		}
	}

	manager := ingest.NewManager(store, archive, builderCfg)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	autostart(manager)

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		srv := api.NewServer(store, manager, newSource)
		srv.SetTuning(mapTuning)
		srv.SetAnalysisConfig(analysisCfg)
		mux := srv.ServeMux()
		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
	}()

	<-ctx.Done()
	manager.StopAll()
	wg.Wait()
	log.Println("shutdown complete")
}
