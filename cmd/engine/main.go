package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rawblock/ring-engine/internal/alerts"
	"github.com/rawblock/ring-engine/internal/api"
	"github.com/rawblock/ring-engine/internal/cache"
	"github.com/rawblock/ring-engine/internal/config"
	"github.com/rawblock/ring-engine/internal/db"
	"github.com/rawblock/ring-engine/internal/events"
	"github.com/rawblock/ring-engine/internal/ingest"
	"github.com/rawblock/ring-engine/internal/pipeline"
	"github.com/rawblock/ring-engine/internal/shadow"
	"github.com/rawblock/ring-engine/pkg/models"
)

const usage = `usage:
  engine                       start the HTTP API
  engine analyze [-o out.json] <transactions.csv | ->
                               analyze one CSV and print the report JSON`

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "analyze":
			if err := runAnalyze(os.Args[2:], os.Stdin, os.Stdout); err != nil {
				fmt.Fprintln(os.Stderr, "analyze:", err)
				os.Exit(1)
			}
			return
		case "serve":
		case "-h", "--help", "help":
			fmt.Println(usage)
			return
		default:
			fmt.Fprintln(os.Stderr, usage)
			os.Exit(2)
		}
	}

	if err := serve(); err != nil {
		log.Fatalf("FATAL: %v", err)
	}
}

// runAnalyze is the one-shot CLI mode: no database, cache or events.
func runAnalyze(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	outPath := fs.String("o", "", "write the report to this file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("expected exactly one input file (use - for stdin)")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	in := stdin
	if path := fs.Arg(0); path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	txs, err := ingest.ReadCSV(in)
	if err != nil {
		return err
	}

	analyzer, err := pipeline.NewAnalyzer(cfg.Detection)
	if err != nil {
		return err
	}
	res, err := analyzer.Analyze(context.Background(), txs, models.SourceCLI)
	if err != nil {
		return err
	}

	out := stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(res.Run.Report)
}

func serve() error {
	log.Println("Starting RawBlock Ring Detection Engine...")

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ─── Optional infrastructure ────────────────────────────────────────
	// Every integration is skipped when unconfigured and degraded to a
	// warning when unreachable. Analysis never depends on it.
	// ────────────────────────────────────────────────────────────────────

	var pipelineOpts []pipeline.Option
	deps := api.Deps{BaseContext: ctx}

	var store *db.PostgresStore
	if cfg.DatabaseURL != "" {
		store, err = db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Printf("Warning: Failed to connect to PostgreSQL, continuing without persisting reports. Error: %v", err)
			store = nil
		} else {
			defer store.Close()
			if err := store.InitSchema(ctx); err != nil {
				log.Printf("Warning: DB schema init failed: %v", err)
			}
			pipelineOpts = append(pipelineOpts, pipeline.WithStore(store))
			deps.Store = store
		}
	}

	if cfg.RedisAddr != "" {
		reportCache, err := cache.NewReportCache(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.ReportCacheTTL)
		if err != nil {
			log.Printf("Warning: Redis unavailable, report cache disabled: %v", err)
		} else {
			defer reportCache.Close()
			pipelineOpts = append(pipelineOpts, pipeline.WithCache(reportCache))
			deps.CacheEnabled = true
		}
	}

	if len(cfg.KafkaBrokers) > 0 {
		publisher := events.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopicRings, cfg.KafkaTopicRuns)
		defer publisher.Close()
		pipelineOpts = append(pipelineOpts, pipeline.WithPublisher(publisher))
		deps.EventsEnabled = true
		log.Printf("[Events] Publishing to %v (rings: %s, runs: %s)", cfg.KafkaBrokers, cfg.KafkaTopicRings, cfg.KafkaTopicRuns)
	}

	// Live stream + alerts
	wsHub := api.NewHub(api.OriginChecker(cfg.AllowedOrigins))
	go wsHub.Run()
	deps.Hub = wsHub

	alertMgr := alerts.NewManager(api.BroadcastRingAlert(wsHub))
	defer alertMgr.Flush()
	alertMgr.SetMaxPerRun(cfg.AlertMaxPerRun)
	if cfg.AlertWebhookURL != "" {
		if err := alertMgr.RegisterWebhook("default", cfg.AlertWebhookURL, cfg.AlertMinSeverity, nil); err != nil {
			return err
		}
	}
	deps.Alerts = alertMgr

	pipelineOpts = append(pipelineOpts,
		pipeline.WithAlerts(alertMgr),
		pipeline.WithCompletionHook(api.BroadcastRunCompleted(wsHub)),
	)
	analyzer, err := pipeline.NewAnalyzer(cfg.Detection, pipelineOpts...)
	if err != nil {
		return err
	}
	deps.Analyzer = analyzer

	if store != nil {
		deps.Shadow = shadow.NewRunner(store, cfg.Detection)
	} else {
		deps.Shadow = shadow.NewRunner(nil, cfg.Detection)
	}

	r := api.SetupRouter(cfg, deps)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Engine running on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}

	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
