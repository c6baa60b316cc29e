package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"mediaflow/internal/api"
	"mediaflow/internal/ledger"
	"mediaflow/internal/pipeline"
	"mediaflow/internal/proxy"
	"mediaflow/internal/scheduler"
	"mediaflow/internal/uploader"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found")
	}

	var (
		pipelineName = flag.String("pipeline", "", "pipeline to run: audio, video or html")
		split        = flag.Int("split", 15, "split length in minutes for audio/video chunks")
		workers      = flag.Int("workers", 8, "number of parallel upload workers per round")
		maxRetries   = flag.Int("max-retries", 3, "transient failures before a proxy is evicted")
		logLevel     = flag.String("log-level", "info", "minimum log level (debug, info, warn, error)")
		headless     = flag.Bool("headless", true, "run browser-driven work functions headless")
		dataDir      = flag.String("data", "./data", "base directory for pipeline data")
		proxyFile    = flag.String("proxies", "./data/proxies.json", "proxy store file")
		proxyMaxAge  = flag.Duration("proxy-max-age", 30*time.Minute, "max age of usable proxy records")
		endpoint     = flag.String("endpoint", "", "transcription upload endpoint (or MEDIAFLOW_ENDPOINT)")
		timeout      = flag.Duration("upload-timeout", uploader.DefaultTimeout, "per-attempt upload timeout")
		dbPath       = flag.String("db", "mediaflow.db", "SQLite attempt ledger path (empty disables)")
		addr         = flag.String("addr", "", "status HTTP bind address (empty disables)")
		schedule     = flag.String("schedule", "", "cron expression to re-run the pipeline (empty runs once)")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %q\n", *logLevel)
		os.Exit(2)
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	switch *pipelineName {
	case "audio", "video", "html":
	default:
		fmt.Fprintln(os.Stderr, "usage: mediaflow -pipeline audio|video|html [flags]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	uploadEndpoint := *endpoint
	if uploadEndpoint == "" {
		uploadEndpoint = os.Getenv("MEDIAFLOW_ENDPOINT")
	}
	if uploadEndpoint == "" && *pipelineName != "html" {
		log.Fatal().Msg("upload endpoint required: set -endpoint or MEDIAFLOW_ENDPOINT")
	}

	if *schedule != "" {
		if err := scheduler.Validate(*schedule); err != nil {
			log.Fatal().Err(err).Str("cron", *schedule).Msg("invalid schedule expression")
		}
	}

	var repo ledger.Repository
	if *dbPath != "" {
		dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=journal_mode(WAL)", *dbPath)
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			log.Fatal().Err(err).Msg("open ledger db")
		}
		defer db.Close()
		db.SetMaxOpenConns(1) // SQLite single writer
		if err := ledger.EnsureSchema(db); err != nil {
			log.Fatal().Err(err).Msg("ensure ledger schema")
		}
		repo = ledger.NewSQLiteRepo(db)
	}

	pool := proxy.NewPool(*proxyFile, nil)
	client := uploader.NewClient(uploadEndpoint, *timeout)

	pl := pipeline.New(pipeline.Config{
		DataDir:      *dataDir,
		SplitMinutes: *split,
		Workers:      *workers,
		MaxRetries:   *maxRetries,
		Headless:     *headless,
		ProxyFile:    *proxyFile,
		ProxyMaxAge:  *proxyMaxAge,
		Work:         client.Upload,
		Ledger:       repo,
	}, pool)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		log.Info().Msg("shutting down")
		cancel()
	}()

	var srv *http.Server
	if *addr != "" {
		if repo == nil {
			log.Fatal().Msg("status server requires the ledger: set -db")
		}
		srv = &http.Server{Addr: *addr, Handler: api.NewServer(repo, pool)}
		go func() {
			log.Info().Str("addr", *addr).Msg("status server starting")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatal().Err(err).Msg("status server")
			}
		}()
	}

	if *schedule != "" {
		svc, err := scheduler.NewService(*schedule, func(ctx context.Context) error {
			return pl.Run(ctx, *pipelineName)
		})
		if err != nil {
			log.Fatal().Err(err).Msg("build schedule service")
		}
		if err := svc.Start(ctx); err != nil && err != context.Canceled {
			log.Fatal().Err(err).Msg("schedule service")
		}
	} else {
		log.Info().Str("pipeline", *pipelineName).Msg("starting pipeline")
		if err := pl.Run(ctx, *pipelineName); err != nil && err != context.Canceled {
			log.Fatal().Err(err).Str("pipeline", *pipelineName).Msg("pipeline failed")
		}
	}

	if srv != nil {
		ctxTimeout, cancelTimeout := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelTimeout()
		_ = srv.Shutdown(ctxTimeout)
	}
}
