package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/gestpipe/console/internal/adminlock"
	"github.com/gestpipe/console/internal/archive"
	"github.com/gestpipe/console/internal/auth"
	"github.com/gestpipe/console/internal/config"
	"github.com/gestpipe/console/internal/dataset"
	"github.com/gestpipe/console/internal/events"
	"github.com/gestpipe/console/internal/execrunner"
	"github.com/gestpipe/console/internal/httpserver"
	"github.com/gestpipe/console/internal/pipeline"
	"github.com/gestpipe/console/internal/service"
	"github.com/gestpipe/console/internal/store"
	"github.com/gestpipe/console/internal/training"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db open: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.Ping(); err != nil {
		log.Fatalf("db ping: %v", err)
	}

	st := store.NewPGStore(db)
	if err := st.EnsureSchema(context.Background()); err != nil {
		log.Fatalf("schema init: %v", err)
	}
	locks := adminlock.New()
	workdir := dataset.Workdir{Root: cfg.WorkdirRoot}
	runner := execrunner.New()

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPub, err := events.NewKafkaPublisher(events.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
		})
		if err != nil {
			log.Fatalf("kafka publisher init: %v", err)
		}
		publisher = kafkaPub
	}
	defer publisher.Close()

	var archiver pipeline.Archiver
	if cfg.ArtifactBucket != "" {
		uploader, err := archive.NewUploader(context.Background(), cfg.ArtifactBucket, cfg.ArtifactPrefix)
		if err != nil {
			log.Fatalf("artifact uploader init: %v", err)
		}
		archiver = uploader
	}

	svc := service.New(st, workdir, locks, publisher, cfg.ReferenceCSV)
	orch := pipeline.New(st, runner, workdir, locks, publisher, archiver, pipeline.Config{
		ScriptsDir:   cfg.ScriptsDir,
		PipelineDir:  cfg.PipelineDir,
		PythonBin:    cfg.PythonBin,
		StepTimeout:  cfg.StepTimeout,
		TrainTimeout: cfg.TrainTimeout,
	})
	mgr := training.New(st, runner, publisher, training.Config{
		PipelineDir: cfg.PipelineDir,
		PythonBin:   cfg.PythonBin,
	})

	server := httpserver.New(auth.Config{
		Secret:          cfg.JWTSecret,
		AllowDebugToken: cfg.AllowDebugToken,
	}, svc, orch, mgr, st)

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: server.Router(),
	}

	go func() {
		log.Printf("gesture console listening on %s", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	waitForShutdown(httpServer)
}

func waitForShutdown(srv *http.Server) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
