package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/provio/fieldsync/internal/adapter"
	"github.com/provio/fieldsync/internal/config"
	"github.com/provio/fieldsync/internal/entity"
	"github.com/provio/fieldsync/internal/logger"
	"github.com/provio/fieldsync/internal/service"
	"github.com/provio/fieldsync/internal/store"
	"github.com/provio/fieldsync/internal/workers"
)

var (
	buildVersion string
	buildDate    string
	buildCommit  string
)

func main() {
	printBuildInfo()

	cfg, err := config.GetClientConfig()
	if err != nil {
		logger.New("fieldsync-client").Fatal().Err(err).Msg("error getting configs")
	}
	log := logger.NewFile("fieldsync-client", cfg.App.LogPath)

	registry, err := entity.DefaultRegistry()
	if err != nil {
		log.Fatal().Err(err).Msg("build entity registry")
	}

	transport, err := adapter.NewHTTPTransport(cfg.Adapter, log)
	if err != nil {
		log.Fatal().Err(err).Msg("create transport")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.WithContext(ctx)

	storages, err := store.NewClientStorages(ctx, cfg.Storage, log)
	if err != nil {
		log.Fatal().Err(err).Msg("create local storage")
	}

	services := service.NewServices(registry, storages, transport, cfg.Sync, log)

	// Rows and uploads stranded mid-flight by a previous crash go back to
	// PENDING before the first cycle runs.
	if err = services.Coordinator.Recover(ctx); err != nil {
		log.Fatal().Err(err).Msg("startup recovery failed")
	}

	job := workers.NewSyncJob(ctx, services.Coordinator, cfg.Sync.Interval, log)
	workers.NewWorkers(job).Run()
	defer job.Stop()

	if summary, syncErr := services.Coordinator.SyncAll(ctx); syncErr != nil {
		log.Warn().Err(syncErr).Msg("initial sync failed")
	} else if summary.Failed() {
		log.Warn().Int("failed_descriptors", len(summary.Errors)).Msg("initial sync finished with errors")
	}

	<-ctx.Done()
	log.Info().Msg("shutting down")
}

func printBuildInfo() {
	if buildVersion == "" {
		buildVersion = "N/A"
	}
	if buildDate == "" {
		buildDate = "N/A"
	}
	if buildCommit == "" {
		buildCommit = "N/A"
	}

	fmt.Printf("Build version: %s\n", buildVersion)
	fmt.Printf("Build date: %s\n", buildDate)
	fmt.Printf("Build commit: %s\n", buildCommit)
}
