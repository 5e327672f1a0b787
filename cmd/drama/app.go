package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/nats-io/nats.go"
	"gopkg.in/yaml.v3"

	"github.com/dramaproject/drama/api"
	"github.com/dramaproject/drama/bus"
	"github.com/dramaproject/drama/component"
	"github.com/dramaproject/drama/component/catalog"
	"github.com/dramaproject/drama/config"
	"github.com/dramaproject/drama/logger"
	"github.com/dramaproject/drama/metrics"
	"github.com/dramaproject/drama/model"
	"github.com/dramaproject/drama/queue"
	"github.com/dramaproject/drama/state"
	"github.com/dramaproject/drama/storage"
	"github.com/dramaproject/drama/worker"
)

// app bundles the runtime with its connections for teardown.
type app struct {
	cfg *config.Config
	rt  *worker.Runtime

	nc    *nats.Conn
	store state.Store
}

// bootstrap constructs the runtime once at process start: configuration,
// logging, NATS (bus + queue), MongoDB, storage backend and the component
// registry.
func bootstrap(ctx context.Context) (*app, error) {
	log := logger.New(logger.Options{FilePath: "drama.log"})

	cfg, err := config.Load(log)
	if err != nil {
		return nil, err
	}
	if cfg.APIDebug {
		log = logger.New(logger.Options{Debug: true, FilePath: "drama.log"})
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", cfg.NATSURL, err)
	}

	streamBus, err := bus.NewNATS(nc)
	if err != nil {
		nc.Close()
		return nil, err
	}

	jobQueue, err := queue.NewNATS(ctx, nc, log)
	if err != nil {
		nc.Close()
		return nil, err
	}

	store, err := state.ConnectMongo(ctx, cfg.MongoDNS)
	if err != nil {
		nc.Close()
		return nil, err
	}

	registry := component.NewRegistry()
	catalog.Register(registry)

	rt := &worker.Runtime{
		Store:    store,
		Bus:      streamBus,
		Queue:    jobQueue,
		Registry: registry,
		Storage: storage.Select(storage.Options{
			DataDir:        cfg.DataDir,
			MinIOEndpoint:  cfg.MinIOEndpoint(),
			MinIOAccessKey: cfg.MinIOAccessKey,
			MinIOSecretKey: cfg.MinIOSecretKey,
			MinIOUseSSL:    cfg.MinIOUseSSL,
			HDFSAddress:    cfg.HDFSAddress(),
			HDFSUser:       cfg.HDFSUsername,
		}, log),
		Logger:     log,
		Metrics:    metrics.New(),
		SecretsKey: cfg.SecretsKey,
		DataDir:    cfg.DataDir,
		ActorOpts:  cfg.DefaultActorOpts,
	}

	return &app{cfg: cfg, rt: rt, nc: nc, store: store}, nil
}

func (a *app) close(ctx context.Context) {
	if err := a.store.Close(ctx); err != nil {
		a.rt.Logger.Error("Could not close state store", "error", err)
	}
	a.nc.Close()
}

func runWorker(ctx context.Context, processes int) error {
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	return worker.NewPool(a.rt, processes).Run(ctx)
}

func runServer(ctx context.Context) error {
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	return api.NewServer(a.rt, a.cfg).Run(ctx)
}

// runSubmit loads a workflow document from disk and schedules it.
func runSubmit(ctx context.Context, path string) error {
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read workflow file: %w", err)
	}

	var workflow model.Workflow
	if err := yaml.Unmarshal(raw, &workflow); err != nil {
		return fmt.Errorf("decode workflow file %s: %w", path, err)
	}

	record, err := worker.NewScheduler(a.rt).Run(ctx, workflow)
	if err != nil {
		return err
	}

	encoded, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}
