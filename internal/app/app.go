package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/auto-dns/traefik-cname-sync/internal/config"
	"github.com/auto-dns/traefik-cname-sync/internal/core"
	"github.com/auto-dns/traefik-cname-sync/internal/docker"
	"github.com/auto-dns/traefik-cname-sync/internal/lock"
	"github.com/auto-dns/traefik-cname-sync/internal/logger"
	"github.com/auto-dns/traefik-cname-sync/internal/registry"
	"github.com/auto-dns/traefik-cname-sync/internal/server"
	dockerCli "github.com/docker/docker/client"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	clientv3 "go.etcd.io/etcd/client/v3"
	"golang.org/x/sync/errgroup"
)

const resubscribeDelay = 5 * time.Second

type App struct {
	cfg          *config.Config
	dockerClient *dockerCli.Client
	locker       lock.Locker
	generator    *docker.DockerGenerator
	engine       *core.SyncEngine
	server       *server.Server
	logger       zerolog.Logger
}

// New creates a new App by wiring up all dependencies.
func New(cfg *config.Config, log zerolog.Logger) (*App, error) {
	// Docker CLI
	dockerClient, err := dockerCli.NewClientWithOpts(dockerCli.FromEnv, dockerCli.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	lister := docker.NewDockerLister(dockerClient, logger.WithComponent(log, "docker"))
	gen := docker.NewDockerGenerator(dockerClient, logger.WithComponent(log, "events"))

	locker, err := newLocker(cfg, log)
	if err != nil {
		_ = dockerClient.Close()
		return nil, err
	}

	reg := registry.NewNamecomRegistry(&cfg.Registrar, logger.WithComponent(log, "registrar"))
	engine := core.NewSyncEngine(logger.WithComponent(log, "engine"), &cfg.App, lister, reg, locker)
	srv := server.NewServer(logger.WithComponent(log, "server"), cfg, engine, lister)

	return &App{
		cfg:          cfg,
		dockerClient: dockerClient,
		locker:       locker,
		generator:    gen,
		engine:       engine,
		server:       srv,
		logger:       log,
	}, nil
}

func newLocker(cfg *config.Config, log zerolog.Logger) (lock.Locker, error) {
	if !cfg.Etcd.Enabled {
		return lock.NewLocalLock(), nil
	}

	// etcd CLI
	etcdClient, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Etcd.Endpoints,
		DialTimeout: 2 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}
	owner, err := os.Hostname()
	if err != nil || owner == "" {
		owner = "traefik-cname-sync"
	}
	return lock.NewEtcdLock(etcdClient, &cfg.Etcd, owner, logger.WithComponent(log, "lock")), nil
}

// Run starts the sync engine, the HTTP server and, if enabled, the docker
// event watcher, and returns when all of them have stopped.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info().Msg("Application starting")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("sync engine: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return a.server.Run(ctx)
	})
	if a.cfg.App.WatchEvents {
		g.Go(func() error {
			a.watchEvents(ctx)
			return nil
		})
	}
	return g.Wait()
}

// watchEvents turns container events into early ticks, resubscribing when the
// event stream breaks.
func (a *App) watchEvents(ctx context.Context) {
	for {
		events, err := a.generator.Subscribe(ctx)
		if err != nil {
			a.logger.Error().Err(err).Msg("Failed to subscribe to Docker events")
		} else {
			for range events {
				a.engine.Nudge()
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(resubscribeDelay):
			a.logger.Info().Msg("Resubscribing to Docker events")
		}
	}
}

func (a *App) Close() error {
	var errs error
	if a.dockerClient != nil {
		if err := a.dockerClient.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("close docker client: %w", err))
		}
	}
	if a.locker != nil {
		if err := a.locker.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("close lock: %w", err))
		}
	}
	return errs
}
