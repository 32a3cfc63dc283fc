package core

import (
	"context"
	"time"

	"github.com/auto-dns/traefik-cname-sync/internal/config"
	"github.com/auto-dns/traefik-cname-sync/internal/domain"
	"github.com/auto-dns/traefik-cname-sync/internal/metrics"
	"github.com/auto-dns/traefik-cname-sync/internal/state"
	"github.com/rs/zerolog"
)

const tickLockKey = "tick"

type syncRequest struct {
	reply chan error
}

// firing is a deletion timer that went off. It is only acted upon if token
// still matches the pending entry of the container.
type firing struct {
	containerId string
	token       uint64
}

type releaseRequest struct {
	reply chan []string
}

// SyncEngine owns the managed-record and pending-deletion tables. Ticks,
// on-demand syncs, timer firings and hold releases are all handled by the
// goroutine running Run, so table mutations never interleave.
type SyncEngine struct {
	logger    zerolog.Logger
	cfg       *config.AppConfig
	lister    containerLister
	registrar dnsRegistrar
	locker    locker
	state     *state.MemoryState

	requests chan syncRequest
	fired    chan firing
	nudges   chan struct{}
	releases chan releaseRequest
	done     chan struct{}

	now       func() time.Time
	afterFunc func(d time.Duration, f func()) (stop func() bool)
	nextToken uint64
}

func NewSyncEngine(logger zerolog.Logger, cfg *config.AppConfig, lister containerLister, registrar dnsRegistrar, locker locker) *SyncEngine {
	return &SyncEngine{
		logger:    logger,
		cfg:       cfg,
		lister:    lister,
		registrar: registrar,
		locker:    locker,
		state:     state.NewMemoryState(),
		requests:  make(chan syncRequest),
		fired:     make(chan firing),
		nudges:    make(chan struct{}, 1),
		releases:  make(chan releaseRequest),
		done:      make(chan struct{}),
		now:       time.Now,
		afterFunc: func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		},
	}
}

// Run ticks once immediately and then every poll interval until ctx is done.
// Pending deletions are dropped on shutdown.
func (se *SyncEngine) Run(ctx context.Context) error {
	defer close(se.done)
	defer se.state.CancelAllPending()

	se.logger.Info().
		Dur("poll_interval", se.cfg.PollIntervalDuration()).
		Dur("delete_delay", se.cfg.DeleteDelayDuration()).
		Str("delete_failure_policy", se.cfg.DeleteFailurePolicy).
		Msg("Starting SyncEngine")

	if err := se.tick(ctx); err != nil {
		se.logger.Error().Err(err).Msg("Initial tick failed")
	}

	ticker := time.NewTicker(se.cfg.PollIntervalDuration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			se.logger.Info().Msg("SyncEngine shutting down")
			return ctx.Err()
		case <-ticker.C:
			if err := se.tick(ctx); err != nil {
				se.logger.Error().Err(err).Msg("Scheduled tick failed")
			}
		case <-se.nudges:
			se.logger.Debug().Msg("Tick requested by container event")
			if err := se.tick(ctx); err != nil {
				se.logger.Error().Err(err).Msg("Event-triggered tick failed")
			}
		case req := <-se.requests:
			req.reply <- se.tick(ctx)
		case f := <-se.fired:
			se.fire(ctx, f)
		case req := <-se.releases:
			req.reply <- se.releaseHolds()
		}
	}
}

// Sync runs exactly one tick and returns its tick-level error. If a tick is
// already in flight the request waits for it to finish and then runs its own.
func (se *SyncEngine) Sync(ctx context.Context) error {
	req := syncRequest{reply: make(chan error, 1)}
	select {
	case se.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-se.done:
		return ErrEngineStopped
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Nudge asks for an early tick. Nudges arriving while one is queued are dropped.
func (se *SyncEngine) Nudge() {
	select {
	case se.nudges <- struct{}{}:
	default:
	}
}

// RetryFailedDeletions releases every container held after a failed deletion
// so the next tick arms a new deletion for it. It returns the released ids.
func (se *SyncEngine) RetryFailedDeletions(ctx context.Context) ([]string, error) {
	req := releaseRequest{reply: make(chan []string, 1)}
	select {
	case se.releases <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-se.done:
		return nil, ErrEngineStopped
	}
	select {
	case ids := <-req.reply:
		return ids, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Records returns a snapshot of the managed-record table.
func (se *SyncEngine) Records() []domain.ManagedRecord {
	return se.state.Records()
}

// PendingDeletions returns a snapshot of the pending-deletion table.
func (se *SyncEngine) PendingDeletions() []domain.PendingDeletion {
	return se.state.Pending()
}

// HeldContainers returns the containers whose failed deletion awaits a manual retry.
func (se *SyncEngine) HeldContainers() []string {
	return se.state.Held()
}

// ContainerView is one container as the runtime reports it, with the
// hostnames its labels declare and how the engine currently tracks it.
type ContainerView struct {
	domain.Container
	Parsed          ParsedLabels `json:"parsed"`
	Managed         bool         `json:"managed"`
	PendingDeletion bool         `json:"pending_deletion"`
}

// Containers re-lists the runtime and parses every container's labels. It does
// not touch the engine tables.
func (se *SyncEngine) Containers(ctx context.Context) ([]ContainerView, error) {
	containers, err := se.lister.ListContainers(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]ContainerView, 0, len(containers))
	for _, c := range containers {
		id := domain.ShortID(c.Id)
		views = append(views, ContainerView{
			Container:       c,
			Parsed:          ParseLabels(se.cfg.LabelPrefix, c.Labels),
			Managed:         se.state.HasOwner(id),
			PendingDeletion: se.state.HasPending(id),
		})
	}
	return views, nil
}

// deliver hands a timer firing to the loop. After Run has exited the firing
// is dropped.
func (se *SyncEngine) deliver(f firing) {
	select {
	case se.fired <- f:
	case <-se.done:
	}
}

func (se *SyncEngine) releaseHolds() []string {
	ids := se.state.ReleaseAll()
	if len(ids) > 0 {
		se.logger.Info().Strs("container_ids", ids).Msg("Released held deletions for retry")
	}
	return ids
}

func (se *SyncEngine) updateGauges() {
	metrics.ManagedRecords.Set(float64(se.state.RecordCount()))
	metrics.PendingDeletions.Set(float64(len(se.state.PendingIDs())))
}
