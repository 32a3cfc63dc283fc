package core

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/auto-dns/traefik-cname-sync/internal/config"
	"github.com/auto-dns/traefik-cname-sync/internal/domain"
	"github.com/auto-dns/traefik-cname-sync/internal/metrics"
	"github.com/auto-dns/traefik-cname-sync/internal/registry"
	"github.com/auto-dns/traefik-cname-sync/internal/util"
	"golang.org/x/sync/errgroup"
)

type createJob struct {
	container domain.Container
	ownerId   string
	hostname  string
	subdomain string
	domain    string
	target    string
}

type createResult struct {
	recordId string
	err      error
}

// tick runs one reconciliation pass inside the tick lock. Only a failure to
// list containers or to take the lock is returned.
func (se *SyncEngine) tick(ctx context.Context) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.TickDuration)

	err := se.locker.LockTransaction(ctx, []string{tickLockKey}, func() error {
		return se.reconcile(ctx)
	})
	se.updateGauges()

	if err != nil {
		metrics.TicksTotal.WithLabelValues("error").Inc()
		var tickErr *TickError
		if errors.As(err, &tickErr) {
			return err
		}
		return NewTickError("lock", err)
	}
	metrics.TicksTotal.WithLabelValues("success").Inc()
	se.logger.Debug().Dur("duration", timer.Duration()).Msg("Tick complete")
	return nil
}

func (se *SyncEngine) reconcile(ctx context.Context) error {
	containers, err := se.lister.ListContainers(ctx)
	if err != nil {
		return NewTickError("list containers", err)
	}

	running := make(map[string]domain.Container)
	for _, c := range util.Filter(containers, domain.Container.Running) {
		running[domain.ShortID(c.Id)] = c
	}
	runningIds := util.SortedKeys(running)

	se.createMissing(ctx, runningIds, running)
	se.cancelRecovered(runningIds)
	se.armAbsent(running)
	return nil
}

// createMissing creates records for running containers that own none yet.
// Registrar calls run concurrently; the table is updated once they are done.
func (se *SyncEngine) createMissing(ctx context.Context, runningIds []string, running map[string]domain.Container) {
	var jobs []createJob
	for _, id := range runningIds {
		if se.state.HasOwner(id) {
			continue
		}
		c := running[id]
		for _, hostname := range ParseHostnames(se.cfg.LabelPrefix, c.Labels) {
			subdomain, dom, err := domain.SplitHostname(hostname)
			if err != nil {
				metrics.ParseWarningsTotal.Inc()
				se.logger.Warn().Err(err).
					Str("container_id", id).
					Str("container_name", c.Name).
					Str("hostname", hostname).
					Msg("Skipping invalid hostname")
				continue
			}
			jobs = append(jobs, createJob{
				container: c,
				ownerId:   id,
				hostname:  hostname,
				subdomain: subdomain,
				domain:    dom,
				target:    se.target(dom),
			})
		}
	}
	if len(jobs) == 0 {
		return
	}

	if se.cfg.AdoptExisting {
		jobs = se.adoptExisting(ctx, jobs)
	}

	results := make([]createResult, len(jobs))
	var g errgroup.Group
	g.SetLimit(se.concurrency())
	for i, job := range jobs {
		g.Go(func() error {
			id, err := se.registrar.CreateCNAME(ctx, job.domain, job.subdomain, job.target, se.cfg.RecordTTL)
			results[i] = createResult{recordId: id, err: err}
			return nil
		})
	}
	_ = g.Wait()

	for i, job := range jobs {
		res := results[i]
		if res.err != nil {
			se.logger.Error().Err(res.err).
				Str("container_id", job.ownerId).
				Str("container_name", job.container.Name).
				Str("hostname", job.hostname).
				Str("domain", job.domain).
				Msg("Failed to create CNAME record")
			continue
		}
		rec := se.putJob(job, res.recordId)
		se.logger.Info().
			Str("container_id", job.ownerId).
			Str("container_name", job.container.Name).
			Str("hostname", job.hostname).
			Str("domain", job.domain).
			Str("record_id", res.recordId).
			Msgf("Created record %s", rec.Render())
	}
}

// adoptExisting takes ownership of CNAMEs the registrar already holds with the
// same host and answer, and returns the jobs that still need a create. It runs
// inside the tick lock, so an instance that created a record in an earlier
// tick is seen here. Record ids already in the table are never adopted twice.
// A domain whose listing fails is left to the create path.
func (se *SyncEngine) adoptExisting(ctx context.Context, jobs []createJob) []createJob {
	domainSet := make(map[string]struct{})
	for _, job := range jobs {
		domainSet[job.domain] = struct{}{}
	}
	domains := util.SortedKeys(domainSet)

	var mu sync.Mutex
	existing := make(map[string][]registry.Record, len(domains))
	var g errgroup.Group
	g.SetLimit(se.concurrency())
	for _, dom := range domains {
		g.Go(func() error {
			recs, err := se.registrar.ListRecords(ctx, dom)
			if err != nil {
				se.logger.Warn().Err(err).Str("domain", dom).Msg("Could not list existing records, creating without adoption")
				return nil
			}
			mu.Lock()
			existing[dom] = recs
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	taken := make(map[string]struct{})
	for _, rec := range se.state.Records() {
		taken[rec.RecordId] = struct{}{}
	}

	var remaining []createJob
	for _, job := range jobs {
		found, ok := findCNAME(existing[job.domain], job, taken)
		if !ok {
			remaining = append(remaining, job)
			continue
		}
		taken[found.Id] = struct{}{}
		rec := se.putJob(job, found.Id)
		metrics.RecordsAdoptedTotal.Inc()
		se.logger.Info().
			Str("container_id", job.ownerId).
			Str("container_name", job.container.Name).
			Str("hostname", job.hostname).
			Str("domain", job.domain).
			Str("record_id", found.Id).
			Msgf("Adopted existing record %s", rec.Render())
	}
	return remaining
}

func findCNAME(records []registry.Record, job createJob, taken map[string]struct{}) (registry.Record, bool) {
	for _, r := range records {
		if _, ok := taken[r.Id]; ok {
			continue
		}
		if !strings.EqualFold(r.Type, "CNAME") || !strings.EqualFold(r.Host, job.subdomain) {
			continue
		}
		if sameAnswer(r.Answer, job.target) {
			return r, true
		}
	}
	return registry.Record{}, false
}

func sameAnswer(a, b string) bool {
	return strings.EqualFold(strings.TrimSuffix(a, "."), strings.TrimSuffix(b, "."))
}

func (se *SyncEngine) putJob(job createJob, recordId string) domain.ManagedRecord {
	rec := domain.ManagedRecord{
		RecordId:      recordId,
		Hostname:      job.hostname,
		Domain:        job.domain,
		Subdomain:     job.subdomain,
		Target:        job.target,
		ContainerId:   job.ownerId,
		ContainerName: job.container.Name,
		CreatedAt:     se.now(),
	}
	se.state.PutRecord(rec)
	return rec
}

// cancelRecovered drops the pending deletion of every container that is
// running again, and releases any hold on it.
func (se *SyncEngine) cancelRecovered(runningIds []string) {
	for _, id := range runningIds {
		if se.state.CancelPending(id) {
			se.logger.Info().Str("container_id", id).Msg("Container running again, canceled pending deletion")
		}
		if se.state.Release(id) {
			se.logger.Info().Str("container_id", id).Msg("Container running again, released held deletion")
		}
	}
}

// armAbsent schedules deletion for every owner that is no longer running.
func (se *SyncEngine) armAbsent(running map[string]domain.Container) {
	for _, id := range se.state.Owners() {
		if _, ok := running[id]; ok {
			continue
		}
		if se.state.HasPending(id) || se.state.IsHeld(id) {
			continue
		}
		se.arm(id)
	}
}

func (se *SyncEngine) arm(containerId string) {
	se.nextToken++
	f := firing{containerId: containerId, token: se.nextToken}
	delay := se.cfg.DeleteDelayDuration()
	fireAt := se.now().Add(delay)

	stop := se.afterFunc(delay, func() { se.deliver(f) })
	se.state.ArmPending(containerId, fireAt, f.token, stop)

	se.logger.Info().
		Str("container_id", containerId).
		Time("fire_at", fireAt).
		Msg("Container not running, scheduled deletion of its records")
}

// fire deletes every record of a container whose deletion timer went off.
// Records whose deletion fails stay in the table.
func (se *SyncEngine) fire(ctx context.Context, f firing) {
	if !se.state.TakePending(f.containerId, f.token) {
		se.logger.Debug().Str("container_id", f.containerId).Msg("Ignoring canceled deletion")
		return
	}
	defer se.updateGauges()

	records := se.state.RecordsOwnedBy(f.containerId)
	errs := make([]error, len(records))

	lockErr := se.locker.LockTransaction(ctx, []string{tickLockKey}, func() error {
		var g errgroup.Group
		g.SetLimit(se.concurrency())
		for i, rec := range records {
			g.Go(func() error {
				errs[i] = se.registrar.DeleteRecord(ctx, rec.Domain, rec.RecordId)
				return nil
			})
		}
		return g.Wait()
	})
	if lockErr != nil {
		se.logger.Error().Err(lockErr).Str("container_id", f.containerId).Msg("Could not take tick lock for deletion")
		se.deletionFailed(f.containerId, records)
		return
	}

	var failed []domain.ManagedRecord
	for i, rec := range records {
		if registry.IsNotFound(errs[i]) {
			// Another owner of an adopted record already removed it.
			se.state.RemoveRecord(rec.Key())
			se.logger.Info().
				Str("container_id", rec.ContainerId).
				Str("hostname", rec.Hostname).
				Str("record_id", rec.RecordId).
				Msg("Record already absent at the registrar, dropping it")
			continue
		}
		if errs[i] != nil {
			failed = append(failed, rec)
			se.logger.Error().Err(errs[i]).
				Str("container_id", rec.ContainerId).
				Str("container_name", rec.ContainerName).
				Str("hostname", rec.Hostname).
				Str("domain", rec.Domain).
				Str("record_id", rec.RecordId).
				Msg("Failed to delete CNAME record")
			continue
		}
		se.state.RemoveRecord(rec.Key())
		se.logger.Info().
			Str("container_id", rec.ContainerId).
			Str("hostname", rec.Hostname).
			Str("domain", rec.Domain).
			Str("record_id", rec.RecordId).
			Msgf("Deleted record %s", rec.Render())
	}
	if len(failed) > 0 {
		se.deletionFailed(f.containerId, failed)
	}
}

func (se *SyncEngine) deletionFailed(containerId string, remaining []domain.ManagedRecord) {
	hostnames := util.Map(remaining, func(r domain.ManagedRecord) string { return r.Hostname })
	if se.cfg.DeleteFailurePolicy == config.DeleteFailurePolicyManual {
		se.state.Hold(containerId)
		se.logger.Warn().
			Str("container_id", containerId).
			Strs("hostnames", hostnames).
			Msg("Deletion failed, holding records until retried manually")
		return
	}
	se.logger.Warn().
		Str("container_id", containerId).
		Strs("hostnames", hostnames).
		Msg("Deletion failed, a later tick will schedule it again")
}

func (se *SyncEngine) target(dom string) string {
	if se.cfg.TargetDomain != "" {
		return se.cfg.TargetDomain
	}
	return dom
}

func (se *SyncEngine) concurrency() int {
	return max(1, se.cfg.Concurrency)
}
