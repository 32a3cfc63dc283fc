package lock

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/auto-dns/traefik-cname-sync/internal/config"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	clientv3 "go.etcd.io/etcd/client/v3"
)

type etcdClient interface {
	Delete(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.DeleteResponse, error)
	Grant(ctx context.Context, ttl int64) (*clientv3.LeaseGrantResponse, error)
	Txn(ctx context.Context) clientv3.Txn
	Revoke(ctx context.Context, id clientv3.LeaseID) (*clientv3.LeaseRevokeResponse, error)
	Close() error
}

// heldLease is one acquired lock key and the lease that expires it if the
// holder dies before releasing.
type heldLease struct {
	lockKey string
	lease   clientv3.LeaseID
}

// EtcdLock serializes ticks across instances that share one registrar
// account. Nothing but the lock keys is written to etcd.
type EtcdLock struct {
	client etcdClient
	cfg    *config.EtcdConfig
	owner  string
	logger zerolog.Logger
}

func NewEtcdLock(client etcdClient, cfg *config.EtcdConfig, owner string, logger zerolog.Logger) *EtcdLock {
	return &EtcdLock{
		client: client,
		cfg:    cfg,
		owner:  owner,
		logger: logger,
	}
}

func (l *EtcdLock) lockKey(key string) string {
	return fmt.Sprintf("%s/%s", strings.TrimRight(l.cfg.LockKey, "/"), key)
}

// LockTransaction acquires a lease-backed lock on every key, runs fn, and
// releases the locks in reverse order.
func (l *EtcdLock) LockTransaction(ctx context.Context, keys []string, fn func() error) error {
	leases := make([]heldLease, 0, len(keys))

	defer func() {
		if err := l.release(leases); err != nil {
			l.logger.Warn().Err(err).Msg("Releasing tick locks")
		}
	}()

	for _, key := range keys {
		lockKey := l.lockKey(key)
		leaseResp, err := l.client.Grant(ctx, int64(l.cfg.LockTTL))
		if err != nil {
			return fmt.Errorf("failed to create lease: %w", err)
		}
		acquired := false
		deadline := time.Now().Add(time.Duration(l.cfg.LockTimeout * float64(time.Second)))
		for time.Now().Before(deadline) {
			txnResp, err := l.client.Txn(ctx).
				If(clientv3.Compare(clientv3.CreateRevision(lockKey), "=", 0)).
				Then(clientv3.OpPut(lockKey, l.owner, clientv3.WithLease(leaseResp.ID))).
				Commit()
			if err != nil {
				_, _ = l.client.Revoke(ctx, leaseResp.ID)
				return fmt.Errorf("lock transaction on %s: %w", lockKey, err)
			}
			if txnResp.Succeeded {
				acquired = true
				leases = append(leases, heldLease{lockKey: lockKey, lease: leaseResp.ID})
				break
			}
			select {
			case <-ctx.Done():
				_, _ = l.client.Revoke(context.Background(), leaseResp.ID)
				return ctx.Err()
			case <-time.After(time.Duration(l.cfg.LockRetryInterval * float64(time.Second))):
			}
		}
		if !acquired {
			_, _ = l.client.Revoke(ctx, leaseResp.ID)
			return fmt.Errorf("failed to acquire lock on %s", key)
		}
	}

	return fn()
}

func (l *EtcdLock) release(leases []heldLease) error {
	var errs error
	ctx := context.Background()
	for i := len(leases) - 1; i >= 0; i-- {
		held := leases[i]
		if _, err := l.client.Delete(ctx, held.lockKey); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("delete lock key %s: %w", held.lockKey, err))
		}
		if _, err := l.client.Revoke(ctx, held.lease); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("revoke lease for %s: %w", held.lockKey, err))
		}
	}
	return errs
}

func (l *EtcdLock) Close() error {
	return l.client.Close()
}
