package lock

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/auto-dns/traefik-cname-sync/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clientv3 "go.etcd.io/etcd/client/v3"
)

type fakeTxn struct {
	client *fakeEtcd
	key    string
}

func (t *fakeTxn) If(cs ...clientv3.Cmp) clientv3.Txn {
	if len(cs) > 0 {
		t.key = string(cs[0].Key)
	}
	return t
}
func (t *fakeTxn) Then(ops ...clientv3.Op) clientv3.Txn { return t }
func (t *fakeTxn) Else(ops ...clientv3.Op) clientv3.Txn { return t }
func (t *fakeTxn) Commit() (*clientv3.TxnResponse, error) {
	t.client.mu.Lock()
	defer t.client.mu.Unlock()
	if t.client.txnErr != nil {
		return nil, t.client.txnErr
	}
	if t.client.held[t.key] {
		return &clientv3.TxnResponse{Succeeded: false}, nil
	}
	t.client.held[t.key] = true
	return &clientv3.TxnResponse{Succeeded: true}, nil
}

type fakeEtcd struct {
	mu      sync.Mutex
	held    map[string]bool
	deleted []string
	revoked []clientv3.LeaseID
	nextID  clientv3.LeaseID
	txnErr  error
}

func newFakeEtcd() *fakeEtcd {
	return &fakeEtcd{held: make(map[string]bool)}
}

func (f *fakeEtcd) Delete(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.DeleteResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.held, key)
	f.deleted = append(f.deleted, key)
	return &clientv3.DeleteResponse{}, nil
}

func (f *fakeEtcd) Grant(ctx context.Context, ttl int64) (*clientv3.LeaseGrantResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return &clientv3.LeaseGrantResponse{ID: f.nextID, TTL: ttl}, nil
}

func (f *fakeEtcd) Txn(ctx context.Context) clientv3.Txn {
	return &fakeTxn{client: f}
}

func (f *fakeEtcd) Revoke(ctx context.Context, id clientv3.LeaseID) (*clientv3.LeaseRevokeResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = append(f.revoked, id)
	return &clientv3.LeaseRevokeResponse{}, nil
}

func (f *fakeEtcd) Close() error { return nil }

func testEtcdConfig() *config.EtcdConfig {
	return &config.EtcdConfig{
		Enabled:           true,
		LockKey:           "/traefik-cname-sync/locks/",
		LockTTL:           5,
		LockTimeout:       0.05,
		LockRetryInterval: 0.01,
	}
}

func TestEtcdLock_RunsFnAndReleases(t *testing.T) {
	client := newFakeEtcd()
	l := NewEtcdLock(client, testEtcdConfig(), "host-a", zerolog.Nop())

	ran := false
	err := l.LockTransaction(context.Background(), []string{"tick"}, func() error {
		ran = true
		client.mu.Lock()
		defer client.mu.Unlock()
		assert.True(t, client.held["/traefik-cname-sync/locks/tick"])
		return nil
	})

	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, []string{"/traefik-cname-sync/locks/tick"}, client.deleted)
	assert.Equal(t, []clientv3.LeaseID{1}, client.revoked)
	assert.False(t, client.held["/traefik-cname-sync/locks/tick"])
}

func TestEtcdLock_PropagatesFnError(t *testing.T) {
	client := newFakeEtcd()
	l := NewEtcdLock(client, testEtcdConfig(), "host-a", zerolog.Nop())

	boom := errors.New("boom")
	err := l.LockTransaction(context.Background(), []string{"tick"}, func() error { return boom })

	assert.ErrorIs(t, err, boom)
	assert.Len(t, client.deleted, 1)
}

func TestEtcdLock_HeldElsewhereTimesOut(t *testing.T) {
	client := newFakeEtcd()
	client.held["/traefik-cname-sync/locks/tick"] = true
	l := NewEtcdLock(client, testEtcdConfig(), "host-a", zerolog.Nop())

	ran := false
	err := l.LockTransaction(context.Background(), []string{"tick"}, func() error {
		ran = true
		return nil
	})

	assert.Error(t, err)
	assert.False(t, ran)
	assert.Empty(t, client.deleted)
	assert.Equal(t, []clientv3.LeaseID{1}, client.revoked)
}

func TestEtcdLock_TxnError(t *testing.T) {
	client := newFakeEtcd()
	client.txnErr = errors.New("etcd unavailable")
	l := NewEtcdLock(client, testEtcdConfig(), "host-a", zerolog.Nop())

	err := l.LockTransaction(context.Background(), []string{"tick"}, func() error { return nil })
	assert.ErrorIs(t, err, client.txnErr)
}

func TestLocalLock(t *testing.T) {
	l := NewLocalLock()
	ran := false
	require.NoError(t, l.LockTransaction(context.Background(), nil, func() error { ran = true; return nil }))
	assert.True(t, ran)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.LockTransaction(ctx, nil, func() error { return nil }), context.Canceled)
}
