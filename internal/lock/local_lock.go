package lock

import "context"

// Locker guards a tick against concurrent execution elsewhere.
type Locker interface {
	LockTransaction(ctx context.Context, keys []string, fn func() error) error
	Close() error
}

// LocalLock is used for single-instance deployments: the engine loop already
// serializes ticks inside the process.
type LocalLock struct{}

func NewLocalLock() *LocalLock {
	return &LocalLock{}
}

func (LocalLock) LockTransaction(ctx context.Context, _ []string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn()
}

func (LocalLock) Close() error {
	return nil
}
