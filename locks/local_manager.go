package locks

import (
	"context"

	"github.com/puzpuzpuz/xsync/v4"
)

// LocalManager holds path locks in process memory. It only serializes
// writers inside one diskfs process.
type LocalManager struct {
	held *xsync.Map[string, struct{}]
}

// NewLocalManager returns an empty in-process lock table.
func NewLocalManager() *LocalManager {
	return &LocalManager{held: xsync.NewMap[string, struct{}]()}
}

// Acquire marks key as held unless another caller already holds it.
func (m *LocalManager) Acquire(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, taken := m.held.LoadOrStore(key, struct{}{})
	return !taken, nil
}

// Release frees key. Releasing a key that is not held is a no-op.
func (m *LocalManager) Release(_ context.Context, key string) error {
	m.held.Delete(key)
	return nil
}

// Held reports how many keys are currently locked.
func (m *LocalManager) Held() int { return m.held.Size() }

// Close drops every held lock.
func (m *LocalManager) Close() error {
	m.held.Clear()
	return nil
}
