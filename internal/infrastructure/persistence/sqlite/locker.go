package sqlite

import (
	"context"
	"sync"

	"github.com/garyjia/expense-approval/internal/application/port"
	"go.uber.org/zap"
)

// KeyedMutex hands out one mutex per key. Entries are dropped once no goroutine holds or waits on them.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex creates an empty KeyedMutex
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[int64]*keyLock)}
}

// Lock blocks until key is free or ctx is done. The returned func releases the lock.
func (k *KeyedMutex) Lock(ctx context.Context, key int64) (func(), error) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return func() {
			<-l.ch
			k.release(key, l)
		}, nil
	case <-ctx.Done():
		k.release(key, l)
		return nil, ctx.Err()
	}
}

func (k *KeyedMutex) release(key int64, l *keyLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}

// Len returns the number of live keys
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// ExpenseLocker combines the in-process per-expense mutex with a write transaction
type ExpenseLocker struct {
	db     *DB
	keys   *KeyedMutex
	logger *zap.Logger
}

// NewExpenseLocker creates an ExpenseLocker over db
func NewExpenseLocker(db *DB, logger *zap.Logger) *ExpenseLocker {
	return &ExpenseLocker{db: db, keys: NewKeyedMutex(), logger: logger}
}

// WithExpenseLock implements port.ExpenseLocker
func (l *ExpenseLocker) WithExpenseLock(ctx context.Context, expenseID int64, fn func(ctx context.Context) error) error {
	unlock, err := l.keys.Lock(ctx, expenseID)
	if err != nil {
		l.logger.Warn("Gave up waiting for expense lock", zap.Int64("expense_id", expenseID), zap.Error(err))
		return err
	}
	defer unlock()

	return l.db.WithTransaction(ctx, fn)
}

var _ port.ExpenseLocker = (*ExpenseLocker)(nil)
