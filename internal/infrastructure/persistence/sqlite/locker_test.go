package sqlite_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlitetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	km := sqlite.NewKeyedMutex()

	var (
		wg      sync.WaitGroup
		inside  int32
		maxSeen int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := km.Lock(context.Background(), 1)
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxSeen)
				if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen)
	assert.Equal(t, 0, km.Len())
}

func TestKeyedMutex_DistinctKeysDoNotBlock(t *testing.T) {
	km := sqlite.NewKeyedMutex()

	unlockA, err := km.Lock(context.Background(), 1)
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := km.Lock(ctx, 2)
	require.NoError(t, err)
	unlockB()

	assert.Equal(t, 1, km.Len())
}

func TestKeyedMutex_ContextCancel(t *testing.T) {
	km := sqlite.NewKeyedMutex()

	unlock, err := km.Lock(context.Background(), 7)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = km.Lock(ctx, 7)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	assert.Equal(t, 0, km.Len())
}

func TestDB_WithTransaction(t *testing.T) {
	db := sqlitetest.Open(t)
	ctx := context.Background()

	countCompanies := func() int {
		var n int
		require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM companies`).Scan(&n))
		return n
	}
	insert := func(ctx context.Context, name string) error {
		_, err := db.Executor(ctx).ExecContext(ctx,
			`INSERT INTO companies (name, base_currency, rule_set_version, created_at, updated_at) VALUES (?, 'USD', 0, ?, ?)`,
			name, time.Now(), time.Now())
		return err
	}

	t.Run("commit", func(t *testing.T) {
		err := db.WithTransaction(ctx, func(ctx context.Context) error {
			assert.True(t, sqlite.InTransaction(ctx))
			return insert(ctx, "a")
		})
		require.NoError(t, err)
		assert.Equal(t, 1, countCompanies())
	})

	t.Run("rollback on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := db.WithTransaction(ctx, func(ctx context.Context) error {
			require.NoError(t, insert(ctx, "b"))
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, countCompanies())
	})

	t.Run("nested joins outer", func(t *testing.T) {
		err := db.WithTransaction(ctx, func(ctx context.Context) error {
			require.NoError(t, db.WithTransaction(ctx, func(ctx context.Context) error {
				return insert(ctx, "c")
			}))
			return errors.New("outer fails")
		})
		require.Error(t, err)
		assert.Equal(t, 1, countCompanies())
	})
}

func TestExpenseLocker_RunsInTransaction(t *testing.T) {
	db := sqlitetest.Open(t)
	locker := sqlite.NewExpenseLocker(db, zap.NewNop())

	var calls int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithExpenseLock(context.Background(), 42, func(ctx context.Context) error {
				assert.True(t, sqlite.InTransaction(ctx))
				atomic.AddInt32(&calls, 1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(5), calls)
}
