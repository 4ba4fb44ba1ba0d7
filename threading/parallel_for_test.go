package threading

import (
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/tarstars/tree_codegen/tcerr"
)

func TestConfigureThreadConfig(t *testing.T) {
	require.Equal(t, 3, ConfigureThreadConfig(3).NThread)
	require.Greater(t, ConfigureThreadConfig(0).NThread, 0)
	require.Greater(t, ConfigureThreadConfig(-5).NThread, 0)
}

func coverage(t *testing.T, sched Schedule, nthread int, begin, end uint64) {
	t.Helper()
	visited := make([]int32, end)
	err := ParallelFor(begin, end, ConfigureThreadConfig(nthread), sched, func(i uint64, tid int) error {
		if tid < 0 || tid >= nthread {
			return errors.Errorf("thread id %d out of range", tid)
		}
		atomic.AddInt32(&visited[i], 1)
		return nil
	})
	require.NoError(t, err)
	for i := begin; i < end; i++ {
		require.Equal(t, int32(1), visited[i], i)
	}
}

func TestParallelForCoversEveryIndexOnce(t *testing.T) {
	coverage(t, Static(0), 4, 0, 1000)
	coverage(t, Static(7), 4, 0, 1000)
	coverage(t, Dynamic(0), 4, 0, 1000)
	coverage(t, Dynamic(16), 4, 0, 1000)
	coverage(t, Guided(), 4, 0, 1000)
	coverage(t, Auto(), 4, 0, 1000)
}

func TestParallelForEmptyRange(t *testing.T) {
	called := false
	err := ParallelFor(5, 5, ConfigureThreadConfig(4), Static(0), func(i uint64, tid int) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	require.False(t, called)
}

func TestParallelForFewerIndicesThanThreads(t *testing.T) {
	coverage(t, Static(0), 8, 0, 3)
}

func TestParallelForPropagatesFirstError(t *testing.T) {
	boom := errors.New("boom")
	err := ParallelFor(0, 100, ConfigureThreadConfig(4), Static(0), func(i uint64, tid int) error {
		if i == 42 {
			return boom
		}
		return nil
	})
	require.Error(t, err)
	require.Equal(t, tcerr.KindConcurrency, tcerr.KindOf(err))
	require.ErrorIs(t, err, boom)
}

func TestParallelForSingleThreadRunsInOrder(t *testing.T) {
	var order []uint64
	err := ParallelFor(3, 8, ConfigureThreadConfig(1), Static(0), func(i uint64, tid int) error {
		if tid != 0 {
			return errors.Errorf("unexpected thread id %d", tid)
		}
		order = append(order, i)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []uint64{3, 4, 5, 6, 7}, order)
}

func TestParallelForCapturesPanics(t *testing.T) {
	err := ParallelFor(0, 10, ConfigureThreadConfig(2), Static(0), func(i uint64, tid int) error {
		if i == 3 {
			panic("worker exploded")
		}
		return nil
	})
	require.Error(t, err)
	require.Equal(t, tcerr.KindConcurrency, tcerr.KindOf(err))
	require.Contains(t, err.Error(), "worker exploded")
}
