package threadpool_test

import (
	"errors"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ygrebnov/threadpool"
)

func TestRunAll(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name        string
		tasks       []threadpool.Task[int]
		wantResults []int
		wantErrs    []error
	}{
		{
			name:        "empty",
			tasks:       nil,
			wantResults: []int{},
		},
		{
			name: "all succeed in submission order",
			tasks: []threadpool.Task[int]{
				threadpool.TaskValue(func() int { return 3 }),
				threadpool.TaskValue(func() int { return 1 }),
				threadpool.TaskValue(func() int { return 2 }),
			},
			wantResults: []int{3, 1, 2},
		},
		{
			name: "failed slot keeps zero value",
			tasks: []threadpool.Task[int]{
				threadpool.TaskValue(func() int { return 1 }),
				threadpool.TaskError[int](func() error { return boom }),
				threadpool.TaskValue(func() int { return 3 }),
			},
			wantResults: []int{1, 0, 3},
			wantErrs:    []error{boom},
		},
		{
			name: "panic is aggregated",
			tasks: []threadpool.Task[int]{
				threadpool.TaskValue(func() int { panic("bad") }),
				threadpool.TaskValue(func() int { return 2 }),
			},
			wantResults: []int{0, 2},
			wantErrs:    []error{threadpool.ErrTaskPanicked},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPool(t, 2)
			defer p.Shutdown()

			got, err := threadpool.RunAll(p, tt.tasks)
			require.Equal(t, tt.wantResults, got)
			if len(tt.wantErrs) == 0 {
				require.NoError(t, err)
				return
			}
			for _, want := range tt.wantErrs {
				require.ErrorIs(t, err, want)
			}
		})
	}
}

func TestRunAll_StoppedPool(t *testing.T) {
	p := newPool(t, 1)
	p.Shutdown()

	got, err := threadpool.RunAll(p, []threadpool.Task[int]{threadpool.TaskValue(func() int { return 1 }), threadpool.TaskValue(func() int { return 2 })})
	require.ErrorIs(t, err, threadpool.ErrPoolStopped)
	require.Empty(t, got)
}

func TestRunAll_NilTaskStopsSubmission(t *testing.T) {
	p := newPool(t, 1)
	defer p.Shutdown()

	var ran atomic.Int64
	count := threadpool.TaskValue(func() int { ran.Add(1); return 1 })

	got, err := threadpool.RunAll(p, []threadpool.Task[int]{count, nil, count})
	require.ErrorIs(t, err, threadpool.ErrNilTask)
	require.Equal(t, []int{1}, got)
	require.Equal(t, int64(1), ran.Load())
}

func TestMap(t *testing.T) {
	p := newPool(t, 3)
	defer p.Shutdown()

	got, err := threadpool.Map(p, []string{"1", "22", "333"}, strconv.Atoi)
	require.NoError(t, err)
	require.Equal(t, []int{1, 22, 333}, got)

	got, err = threadpool.Map(p, []string{"1", "x"}, strconv.Atoi)
	require.Equal(t, []int{1, 0}, got)
	var numErr *strconv.NumError
	require.ErrorAs(t, err, &numErr)

	got, err = threadpool.Map(p, nil, strconv.Atoi)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestForEach(t *testing.T) {
	p := newPool(t, 4)
	defer p.Shutdown()

	var sum atomic.Int64
	err := threadpool.ForEach(p, []int64{1, 2, 3, 4}, func(v int64) error {
		sum.Add(v)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, int64(10), sum.Load())

	odd := errors.New("odd")
	err = threadpool.ForEach(p, []int{1, 2, 3}, func(v int) error {
		if v%2 == 1 {
			return odd
		}
		return nil
	})
	require.ErrorIs(t, err, odd)
	var joined interface{ Unwrap() []error }
	require.ErrorAs(t, err, &joined)
	require.Len(t, joined.Unwrap(), 2)

	require.NoError(t, threadpool.ForEach[int](p, nil, func(int) error { return odd }))
}
