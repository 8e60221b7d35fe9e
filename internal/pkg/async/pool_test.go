package async_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackly/internal/pkg/async"
)

func constant(name string, value any) async.Task {
	return async.Task{Name: name, Execute: func(context.Context) (any, error) { return value, nil }}
}

func TestPoolRun(t *testing.T) {
	pool := async.NewPool(2)

	t.Run("collects every result", func(t *testing.T) {
		data, err := pool.Run(context.Background(), []async.Task{
			constant("a", 1),
			constant("b", "two"),
			constant("c", 3.0),
		})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"a": 1, "b": "two", "c": 3.0}, data)
	})

	t.Run("is reusable across batches", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			data, err := pool.Run(context.Background(), []async.Task{constant("x", i)})
			require.NoError(t, err)
			assert.Equal(t, i, data["x"])
		}
	})

	t.Run("returns the first failure in submission order", func(t *testing.T) {
		errFirst := errors.New("first")
		errSecond := errors.New("second")
		_, err := pool.Run(context.Background(), []async.Task{
			constant("ok", 1),
			{Name: "one", Execute: func(context.Context) (any, error) { return nil, errFirst }},
			{Name: "two", Execute: func(context.Context) (any, error) { return nil, errSecond }},
		})
		assert.ErrorIs(t, err, errFirst)
	})

	t.Run("skips work once cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		var ran atomic.Int32
		task := async.Task{Name: "slow", Execute: func(context.Context) (any, error) {
			ran.Add(1)
			return nil, nil
		}}

		_, err := pool.Run(ctx, []async.Task{task})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, ran.Load())
	})
}

func TestPoolExecuteEmpty(t *testing.T) {
	results := async.NewPool(0).Execute(context.Background(), nil)
	assert.Empty(t, results)
}
