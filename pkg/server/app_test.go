package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	applogger "FinTrade/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blocking(started *sync.WaitGroup) func(context.Context) error {
	return func(ctx context.Context) error {
		started.Done()
		<-ctx.Done()
		return nil
	}
}

func TestApp_StopsOnCancelAndClosesInReverse(t *testing.T) {
	var started sync.WaitGroup
	started.Add(2)
	var order []string
	closer := func(name string) Closer {
		return Closer{Name: name, Close: func() error {
			order = append(order, name)
			return errors.New("ignored")
		}}
	}
	app := New(applogger.Nop(),
		[]Runner{{Name: "a", Run: blocking(&started)}, {Name: "b", Run: blocking(&started)}},
		[]Closer{closer("kafka"), closer("redis")},
	)
	app.AddCloser(closer("clickhouse"))
	assert.Equal(t, []string{"a", "b"}, app.Runners())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.RunContext(ctx) }()
	started.Wait()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
	assert.Equal(t, []string{"clickhouse", "redis", "kafka"}, order)
}

func TestApp_FailingRunnerStopsOthers(t *testing.T) {
	var started sync.WaitGroup
	started.Add(1)
	app := New(applogger.Nop(), []Runner{
		{Name: "engine", Run: blocking(&started)},
		{Name: "consumer", Run: func(context.Context) error {
			started.Wait()
			return errors.New("broker unreachable")
		}},
	}, nil)

	err := app.RunContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "consumer: broker unreachable")
}
