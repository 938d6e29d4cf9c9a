package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestSchedulerRunsImmediatelyAndRepeats(t *testing.T) {
	s := New(Options{Interval: 10 * time.Millisecond}, zerolog.Nop())

	ticks := make(chan time.Time, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = s.Run(ctx, func(_ context.Context, started time.Time) error {
			ticks <- started
			return nil
		})
	}()

	for i := 0; i < 3; i++ {
		select {
		case <-ticks:
		case <-time.After(2 * time.Second):
			t.Fatalf("第 %d 次 tick 未执行", i+1)
		}
	}
}

func TestSchedulerContinuesAfterTickError(t *testing.T) {
	s := New(Options{Interval: 10 * time.Millisecond}, zerolog.Nop())

	ticks := make(chan struct{}, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = s.Run(ctx, func(context.Context, time.Time) error {
			ticks <- struct{}{}
			return errors.New("boom")
		})
	}()

	for i := 0; i < 2; i++ {
		select {
		case <-ticks:
		case <-time.After(2 * time.Second):
			t.Fatal("tick 失败后调度应继续")
		}
	}
}

func TestSchedulerStopsOnCancel(t *testing.T) {
	s := New(Options{Interval: time.Hour, StartupDelay: time.Hour}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Run(ctx, func(context.Context, time.Time) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("取消后应返回 context.Canceled, 实际 %v", err)
	}
}

func TestSchedulerRejectsNonPositiveInterval(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("非正间隔应触发 panic")
		}
	}()
	New(Options{Interval: 0}, zerolog.Nop())
}
