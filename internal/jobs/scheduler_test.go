package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"playas/internal/cache"
)

func TestRunHoldsLock(t *testing.T) {
	locker := cache.NewLocalLocker()
	s := NewScheduler(locker, nil)
	runs := 0
	if err := s.Add("count", "", func(context.Context) error { runs++; return nil }); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	held, err := locker.Obtain(ctx, "job:count", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Run(ctx, "count"); !errors.Is(err, cache.ErrNotObtained) {
		t.Fatalf("err = %v, want ErrNotObtained", err)
	}
	if runs != 0 {
		t.Fatalf("job ran while locked")
	}

	_ = held.Release(ctx)
	if err := s.Run(ctx, "count"); err != nil {
		t.Fatal(err)
	}
	if err := s.Run(ctx, "count"); err != nil {
		t.Fatalf("lock not released after run: %v", err)
	}
	if runs != 2 {
		t.Errorf("runs = %d, want 2", runs)
	}
}

func TestRunReturnsJobError(t *testing.T) {
	s := NewScheduler(cache.NewLocalLocker(), nil)
	boom := errors.New("boom")
	_ = s.Add("fail", "", func(context.Context) error { return boom })
	if err := s.Run(context.Background(), "fail"); !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
	if err := s.Run(context.Background(), "missing"); err == nil {
		t.Error("unknown job should fail")
	}
}

func TestAddRejectsBadSpec(t *testing.T) {
	s := NewScheduler(cache.NewLocalLocker(), time.UTC)
	if err := s.Add("bad", "not a spec", func(context.Context) error { return nil }); err == nil {
		t.Error("bad spec accepted")
	}
	if err := s.Add("ok", "*/5 * * * *", func(context.Context) error { return nil }); err != nil {
		t.Errorf("valid spec rejected: %v", err)
	}
	if err := s.Add("ok", "", nil); err == nil {
		t.Error("duplicate accepted")
	}
	if got := s.Names(); len(got) != 1 || got[0] != "ok" {
		t.Errorf("names = %v", got)
	}
}
