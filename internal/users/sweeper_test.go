package users

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

type fakePurgeStore struct {
	candidates []string
	verified   map[string]bool
	failing    map[string]bool
	purged     []string
}

func (f *fakePurgeStore) ExpiredUnverified(_ context.Context, now, cutoff time.Time) ([]string, error) {
	if !cutoff.Before(now) {
		return nil, errors.New("cutoff must precede now")
	}
	return f.candidates, nil
}

func (f *fakePurgeStore) PurgeUnverified(_ context.Context, userID string) (bool, error) {
	if f.failing[userID] {
		return false, errors.New("deadlock detected")
	}
	if f.verified[userID] {
		return false, nil
	}
	f.purged = append(f.purged, userID)
	return true, nil
}

func newTestSweeper(store purgeStore) *Sweeper {
	return NewSweeper(store, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSweeper_Sweep(t *testing.T) {
	t.Run("purges expired unverified accounts", func(t *testing.T) {
		store := &fakePurgeStore{candidates: []string{"u1", "u2", "u3"}}

		purged, err := newTestSweeper(store).Sweep(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if purged != 3 {
			t.Errorf("expected 3 purged, got %d", purged)
		}
	})

	t.Run("spares an account verified between query and delete", func(t *testing.T) {
		store := &fakePurgeStore{
			candidates: []string{"u1", "u2"},
			verified:   map[string]bool{"u2": true},
		}

		purged, err := newTestSweeper(store).Sweep(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if purged != 1 {
			t.Errorf("expected 1 purged, got %d", purged)
		}
		for _, id := range store.purged {
			if id == "u2" {
				t.Error("verified account must not be purged")
			}
		}
	})

	t.Run("one failing delete does not abort the batch", func(t *testing.T) {
		store := &fakePurgeStore{
			candidates: []string{"u1", "u2", "u3"},
			failing:    map[string]bool{"u2": true},
		}

		purged, err := newTestSweeper(store).Sweep(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if purged != 2 {
			t.Errorf("expected 2 purged, got %d", purged)
		}
	})

	t.Run("empty candidate set is a no-op", func(t *testing.T) {
		store := &fakePurgeStore{}

		purged, err := newTestSweeper(store).Sweep(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if purged != 0 {
			t.Errorf("expected 0 purged, got %d", purged)
		}
	})
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	store := &fakePurgeStore{}
	sweeper := NewSweeper(store, 10*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancellation")
	}
}
