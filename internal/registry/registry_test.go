package registry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestSpawnManyDrainsLiveSet(t *testing.T) {
	r := New(context.Background())
	const k = 50

	handles := make(map[Handle]struct{}, k)
	for i := 0; i < k; i++ {
		i := i
		h := r.Spawn(Task{
			Kind: KindThumbnail,
			Key:  fmt.Sprintf("row-%d", i),
			Run: func(ctx context.Context) (any, error) {
				time.Sleep(time.Duration(i%5) * time.Millisecond)
				switch i % 3 {
				case 0:
					return nil, errors.New("boom")
				case 1:
					panic("kaboom")
				}
				return i, nil
			},
		})
		handles[h] = struct{}{}
	}
	if len(handles) != k {
		t.Fatalf("expected %d distinct handles, got %d", k, len(handles))
	}

	seen := make(map[Handle]int, k)
	timeout := time.After(5 * time.Second)
	for len(seen) < k {
		select {
		case c := <-r.Completions():
			seen[c.Handle]++
			if r.Alive(c.Handle) {
				t.Fatalf("handle %s still live after its completion was delivered", c.Handle)
			}
			if c.Kind != KindThumbnail || c.Key == "" {
				t.Fatalf("completion lost its addressing: %+v", c)
			}
		case <-timeout:
			t.Fatalf("timeout: got %d of %d completions", len(seen), k)
		}
	}
	for h, n := range seen {
		if n != 1 {
			t.Fatalf("handle %s completed %d times", h, n)
		}
		if _, ok := handles[h]; !ok {
			t.Fatalf("unknown handle %s", h)
		}
	}
	if live := r.Live(); live != 0 {
		t.Fatalf("expected empty live set, got %d", live)
	}
	if !r.Wait(context.Background()) {
		t.Fatalf("expected wait to succeed")
	}
}

func TestPanicBecomesError(t *testing.T) {
	r := New(context.Background())
	r.Spawn(Task{Kind: KindSearch, Key: "q", Run: func(ctx context.Context) (any, error) { panic("bad") }})
	select {
	case c := <-r.Completions():
		if c.Err == nil {
			t.Fatalf("expected panic converted to error")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for completion")
	}
}

func TestSpawnDoesNotBlock(t *testing.T) {
	r := New(context.Background())
	release := make(chan struct{})
	start := time.Now()
	h := r.Spawn(Task{Kind: KindChapters, Key: "slug", Scope: 7, Run: func(ctx context.Context) (any, error) {
		<-release
		return "done", nil
	}})
	if time.Since(start) > time.Second {
		t.Fatalf("spawn blocked")
	}
	if !r.Alive(h) || r.Live() != 1 {
		t.Fatalf("expected task to be live while running")
	}
	close(release)
	c := <-r.Completions()
	if c.Value != "done" || c.Scope != 7 || c.Key != "slug" {
		t.Fatalf("unexpected completion %+v", c)
	}
}

func TestCancelledRegistryDropsUndeliveredCompletions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := New(ctx)
	// fill more than the buffer without a consumer
	for i := 0; i < defaultBuffer+10; i++ {
		r.Spawn(Task{Kind: KindThumbnail, Key: "k", Run: func(ctx context.Context) (any, error) { return nil, nil }})
	}
	cancel()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	if !r.Wait(waitCtx) {
		t.Fatalf("workers leaked after registry shutdown")
	}
	if r.Live() != 0 {
		t.Fatalf("expected empty live set, got %d", r.Live())
	}
}
