// Package registry owns short-lived background jobs (searches, thumbnail
// loads, chapter lists) from spawn until their single completion.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type Kind string

const (
	KindSearch    Kind = "search"
	KindThumbnail Kind = "thumbnail"
	KindChapters  Kind = "chapters"
)

const defaultBuffer = 64

// Handle identifies one spawned task. It is only a name: holding a Handle
// grants no way to cancel or remove the task.
type Handle struct {
	id string
}

func (h Handle) String() string { return h.id }

// Task describes work to run in the background. Key and Scope are copied to
// the completion so the consumer can address the result.
type Task struct {
	Kind  Kind
	Key   string
	Scope uint64
	Run   func(ctx context.Context) (any, error)
}

// Completion is delivered exactly once per spawned task, after the task has
// already left the live set.
type Completion struct {
	Handle Handle
	Kind   Kind
	Key    string
	Scope  uint64
	Value  any
	Err    error
}

type Registry struct {
	mu          sync.Mutex
	live        map[Handle]Kind
	completions chan Completion
	ctx         context.Context
	wg          sync.WaitGroup
}

// New creates a registry whose tasks run under ctx. Cancelling ctx stops
// pending deliveries so workers cannot outlive a consumer that went away.
func New(ctx context.Context) *Registry {
	return &Registry{
		live:        make(map[Handle]Kind),
		completions: make(chan Completion, defaultBuffer),
		ctx:         ctx,
	}
}

// Completions is the single stream the consumer drains.
func (r *Registry) Completions() <-chan Completion {
	return r.completions
}

// Spawn starts task on its own goroutine and returns immediately.
func (r *Registry) Spawn(task Task) Handle {
	handle := Handle{id: uuid.NewString()}

	r.mu.Lock()
	r.live[handle] = task.Kind
	r.mu.Unlock()

	r.wg.Add(1)
	go r.run(handle, task)
	return handle
}

func (r *Registry) run(handle Handle, task Task) {
	defer r.wg.Done()

	value, err := invoke(r.ctx, task)
	r.release(handle)

	completion := Completion{
		Handle: handle,
		Kind:   task.Kind,
		Key:    task.Key,
		Scope:  task.Scope,
		Value:  value,
		Err:    err,
	}
	select {
	case r.completions <- completion:
	case <-r.ctx.Done():
		log.Debug().Str("handle", handle.id).Str("kind", string(task.Kind)).Msg("dropping completion after shutdown")
	}
}

// invoke runs the task and turns a panic into an error.
func invoke(ctx context.Context, task Task) (value any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%s task panicked: %v", task.Kind, rec)
			log.Error().Str("kind", string(task.Kind)).Str("key", task.Key).Interface("panic", rec).Msg("background task panicked")
		}
	}()
	if task.Run == nil {
		return nil, fmt.Errorf("%s task has no body", task.Kind)
	}
	return task.Run(ctx)
}

// release is called once, from the task's own goroutine.
func (r *Registry) release(handle Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.live[handle]; !ok {
		// unreachable unless run is invoked twice for one handle
		panic("registry: handle released twice: " + handle.id)
	}
	delete(r.live, handle)
}

// Alive reports whether the task behind handle is still running.
func (r *Registry) Alive(handle Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.live[handle]
	return ok
}

// Live returns the number of tasks still running.
func (r *Registry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

// Wait blocks until every spawned task has delivered or dropped its
// completion, or ctx is done. Returns true if all tasks finished.
func (r *Registry) Wait(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
