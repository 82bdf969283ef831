// Package gate serializes the commit phase of uploads.
package gate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/iago/contact-distributor/internal/domain"
)

const opGate = "gate"

// Release frees a held gate. It is safe to call more than once.
type Release func()

// Gate admits at most one holder at a time.
type Gate interface {
	// TryAcquire returns UploadInProgress immediately if the gate is held.
	TryAcquire(ctx context.Context) (Release, error)
	// Acquire waits until the gate is free or ctx is done. A done ctx is
	// reported as UploadInProgress.
	Acquire(ctx context.Context) (Release, error)
}

func inProgress(err error) error {
	return domain.NewError(domain.KindUploadInProgress, opGate, err)
}

var errHeld = errors.New("another upload is being committed")

// LocalGate is a process-local gate backed by a one-slot channel.
type LocalGate struct {
	slot chan struct{}
}

func NewLocalGate() *LocalGate {
	return &LocalGate{slot: make(chan struct{}, 1)}
}

func (g *LocalGate) TryAcquire(_ context.Context) (Release, error) {
	select {
	case g.slot <- struct{}{}:
		return g.release(), nil
	default:
		return nil, inProgress(errHeld)
	}
}

func (g *LocalGate) Acquire(ctx context.Context) (Release, error) {
	select {
	case g.slot <- struct{}{}:
		return g.release(), nil
	case <-ctx.Done():
		return nil, inProgress(fmt.Errorf("wait for gate: %w", ctx.Err()))
	}
}

func (g *LocalGate) release() Release {
	var once sync.Once
	return func() {
		once.Do(func() { <-g.slot })
	}
}
