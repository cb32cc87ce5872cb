package server

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// admissionGate bounds concurrent in-flight connections to a fixed
// capacity. golang.org/x/sync/semaphore.Weighted gives exactly the
// blocking-acquire/release contract SPEC_FULL.md describes as an external
// collaborator interface.
type admissionGate struct {
	sem *semaphore.Weighted
}

func newAdmissionGate(capacity int64) *admissionGate {
	return &admissionGate{sem: semaphore.NewWeighted(capacity)}
}

// Acquire blocks until a permit is available or ctx is done.
func (g *admissionGate) Acquire(ctx context.Context) error {
	return g.sem.Acquire(ctx, 1)
}

// Release returns a permit to the gate.
func (g *admissionGate) Release() {
	g.sem.Release(1)
}
