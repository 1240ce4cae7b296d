package domain

import "context"

// SlotPool is a resource with finite capacity (e.g. concurrent requests).
//
// Acquire blocks until a slot is free or ctx is done; TryAcquire never blocks.
// On success both return a release func that must be called exactly once.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
	TryAcquire() (release func(), ok bool)
	InUse() int
	Cap() int
}
