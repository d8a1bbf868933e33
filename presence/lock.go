package presence

import (
	"context"
	"fmt"
)

// Locker serializes admission decisions for one key. Lock blocks until the
// key is held or ctx is done; the returned func releases it.
//
// Implementations live in package lock (in-process and Redis-backed).
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// admissionKey scopes the critical section to one employee and one day.
func admissionKey(id EmployeeID, day Day) string {
	return fmt.Sprintf("admission:%s:%s", id, day)
}

// noopLocker is used when no Locker is configured; the store's uniqueness
// constraint is then the only guard.
type noopLocker struct{}

func (noopLocker) Lock(context.Context, string) (func(), error) { return func() {}, nil }
