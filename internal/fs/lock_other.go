//go:build !unix

package fs

// Lock is a no-op lock on platforms without flock.
type Lock struct{}

// AcquireLock returns a no-op lock.
func AcquireLock(string) (*Lock, error) { return &Lock{}, nil }

// Release is a no-op.
func (*Lock) Release() error { return nil }
