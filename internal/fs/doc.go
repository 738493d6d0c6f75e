// Package fs abstracts the few filesystem calls the local blob store makes,
// so tests can inject faults, and provides advisory file locks.
//
// Production code uses fs.Default (LocalFS). Tests wrap it:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule(".tmp", fs.Fault{FailOnSync: true})
//
// Locks are flock(2) based on unix and no-ops elsewhere.
package fs
