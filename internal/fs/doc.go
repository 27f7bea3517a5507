// Package fs abstracts the local file system used by blobstore.LocalStore
// so tests can inject write, sync, close and rename failures.
//
// Production code uses fs.Default. Tests wrap it:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule(".seg", fs.Fault{FailAfterBytes: 128})
package fs
