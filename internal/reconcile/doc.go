// Package reconcile converges a remote repository to the files of a local checkout.
//
// A sync is computed as a set difference over slash separated paths:
// local files missing remotely are created, files present on both sides are
// updated and remote files with no local counterpart are deleted. Directories
// are never tracked on their own; a remote directory disappears once the last
// file below it is deleted.
package reconcile
