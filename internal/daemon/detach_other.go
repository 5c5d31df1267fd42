//go:build !unix

package daemon

// detachInPlace has no portable equivalent of setsid(2) outside
// POSIX; Background launch mode is unsupported on these platforms
// per spec.md §9, which scopes session detachment as a Unix-specific
// operation.
func detachInPlace() error {
	return &UnsupportedPlatformError{Op: "background launch mode"}
}
