//go:build windows

package tactile

// Rlimit mirrors the unix soft/hard pair; limits are not applied on Windows.
type Rlimit struct {
	Cur uint64
	Max uint64
}

// MaybeRunLimitShim is a no-op on Windows.
func MaybeRunLimitShim() {}
