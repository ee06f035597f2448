//go:build !darwin

package permissions

// Microphone always reports Authorized where the OS has no per-app gate.
func Microphone() Status {
	return Authorized
}

// EnsureMicrophone is a no-op on non-macOS platforms.
func EnsureMicrophone() error {
	return nil
}
