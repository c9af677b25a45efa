//go:build !windows

package host

// HostIsCompatible reports whether this system can host processes.
func HostIsCompatible() bool {
	return false
}

type unsupportedPlatform struct{}

func (unsupportedPlatform) Launch(launchSpec) (process, error) {
	return nil, ErrUnsupported
}

func (unsupportedPlatform) LaunchAsUser(launchSpec, Credentials) (process, error) {
	return nil, ErrUnsupported
}

func (unsupportedPlatform) LaunchDebugged(launchSpec) (process, debugEvents, error) {
	return nil, nil, ErrUnsupported
}

func (unsupportedPlatform) NewPipe(Direction) (Endpoint, error) {
	return nil, ErrUnsupported
}

func (unsupportedPlatform) Open(uint32) (waiter, error) {
	return nil, ErrUnsupported
}

func nativePlatform() platform {
	return unsupportedPlatform{}
}
