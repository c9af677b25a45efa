package tracker

// versionAtLeast reports whether major.minor is at or above wantMajor.wantMinor.
func versionAtLeast(major, minor, wantMajor, wantMinor uint32) bool {
	if major != wantMajor {
		return major > wantMajor
	}

	return minor >= wantMinor
}
