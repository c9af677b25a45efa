//go:build !windows

package tracker

func defaultGroupName() string {
	return ""
}

func newGroup(string) (group, error) {
	return nil, ErrUnsupported
}
