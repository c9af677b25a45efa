package tracker

import "go.uber.org/zap"

// Exported variables.
var (
	VersionAtLeastForTest = versionAtLeast
)

type GroupForTest = group

// NewWithGroupForTest returns a tracker over g, or an unsupported tracker
// failing with reason when g is nil.
func NewWithGroupForTest(g group, reason error, log *zap.Logger) *Tracker {
	return &Tracker{log: log, group: g, reason: reason}
}
