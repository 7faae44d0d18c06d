package config

import "time"

// Defaults used when a setting row is absent.
const (
	DefaultTimeWindowMinutes     = 15
	DefaultNameSimilarityPercent = 65

	// Slack before payment creation absorbing clock skew between the
	// bank's timestamp and our own.
	ClockSkewSlack = 5 * time.Minute
)

// Snapshot is the live-tunable configuration fetched once per driver
// invocation and threaded through the engine explicitly, so matching
// stays testable without ambient state.
type Snapshot struct {
	TimeWindowMinutes     int
	NameSimilarityPercent int
}

// TimeWindow is the accept window width after payment creation.
func (s Snapshot) TimeWindow() time.Duration {
	return time.Duration(s.TimeWindowMinutes) * time.Minute
}

// DefaultSnapshot returns the seed-data defaults.
func DefaultSnapshot() Snapshot {
	return Snapshot{
		TimeWindowMinutes:     DefaultTimeWindowMinutes,
		NameSimilarityPercent: DefaultNameSimilarityPercent,
	}
}
