package sampling

import "fmt"

// Reason tags why a sampling decision was made.
type Reason uint8

// Reason values. The set is closed; String() covers all of them.
const (
	ReasonDefault Reason = iota
	ReasonMotionSpike
	ReasonIDSwitch
	ReasonCrowdChange
	ReasonLockOnActive
	ReasonUserSeek
	ReasonStableScene
	ReasonInitialization
)

var reasonNames = [...]string{
	ReasonDefault:        "default",
	ReasonMotionSpike:    "motion_spike",
	ReasonIDSwitch:       "id_switch",
	ReasonCrowdChange:    "crowd_change",
	ReasonLockOnActive:   "lock_on_active",
	ReasonUserSeek:       "user_seek",
	ReasonStableScene:    "stable_scene",
	ReasonInitialization: "initialization",
}

// AllReasons lists every reason in declaration order.
func AllReasons() []Reason {
	out := make([]Reason, len(reasonNames))
	for i := range reasonNames {
		out[i] = Reason(i)
	}
	return out
}

// String returns the snake_case label of the reason.
func (r Reason) String() string {
	if int(r) < len(reasonNames) {
		return reasonNames[r]
	}
	return "unknown"
}

// MarshalText lets reasons appear as labels in JSON payloads.
func (r Reason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// ParseReason is the inverse of String.
func ParseReason(s string) (Reason, error) {
	for i, name := range reasonNames {
		if name == s {
			return Reason(i), nil
		}
	}
	return 0, fmt.Errorf("unknown sampling reason %q", s)
}

// UnmarshalText accepts the labels written by MarshalText.
func (r *Reason) UnmarshalText(text []byte) error {
	parsed, err := ParseReason(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
