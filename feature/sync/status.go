package sync

import (
	"github.com/mendersoftware/iot-manager/core/devauth"
	"github.com/mendersoftware/iot-manager/core/iothub"
)

// State is the consistency classification of one device for one run.
// It is a pure function of the two fetched remote statuses and is
// recomputed every run, never cached.
type State int

const (
	// StateInvalid marks a combination outside the classification table.
	// It cannot be produced from well-formed remote responses; the engine
	// logs and skips such a device instead of failing the run.
	StateInvalid State = iota
	// StateConsistentEnabled: auth accepted, twin enabled. No action.
	StateConsistentEnabled
	// StateConsistentDisabled: auth rejected, twin disabled or absent.
	// No action.
	StateConsistentDisabled
	// StateNeedsEnable: auth accepted, twin disabled.
	StateNeedsEnable
	// StateNeedsDisable: auth rejected, twin enabled.
	StateNeedsDisable
	// StateNeedsProvision: auth accepted, no twin.
	StateNeedsProvision
	// StatePruneCandidate: no authentication record; the twin, if any,
	// is removed from the hub.
	StatePruneCandidate
)

var stateNames = map[State]string{
	StateInvalid:            "invalid",
	StateConsistentEnabled:  "consistent-enabled",
	StateConsistentDisabled: "consistent-disabled",
	StateNeedsEnable:        "needs-enable",
	StateNeedsDisable:       "needs-disable",
	StateNeedsProvision:     "needs-provision",
	StatePruneCandidate:     "prune-candidate",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "invalid"
}

// Consistent reports whether the state requires no corrective action.
func (s State) Consistent() bool {
	return s == StateConsistentEnabled || s == StateConsistentDisabled
}

// Classify maps the remote auth status and hub twin state of a device onto
// its consistency state. hub is only meaningful when hasTwin is set.
func Classify(auth devauth.Status, hub iothub.TwinStatus, hasTwin bool) State {
	switch auth {
	case devauth.StatusAccepted:
		if !hasTwin {
			return StateNeedsProvision
		}
		switch hub {
		case iothub.StatusEnabled:
			return StateConsistentEnabled
		case iothub.StatusDisabled:
			return StateNeedsEnable
		}
		return StateInvalid
	case devauth.StatusRejected:
		if !hasTwin {
			// nothing to disable
			return StateConsistentDisabled
		}
		switch hub {
		case iothub.StatusEnabled:
			return StateNeedsDisable
		case iothub.StatusDisabled:
			return StateConsistentDisabled
		}
		return StateInvalid
	case devauth.StatusNoAuth:
		return StatePruneCandidate
	}
	return StateInvalid
}
