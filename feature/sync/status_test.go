package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mendersoftware/iot-manager/core/devauth"
	"github.com/mendersoftware/iot-manager/core/iothub"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name    string
		auth    devauth.Status
		hub     iothub.TwinStatus
		hasTwin bool
		state   State
	}{{
		name:    "accepted enabled",
		auth:    devauth.StatusAccepted,
		hub:     iothub.StatusEnabled,
		hasTwin: true,
		state:   StateConsistentEnabled,
	}, {
		name:    "accepted disabled",
		auth:    devauth.StatusAccepted,
		hub:     iothub.StatusDisabled,
		hasTwin: true,
		state:   StateNeedsEnable,
	}, {
		name:  "accepted absent",
		auth:  devauth.StatusAccepted,
		state: StateNeedsProvision,
	}, {
		name:    "rejected enabled",
		auth:    devauth.StatusRejected,
		hub:     iothub.StatusEnabled,
		hasTwin: true,
		state:   StateNeedsDisable,
	}, {
		name:    "rejected disabled",
		auth:    devauth.StatusRejected,
		hub:     iothub.StatusDisabled,
		hasTwin: true,
		state:   StateConsistentDisabled,
	}, {
		name:  "rejected absent",
		auth:  devauth.StatusRejected,
		state: StateConsistentDisabled,
	}, {
		name:    "noauth enabled",
		auth:    devauth.StatusNoAuth,
		hub:     iothub.StatusEnabled,
		hasTwin: true,
		state:   StatePruneCandidate,
	}, {
		name:    "noauth disabled",
		auth:    devauth.StatusNoAuth,
		hub:     iothub.StatusDisabled,
		hasTwin: true,
		state:   StatePruneCandidate,
	}, {
		name:  "noauth absent",
		auth:  devauth.StatusNoAuth,
		state: StatePruneCandidate,
	}, {
		name:    "accepted unknown twin status",
		auth:    devauth.StatusAccepted,
		hub:     iothub.TwinStatus("frozen"),
		hasTwin: true,
		state:   StateInvalid,
	}, {
		name:    "unknown auth status",
		auth:    devauth.Status("limbo"),
		hub:     iothub.StatusEnabled,
		hasTwin: true,
		state:   StateInvalid,
	}}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.state, Classify(tc.auth, tc.hub, tc.hasTwin))
		})
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "needs-provision", StateNeedsProvision.String())
	assert.Equal(t, "invalid", State(42).String())
	assert.True(t, StateConsistentDisabled.Consistent())
	assert.False(t, StatePruneCandidate.Consistent())
}
