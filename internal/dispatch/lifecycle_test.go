package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"milkrun/internal/model"
)

var allStatuses = []model.AssignmentStatus{
	model.AssignmentAssigned, model.AssignmentAccepted, model.AssignmentPickedUp,
	model.AssignmentInTransit, model.AssignmentDelivered, model.AssignmentCancelled,
}

var allEvents = []Event{EventAccept, EventReject, EventPickup, EventStartTransit, EventDeliver}

func TestNextFollowsTransitionTable(t *testing.T) {
	want := map[model.AssignmentStatus]map[Event]model.AssignmentStatus{
		model.AssignmentAssigned:  {EventAccept: model.AssignmentAccepted, EventReject: model.AssignmentCancelled},
		model.AssignmentAccepted:  {EventPickup: model.AssignmentPickedUp},
		model.AssignmentPickedUp:  {EventStartTransit: model.AssignmentInTransit},
		model.AssignmentInTransit: {EventDeliver: model.AssignmentDelivered},
	}
	for _, from := range allStatuses {
		for _, ev := range allEvents {
			to, err := Next(from, ev)
			if exp, ok := want[from][ev]; ok {
				require.NoError(t, err, "%s + %s", from, ev)
				assert.Equal(t, exp, to)
				continue
			}
			var te *TransitionError
			require.ErrorAs(t, err, &te, "%s + %s", from, ev)
			assert.Equal(t, from, te.From)
			assert.Equal(t, ev, te.Event)
		}
	}
}

func TestParseEvent(t *testing.T) {
	ev, ok := ParseEvent("start-transit")
	assert.True(t, ok)
	assert.Equal(t, EventStartTransit, ev)
	ev, ok = ParseEvent(" Deliver ")
	assert.True(t, ok)
	assert.Equal(t, EventDeliver, ev)
	_, ok = ParseEvent("teleport")
	assert.False(t, ok)
}

func TestDriverStatusFor(t *testing.T) {
	assert.Equal(t, model.DriverBusy, driverStatusFor(model.DriverAvailable, 5, 5))
	assert.Equal(t, model.DriverAvailable, driverStatusFor(model.DriverBusy, 4, 5))
	assert.Equal(t, model.DriverOffline, driverStatusFor(model.DriverOffline, 0, 5))
}
