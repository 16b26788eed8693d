package dispatch

import (
	"strings"

	"milkrun/internal/model"
)

// Event drives an assignment from one state to the next.
type Event string

const (
	EventAccept       Event = "accept"
	EventReject       Event = "reject"
	EventPickup       Event = "pickup"
	EventStartTransit Event = "start_transit"
	EventDeliver      Event = "deliver"
)

type edge struct {
	from  model.AssignmentStatus
	event Event
}

var transitions = map[edge]model.AssignmentStatus{
	{model.AssignmentAssigned, EventAccept}:       model.AssignmentAccepted,
	{model.AssignmentAssigned, EventReject}:       model.AssignmentCancelled,
	{model.AssignmentAccepted, EventPickup}:       model.AssignmentPickedUp,
	{model.AssignmentPickedUp, EventStartTransit}: model.AssignmentInTransit,
	{model.AssignmentInTransit, EventDeliver}:     model.AssignmentDelivered,
}

// ParseEvent accepts the event names used in URLs ("start-transit") and payloads ("start_transit").
func ParseEvent(s string) (Event, bool) {
	ev := Event(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	switch ev {
	case EventAccept, EventReject, EventPickup, EventStartTransit, EventDeliver:
		return ev, true
	}
	return "", false
}

// Next returns the state reached from `from` on ev. Terminal states accept nothing.
func Next(from model.AssignmentStatus, ev Event) (model.AssignmentStatus, error) {
	to, ok := transitions[edge{from, ev}]
	if !ok {
		return "", &TransitionError{From: from, Event: ev}
	}
	return to, nil
}

// orderStatusAfter is the order status an assignment's terminal step writes back.
func orderStatusAfter(ev Event) (string, bool) {
	switch ev {
	case EventReject:
		return model.OrderPending, true
	case EventDeliver:
		return model.OrderDelivered, true
	}
	return "", false
}

// driverStatusFor reassesses availability from a recounted load. Offline is sticky.
func driverStatusFor(current model.DriverStatus, load, limit int) model.DriverStatus {
	if current == model.DriverOffline {
		return model.DriverOffline
	}
	if load >= limit {
		return model.DriverBusy
	}
	return model.DriverAvailable
}
