package reservation

import (
    "fmt"

    "github.com/voltgrid/ev-reservation/internal/model"
)

// Event names a lifecycle trigger.  Both trigger sources, explicit
// API calls and the asynchronous charging-station event feed, are
// funneled through the same Transition function so the two paths can
// never diverge.
type Event string

const (
    // EventCancel is raised by an explicit cancel call from the owner
    // or an admin.
    EventCancel Event = "CANCEL"
    // EventExpire is raised by the expiry sweep when a scheduled
    // reservation's window has fully elapsed without consumption.
    EventExpire Event = "EXPIRE"
    // EventConsume is raised when a transaction starts at the reserved
    // connector with a matching badge inside the window.
    EventConsume Event = "CONSUME"
    // EventComplete is raised when the consuming transaction stops.
    EventComplete Event = "COMPLETE"
)

// Transition returns the status a reservation moves to when ev fires
// in state current.  Invalid transitions return an error; terminal
// states accept no event at all.
func Transition(current string, ev Event) (string, error) {
    switch ev {
    case EventCancel:
        if current == model.StatusScheduled {
            return model.StatusCancelled, nil
        }
    case EventExpire:
        if current == model.StatusScheduled {
            return model.StatusExpired, nil
        }
    case EventConsume:
        if current == model.StatusScheduled {
            return model.StatusInProgress, nil
        }
    case EventComplete:
        if current == model.StatusInProgress {
            return model.StatusCompleted, nil
        }
    }
    return "", fmt.Errorf("no transition for event %s in state %s", ev, current)
}
