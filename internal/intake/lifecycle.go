package intake

import (
	"fmt"

	"github.com/BTreeMap/PsychIntake/internal/models"
)

// transitions lists the legal lifecycle moves. finished is terminal. A paused
// session whose resume failed falls back to initializing so a new one can
// be started.
var transitions = map[models.LifecycleState][]models.LifecycleState{
	models.StateInitializing: {models.StateActive},
	models.StateActive:       {models.StatePaused, models.StateFinished},
	models.StatePaused:       {models.StateActive, models.StateInitializing},
	models.StateFinished:     nil,
}

// lifecycle is the session state plus the busy substate that marks a request
// in flight. Pausing requires not busy, and a paused session never starts a
// request, so paused and busy are never both set.
type lifecycle struct {
	state models.LifecycleState
	busy  bool
}

func newLifecycle() lifecycle {
	return lifecycle{state: models.StateInitializing}
}

func canTransition(from, to models.LifecycleState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (l *lifecycle) transition(to models.LifecycleState) error {
	if l.state == to {
		return nil
	}
	if !canTransition(l.state, to) {
		return fmt.Errorf("%w: %s to %s", models.ErrInvalidTransition, l.state, to)
	}
	if to == models.StatePaused && l.busy {
		return models.ErrBusy
	}
	l.state = to
	return nil
}

// begin marks a request in flight. allowed lists the states the request may
// start from.
func (l *lifecycle) begin(allowed ...models.LifecycleState) error {
	if l.busy {
		return models.ErrBusy
	}
	for _, s := range allowed {
		if l.state == s {
			l.busy = true
			return nil
		}
	}
	if l.state == models.StateInitializing {
		return models.ErrNoSession
	}
	return fmt.Errorf("%w: cannot act while %s", models.ErrInvalidTransition, l.state)
}

func (l *lifecycle) end() {
	l.busy = false
}
