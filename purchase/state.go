package purchase

import "fmt"

var validTransitions = map[Status][]Status{
	StatusPending:   {StatusActive, StatusCompleted, StatusFailed, StatusCancelled},
	StatusActive:    {StatusPaused, StatusFailed, StatusCancelled, StatusCompleted},
	StatusPaused:    {StatusActive, StatusFailed, StatusCancelled},
	StatusFailed:    {StatusActive, StatusCancelled},
	StatusCancelled: {},
	StatusCompleted: {},
}

// Terminal reports whether no further transitions are allowed from s
func (s Status) Terminal() bool {
	next, ok := validTransitions[s]
	return ok && len(next) == 0
}

// Valid reports whether s is a known lifecycle state
func (s Status) Valid() bool {
	_, ok := validTransitions[s]
	return ok
}

// Transition validates moving a purchase from one state to another. Moving to
// the current state is a no-op so replayed webhook deliveries stay harmless
func Transition(from, to Status) error {
	if !from.Valid() {
		return fmt.Errorf("unknown purchase status %q", from)
	}
	if !to.Valid() {
		return fmt.Errorf("unknown purchase status %q", to)
	}
	if from == to {
		return nil
	}
	for _, allowed := range validTransitions[from] {
		if to == allowed {
			return nil
		}
	}
	return fmt.Errorf("purchase cannot move from %q to %q", from, to)
}
