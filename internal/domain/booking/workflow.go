package booking

import (
	"github.com/docbook/docbook/internal/domain/identity"
	"github.com/docbook/docbook/pkg/apperr"
)

// Actor is the caller of a transition as the workflow sees it: their role
// and whether they are the appointment's own patient or doctor.
type Actor struct {
	Role  identity.Role
	Owner bool
}

func (a Actor) is(role identity.Role) bool {
	return a.Owner && a.Role == role
}

// transitions maps each state to the states it may move to and who may
// move it there. Terminal states have no entry.
var transitions = map[Status][]struct {
	to      Status
	allowed func(Actor) bool
}{
	StatusPending: {
		{StatusConfirmed, func(a Actor) bool { return a.is(identity.RoleDoctor) }},
		{StatusCancelled, func(a Actor) bool { return a.is(identity.RoleDoctor) || a.is(identity.RolePatient) }},
	},
	StatusConfirmed: {
		{StatusCompleted, func(a Actor) bool { return a.is(identity.RoleDoctor) }},
	},
}

// Transition validates moving an appointment from one status to another on
// behalf of actor.
func Transition(from, to Status, actor Actor) error {
	// Non-owners are not told the appointment's current status.
	if !actor.Owner && actor.Role != identity.RoleAdmin {
		return apperr.InvalidTransition("appointment cannot be moved to %s by the %s", to, actorLabel(actor))
	}
	if from.Terminal() {
		return apperr.InvalidTransition("appointment is already %s", from)
	}
	for _, t := range transitions[from] {
		if t.to != to {
			continue
		}
		if t.allowed(actor) {
			return nil
		}
		return apperr.InvalidTransition("appointment cannot be moved from %s to %s by the %s", from, to, actorLabel(actor))
	}
	return apperr.InvalidTransition("appointment cannot move from %s to %s", from, to)
}

// AllowedTransitions lists the statuses actor may move an appointment in
// state from to, in a fixed order.
func AllowedTransitions(from Status, actor Actor) []Status {
	out := []Status{}
	for _, t := range transitions[from] {
		if t.allowed(actor) {
			out = append(out, t.to)
		}
	}
	return out
}

func actorLabel(a Actor) string {
	switch a.Role {
	case identity.RolePatient, identity.RoleDoctor:
		if !a.Owner {
			return "non-owning " + string(a.Role)
		}
		return string(a.Role)
	case identity.RoleAdmin:
		return "admin"
	}
	return "anonymous caller"
}
