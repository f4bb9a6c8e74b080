/*
machine.go - Leave application state machine

TRANSITIONS:

  event    from                         to        effects (in order)
  -------  ---------------------------  --------  ------------------
  approve  pending                      approved  sign
  reject   pending                      rejected  sign, reverse
  revise   pending, approved, rejected  pending   reapply
  cancel   pending, approved, rejected  canceled  reverse

  Creation is implicit: a new application enters pending with its hours
  already deducted and a forward adjustment written.

GUARD:
  Next() is consulted before any side effect. An event missing from the
  table for the current status yields InvalidTransitionError and nothing
  else happens.
*/
package leave

type Event string

const (
	EventCreate  Event = "create"
	EventApprove Event = "approve"
	EventReject  Event = "reject"
	EventRevise  Event = "revise"
	EventCancel  Event = "cancel"
)

// Effect is a side effect run by the service while applying a transition.
type Effect int

const (
	// EffectSign stamps approval provenance for the acting manager.
	EffectSign Effect = iota
	// EffectReverse adds back the most recent forward adjustment.
	EffectReverse
	// EffectReapply adds back the most recent forward adjustment, then deducts
	// hours recomputed from the revised interval.
	EffectReapply
)

func (e Effect) String() string {
	switch e {
	case EffectSign:
		return "sign"
	case EffectReverse:
		return "reverse"
	case EffectReapply:
		return "reapply"
	}
	return "unknown"
}

// Transition is the target status and the ordered effects of an event.
type Transition struct {
	To      Status
	Effects []Effect
}

var transitions = map[Status]map[Event]Transition{
	StatusPending: {
		EventApprove: {To: StatusApproved, Effects: []Effect{EffectSign}},
		EventReject:  {To: StatusRejected, Effects: []Effect{EffectSign, EffectReverse}},
		EventRevise:  {To: StatusPending, Effects: []Effect{EffectReapply}},
		EventCancel:  {To: StatusCanceled, Effects: []Effect{EffectReverse}},
	},
	StatusApproved: {
		EventRevise: {To: StatusPending, Effects: []Effect{EffectReapply}},
		EventCancel: {To: StatusCanceled, Effects: []Effect{EffectReverse}},
	},
	StatusRejected: {
		EventRevise: {To: StatusPending, Effects: []Effect{EffectReapply}},
		EventCancel: {To: StatusCanceled, Effects: []Effect{EffectReverse}},
	},
	StatusCanceled: {},
}

// Next returns the transition for event from status.
func Next(from Status, event Event) (Transition, error) {
	t, ok := transitions[from][event]
	if !ok {
		return Transition{}, &InvalidTransitionError{From: from, Event: event}
	}
	return t, nil
}

// Allowed lists the events accepted from a status.
func Allowed(from Status) []Event {
	var events []Event
	for _, ev := range []Event{EventApprove, EventReject, EventRevise, EventCancel} {
		if _, ok := transitions[from][ev]; ok {
			events = append(events, ev)
		}
	}
	return events
}
