package ledger

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"
	"github.com/mcclellann/tradex/pkg/models"
)

const (
	EventDefault = "default" // activo -> en_mora
	EventSettle  = "settle"  // activo | en_mora -> pagado
	EventReopen  = "reopen"  // never legal, a settled loan stays settled
)

// newLifecycle builds the state machine of a loan's cached status.
func newLifecycle(current models.Status) *fsm.FSM {
	return fsm.NewFSM(
		string(current),
		fsm.Events{
			{Name: EventDefault, Src: []string{string(models.StatusActive)}, Dst: string(models.StatusOverdue)},
			{Name: EventSettle, Src: []string{string(models.StatusActive), string(models.StatusOverdue)}, Dst: string(models.StatusPaid)},
		},
		fsm.Callbacks{},
	)
}

// StatusChange records a cached status being replaced by a freshly derived one.
type StatusChange struct {
	Loan  *models.Loan  `json:"loan"`
	From  models.Status `json:"from"`
	To    models.Status `json:"to"`
	Event string        `json:"event"`
	Legal bool          `json:"legal"`
}

// ClassifyTransition names the lifecycle event that moves a loan from its cached
// status to the derived one and checks it against the lifecycle. An error means
// the cached status could never have led to the derived one.
func ClassifyTransition(ctx context.Context, from, to models.Status) (string, error) {
	if from == "" {
		from = models.StatusActive
	}
	if from == to {
		return "", nil
	}

	var event string
	switch to {
	case models.StatusOverdue:
		event = EventDefault
	case models.StatusPaid:
		event = EventSettle
	default:
		event = EventReopen
	}

	machine := newLifecycle(from)
	if err := machine.Event(ctx, event); err != nil {
		return event, fmt.Errorf("illegal status change %s -> %s: %w", from, to, err)
	}
	if machine.Current() != string(to) {
		return event, fmt.Errorf("illegal status change %s -> %s: lifecycle ended in %s", from, to, machine.Current())
	}
	return event, nil
}
