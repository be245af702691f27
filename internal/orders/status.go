package orders

import (
	"errors"
	"fmt"
	"time"

	"bazar_back_end/internal/models"
)

var (
	ErrUnknownStatus     = errors.New("unknown order status")
	ErrInvalidTransition = errors.New("status transition not allowed")
)

// forward is the fulfillment path. A stage's index doubles as its estimated
// day offset from creation.
var forward = []models.OrderStatus{
	models.StatusPending,
	models.StatusConfirmed,
	models.StatusProcessing,
	models.StatusShipped,
	models.StatusDelivered,
}

func StageIndex(s models.OrderStatus) int {
	for i, st := range forward {
		if st == s {
			return i
		}
	}
	return -1
}

func ValidStatus(s models.OrderStatus) bool {
	return StageIndex(s) >= 0 || IsTerminal(s)
}

// IsTerminal reports whether no transition may leave s.
func IsTerminal(s models.OrderStatus) bool {
	return s == models.StatusCancelled || s == models.StatusRefunded
}

// CanTransition checks one edge of the status graph. Forward moves may skip
// stages. Cancellation is possible until delivery; a refund is possible from
// any non-terminal state, delivered included.
func CanTransition(from, to models.OrderStatus) error {
	if !ValidStatus(to) {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, to)
	}
	if !ValidStatus(from) {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, from)
	}
	if IsTerminal(from) || from == to {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	switch to {
	case models.StatusRefunded:
		return nil
	case models.StatusCancelled:
		if from == models.StatusDelivered {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
		}
		return nil
	}
	if StageIndex(to) <= StageIndex(from) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// Badge is the display hint for a status.
type Badge struct {
	Label string `json:"label"`
	Icon  string `json:"icon"`
	Tone  string `json:"tone"`
}

var badges = map[models.OrderStatus]Badge{
	models.StatusPending:    {Label: "Order placed", Icon: "clock", Tone: "warning"},
	models.StatusConfirmed:  {Label: "Confirmed", Icon: "check-circle", Tone: "info"},
	models.StatusProcessing: {Label: "Processing", Icon: "package", Tone: "info"},
	models.StatusShipped:    {Label: "Shipped", Icon: "truck", Tone: "primary"},
	models.StatusDelivered:  {Label: "Delivered", Icon: "home", Tone: "success"},
	models.StatusCancelled:  {Label: "Cancelled", Icon: "x-circle", Tone: "danger"},
	models.StatusRefunded:   {Label: "Refunded", Icon: "rotate-ccw", Tone: "neutral"},
}

func BadgeFor(s models.OrderStatus) Badge {
	if b, ok := badges[s]; ok {
		return b
	}
	return Badge{Label: string(s), Icon: "help-circle", Tone: "neutral"}
}

type Stage struct {
	Status    models.OrderStatus `json:"status"`
	Label     string             `json:"label"`
	Icon      string             `json:"icon"`
	Complete  bool               `json:"complete"`
	Current   bool               `json:"current"`
	At        *time.Time         `json:"at,omitempty"`
	Estimated bool               `json:"estimated,omitempty"`
}

type Timeline struct {
	Stages     []Stage `json:"stages"`
	Terminated bool    `json:"terminated"`
	Badge      Badge   `json:"badge"`
}

// BuildTimeline renders the forward stages of an order. A passed stage is
// dated from the transition log when the log has it, otherwise at
// createdAt + stage index days and flagged Estimated. A cancelled or refunded
// order only lists the stages it reached before leaving the path.
func BuildTimeline(o *models.Order, log []models.StatusTransition) Timeline {
	recorded := make(map[models.OrderStatus]time.Time, len(log))
	for _, t := range log {
		if _, seen := recorded[t.To]; !seen {
			recorded[t.To] = t.At
		}
	}

	reached := StageIndex(o.Status)
	terminated := IsTerminal(o.Status)
	if terminated {
		reached = 0
		for _, t := range log {
			if t.To == o.Status && StageIndex(t.From) >= 0 {
				reached = StageIndex(t.From)
			}
		}
	}

	tl := Timeline{Terminated: terminated, Badge: BadgeFor(o.Status)}
	last := len(forward) - 1
	if terminated {
		last = reached
	}
	for i := 0; i <= last; i++ {
		st := forward[i]
		b := BadgeFor(st)
		stage := Stage{
			Status:   st,
			Label:    b.Label,
			Icon:     b.Icon,
			Complete: i <= reached,
			Current:  !terminated && i == reached,
		}
		if stage.Complete {
			at, ok := recorded[st]
			if !ok && i == 0 {
				at, ok = o.CreatedAt, true
			}
			if !ok {
				at = o.CreatedAt.AddDate(0, 0, i)
				stage.Estimated = true
			}
			stage.At = &at
		}
		tl.Stages = append(tl.Stages, stage)
	}
	return tl
}
