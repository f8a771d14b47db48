package order

import (
	"shoemart_back_end/internal/apperr"
	"shoemart_back_end/internal/models"
)

// exceptions end fulfilment early and are reachable from any open state.
var exceptions = []models.ItemStatus{models.ItemCancelled, models.ItemRTO, models.ItemLost}

// Transitions is the table of legal item status moves. In strict mode an
// item must pass through every step of the fulfilment sequence. Otherwise
// it may skip ahead but never go back.
type Transitions struct {
	strict  bool
	allowed map[models.ItemStatus]map[models.ItemStatus]bool
}

func NewTransitions(strict bool) Transitions {
	t := Transitions{strict: strict, allowed: map[models.ItemStatus]map[models.ItemStatus]bool{}}
	seq := models.FulfillmentSequence
	for i, from := range seq {
		if from.Terminal() {
			continue
		}
		next := map[models.ItemStatus]bool{}
		for j := i + 1; j < len(seq); j++ {
			next[seq[j]] = true
			if strict {
				break
			}
		}
		for _, ex := range exceptions {
			next[ex] = true
		}
		t.allowed[from] = next
	}
	return t
}

func (t Transitions) Strict() bool { return t.strict }

func (t Transitions) Allowed(from, to models.ItemStatus) bool {
	return t.allowed[from][to]
}

// Check returns apperr.ErrInvalidTransition for moves not in the table.
func (t Transitions) Check(from, to models.ItemStatus) error {
	if !t.Allowed(from, to) {
		return apperr.InvalidTransition(string(from), string(to))
	}
	return nil
}

// Next lists the statuses an item in from may move to.
func (t Transitions) Next(from models.ItemStatus) []models.ItemStatus {
	var out []models.ItemStatus
	for _, s := range models.FulfillmentSequence {
		if t.allowed[from][s] {
			out = append(out, s)
		}
	}
	for _, ex := range exceptions {
		if t.allowed[from][ex] {
			out = append(out, ex)
		}
	}
	return out
}
