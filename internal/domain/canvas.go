package domain

import (
	"errors"

	"example.com/syncengine/internal/value"
)

// ErrCardNotFound is returned by precondition checks for an unknown card.
var ErrCardNotFound = errors.New("card not found")

// CardStatus is the lifecycle state of a canvas card.
type CardStatus string

const (
	CardStatusProposed CardStatus = "proposed"
	CardStatusAccepted CardStatus = "accepted"
	CardStatusRejected CardStatus = "rejected"
)

// CanvasPhase is the aggregate-level state of a canvas session.
type CanvasPhase string

const (
	CanvasPhaseActive   CanvasPhase = "active"
	CanvasPhasePaused   CanvasPhase = "paused"
	CanvasPhaseComplete CanvasPhase = "complete"
)

// Card is one AI-generated card owned by a canvas.
type Card struct {
	ID      string
	Kind    string
	Status  CardStatus
	Payload map[string]value.Value

	localRev uint64
}

// LocalRev reports how many local applies have touched this card.
func (c *Card) LocalRev() uint64 { return c.localRev }

// Canvas is the local optimistic projection of one collaborative canvas.
// Version is authority-derived: it is only written from reconciliation.
type Canvas struct {
	ID      string
	Version int64
	Phase   CanvasPhase
	Cards   []*Card
}

// Card returns the card with the given id, or nil.
func (c *Canvas) Card(cardID string) *Card {
	for _, card := range c.Cards {
		if card.ID == cardID {
			return card
		}
	}
	return nil
}

// ValidateAction checks action preconditions before any network call.
func (c *Canvas) ValidateAction(action Action) error {
	switch action.Type {
	case ActionAcceptProposal, ActionRejectProposal:
		if c.Card(action.CardID) == nil {
			return ErrCardNotFound
		}
		return nil
	case ActionAddInstruction, ActionAddNote, ActionPause, ActionResume,
		ActionComplete, ActionUndo, ActionLogSet:
		return nil
	default:
		return nil
	}
}

// ApplyLocally mutates the projection synchronously, mirroring the workout
// contract: missing targets are no-ops, nothing blocks, nothing fails.
func (c *Canvas) ApplyLocally(action Action) {
	switch action.Type {
	case ActionAcceptProposal:
		if card := c.Card(action.CardID); card != nil {
			card.Status = CardStatusAccepted
			card.localRev++
		}
	case ActionRejectProposal:
		if card := c.Card(action.CardID); card != nil {
			card.Status = CardStatusRejected
			card.localRev++
		}
	case ActionAddNote:
		c.addCard(action, "note")
	case ActionAddInstruction:
		c.addCard(action, "instruction")
	case ActionPause:
		c.Phase = CanvasPhasePaused
	case ActionResume:
		c.Phase = CanvasPhaseActive
	case ActionComplete:
		c.Phase = CanvasPhaseComplete
	case ActionUndo, ActionLogSet:
		// Intent-only actions: the authority decides the effect and the
		// projection converges through reconciliation.
	}
}

func (c *Canvas) addCard(action Action, kind string) {
	if action.CardID == "" {
		return
	}
	if c.Card(action.CardID) != nil {
		return
	}
	c.Cards = append(c.Cards, &Card{
		ID:      action.CardID,
		Kind:    kind,
		Status:  CardStatusProposed,
		Payload: action.Payload,
	})
}

// ChangedCard is the authority's report of one card it touched.
type ChangedCard struct {
	ID      string                 `json:"id"`
	Status  string                 `json:"status"`
	Kind    string                 `json:"kind,omitempty"`
	Payload map[string]value.Value `json:"payload,omitempty"`
}

// Reconcile folds an authoritative response into the projection. It returns
// false, leaving cards untouched, when the response's version is not newer
// than one already applied; network completions may arrive out of order and
// a stale snapshot must not regress the projection.
func (c *Canvas) Reconcile(version int64, changed []ChangedCard) bool {
	if version <= c.Version && c.Version != 0 {
		return false
	}
	c.Version = version

	for _, cc := range changed {
		card := c.Card(cc.ID)
		if card == nil {
			card = &Card{ID: cc.ID, Kind: cc.Kind}
			c.Cards = append(c.Cards, card)
		}
		// Only fields the server explicitly returned are overwritten.
		if cc.Status != "" {
			card.Status = CardStatus(cc.Status)
		}
		if cc.Kind != "" {
			card.Kind = cc.Kind
		}
		if cc.Payload != nil {
			card.Payload = cc.Payload
		}
	}
	return true
}
