package engine

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"example.com/syncengine/internal/api"
	"example.com/syncengine/internal/domain"
	"example.com/syncengine/internal/idempotency"
	"example.com/syncengine/internal/value"
)

// ErrNoActiveCanvas is returned when an action arrives before Bootstrap.
var ErrNoActiveCanvas = errors.New("no active canvas")

// CanvasSession owns one canvas aggregate and its OCC discipline: actions
// carry the last reconciled version as expected_version, the authority
// rejects stale ones with a structured conflict, and the session surfaces
// that conflict instead of merging.
type CanvasSession struct {
	client *api.Client
	keys   *idempotency.Keys
	logger *log.Logger
	notify *notifier
	dsp    *dispatcher
	actor  string

	mu     sync.Mutex
	canvas *domain.Canvas
}

// NewCanvasSession constructs a session. actor is the "by" provenance tag on
// every submitted action.
func NewCanvasSession(client *api.Client, keys *idempotency.Keys, actor string, opts ...SessionOption) *CanvasSession {
	cfg := newSessionConfig("[canvas] ", opts)
	s := &CanvasSession{
		client: client,
		keys:   keys,
		logger: cfg.logger,
		notify: newNotifier(cfg.eventBuffer),
		actor:  actor,
	}
	s.dsp = newDispatcher("canvas", keys, cfg.journal, s.notify, cfg.logger)
	return s
}

// Events exposes the change-notification channel.
func (s *CanvasSession) Events() <-chan ChangeEvent {
	return s.notify.Events()
}

// Pending reports actions not yet acknowledged.
func (s *CanvasSession) Pending() int {
	return s.dsp.Pending()
}

// SyncOnce synchronously drains the pending queue.
func (s *CanvasSession) SyncOnce(ctx context.Context) error {
	return s.dsp.SyncOnce(ctx)
}

// Run drives background delivery until the context is cancelled.
func (s *CanvasSession) Run(ctx context.Context, pollInterval time.Duration) {
	s.dsp.Run(ctx, pollInterval)
}

// Canvas returns the local projection.
func (s *CanvasSession) Canvas() *domain.Canvas {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canvas
}

// Version returns the last reconciled canvas version.
func (s *CanvasSession) Version() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.canvas == nil {
		return 0
	}
	return s.canvas.Version
}

// Bootstrap creates the canvas aggregate on the authority.
func (s *CanvasSession) Bootstrap(ctx context.Context, userID, purpose string) error {
	s.mu.Lock()
	if s.canvas != nil {
		s.mu.Unlock()
		return errors.New("canvas already bootstrapped")
	}
	s.mu.Unlock()

	resp, err := s.client.BootstrapCanvas(ctx, api.BootstrapCanvasRequest{UserID: userID, Purpose: purpose})
	if err != nil {
		return err
	}
	if resp.Data == nil || resp.Data.CanvasID == "" {
		return errors.New("bootstrap response missing canvas id")
	}

	s.mu.Lock()
	s.canvas = &domain.Canvas{ID: resp.Data.CanvasID, Phase: domain.CanvasPhaseActive}
	s.mu.Unlock()
	return nil
}

// Attach binds the session to a canvas that already exists on the authority
// and hydrates the projection from its current snapshot.
func (s *CanvasSession) Attach(ctx context.Context, canvasID string) error {
	s.mu.Lock()
	if s.canvas != nil {
		s.mu.Unlock()
		return errors.New("canvas already bootstrapped")
	}
	s.canvas = &domain.Canvas{ID: canvasID, Phase: domain.CanvasPhaseActive}
	s.mu.Unlock()
	return s.Refresh(ctx)
}

// ActionInput describes one canvas intent.
type ActionInput struct {
	Type    domain.ActionType
	CardID  string
	Payload map[string]value.Value
	// Unconditional skips the expected_version precondition, making the
	// action last-writer-wins.
	Unconditional bool
}

// Do applies the action optimistically and queues it for delivery. When the
// action is conditional the last reconciled version rides along as
// expected_version; a mismatch at the authority comes back as a conflict
// event and the caller refreshes before retrying.
func (s *CanvasSession) Do(ctx context.Context, input ActionInput) (string, error) {
	s.mu.Lock()
	if s.canvas == nil {
		s.mu.Unlock()
		return "", ErrNoActiveCanvas
	}

	action := domain.Action{
		Type:            input.Type,
		CardID:          input.CardID,
		Payload:         input.Payload,
		By:              s.actor,
		ClientTimestamp: time.Now().UTC(),
	}
	if err := s.canvas.ValidateAction(action); err != nil {
		s.mu.Unlock()
		return "", err
	}

	canvasID := s.canvas.ID
	action.IdempotencyKey = s.keys.Generate("canvas_action", canvasID, input.Type.String(), input.CardID)
	if !input.Unconditional {
		expected := s.canvas.Version
		action.ExpectedVersion = &expected
	}
	s.canvas.ApplyLocally(action)
	s.mu.Unlock()

	s.notify.publish(ChangeEvent{EntityID: canvasID, Kind: EventApplied, IdempotencyKey: action.IdempotencyKey})

	req := api.ApplyActionRequest{
		CanvasID:        canvasID,
		ExpectedVersion: action.ExpectedVersion,
		Action: api.ActionEnvelope{
			Type:           action.Type.String(),
			CardID:         action.CardID,
			Payload:        action.Payload,
			By:             action.By,
			IdempotencyKey: action.IdempotencyKey,
		},
	}

	var payload []byte
	if len(action.Payload) > 0 {
		var err error
		if payload, err = value.EncodeMap(action.Payload); err != nil {
			s.logger.Printf("encode journal payload for %s: %v", action.IdempotencyKey, err)
		}
	}
	s.dsp.enqueue(ctx, &pendingOp{
		key:      action.IdempotencyKey,
		kind:     action.Type.String(),
		entityID: canvasID,
		submit: func(ctx context.Context) error {
			resp, err := s.client.ApplyAction(ctx, req)
			if err != nil {
				return err
			}
			s.reconcile(resp.Data)
			return nil
		},
	}, payload)
	return action.IdempotencyKey, nil
}

// Refresh re-fetches the authoritative snapshot, re-deriving the version
// after a conflict.
func (s *CanvasSession) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.canvas == nil {
		s.mu.Unlock()
		return ErrNoActiveCanvas
	}
	canvasID := s.canvas.ID
	s.mu.Unlock()

	resp, err := s.client.GetCanvasState(ctx, api.GetCanvasStateRequest{CanvasID: canvasID})
	if err != nil {
		return err
	}
	s.reconcile(resp.Data)
	return nil
}

// reconcile folds an authoritative canvas payload into the projection,
// skipping snapshots older than one already applied.
func (s *CanvasSession) reconcile(data *api.CanvasData) {
	if data == nil || data.Version == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.canvas == nil {
		return
	}
	if !s.canvas.Reconcile(*data.Version, data.ChangedCards) {
		staleResponses.Inc()
		s.logger.Printf("stale canvas response: version %d already superseded by %d", *data.Version, s.canvas.Version)
	}
}
