package engine

// EventKind classifies a state-change notification.
type EventKind string

const (
	// EventApplied fires after a local optimistic apply, before any network call.
	EventApplied EventKind = "applied"
	// EventSynced fires after a successful reconciliation.
	EventSynced EventKind = "synced"
	// EventSyncFailed fires when the retry budget is exhausted; the operation
	// stays queued and local state is untouched.
	EventSyncFailed EventKind = "sync_failed"
	// EventRejected fires on a terminal rejection; the operation is dropped.
	EventRejected EventKind = "rejected"
	// EventConflict fires on a version-conflict rejection; the caller must
	// refresh before resubmitting.
	EventConflict EventKind = "conflict"
)

// ChangeEvent is published to subscribers on every engine state change. Any
// observer (UI, test harness) can consume it without the engine knowing
// about rendering.
type ChangeEvent struct {
	EntityID       string
	Kind           EventKind
	IdempotencyKey string
	Err            error
}

// notifier fans events out over a buffered channel. Publishing never blocks:
// when the buffer is full the oldest event is dropped in favour of the new
// one, since subscribers only need the latest picture.
type notifier struct {
	ch chan ChangeEvent
}

func newNotifier(buffer int) *notifier {
	if buffer <= 0 {
		buffer = 64
	}
	return &notifier{ch: make(chan ChangeEvent, buffer)}
}

func (n *notifier) publish(ev ChangeEvent) {
	for {
		select {
		case n.ch <- ev:
			return
		default:
		}
		select {
		case <-n.ch:
		default:
		}
	}
}

// Events exposes the subscription channel.
func (n *notifier) Events() <-chan ChangeEvent {
	return n.ch
}
