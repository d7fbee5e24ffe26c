package flow

import "time"

type TimelineEventType string

const (
	EventStatusChanged TimelineEventType = "status_changed"
	EventAddedToBoard  TimelineEventType = "added_to_board"
)

// TimelineEvent is one status-related entry from a ticket's event timeline.
// Actor is nil when the board could not attribute the event.
type TimelineEvent struct {
	Type       TimelineEventType
	Actor      *string
	OccurredAt time.Time
}

// LatestStatusActor reduces an oldest-first timeline to the actor responsible
// for the item's current status.
//
// Status-changed events take absolute priority over added-to-board events
// regardless of relative recency; within a type the latest timestamp wins.
// Nil entries and events without an actor are skipped. Returns "" when no
// qualifying event exists.
func LatestStatusActor(events []*TimelineEvent) string {
	var statusActor string
	var statusAt time.Time
	var addedActor string
	var addedAt time.Time

	for _, event := range events {
		if event == nil || event.Actor == nil || *event.Actor == "" {
			continue
		}

		switch event.Type {
		case EventStatusChanged:
			if statusActor == "" || event.OccurredAt.After(statusAt) {
				statusActor = *event.Actor
				statusAt = event.OccurredAt
			}
		case EventAddedToBoard:
			if addedActor == "" || event.OccurredAt.After(addedAt) {
				addedActor = *event.Actor
				addedAt = event.OccurredAt
			}
		}
	}

	if statusActor != "" {
		return statusActor
	}
	return addedActor
}
