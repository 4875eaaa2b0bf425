package domain

const (
	EventNameRoomUpdated     = "room.updated"
	EventNameCountdownTicked = "countdown.ticked"
)

// EventRoomUpdated carries the full (host) snapshot after a visible mutation.
type EventRoomUpdated struct {
	Room Room
}

func (EventRoomUpdated) Name() string { return EventNameRoomUpdated }

type EventCountdownTicked struct {
	RoomCode    string
	SecondsLeft int
}

func (EventCountdownTicked) Name() string { return EventNameCountdownTicked }
