package core

import "fmt"

// EventType represents the type of change in a store or repository.
type EventType string

const (
	EventCreate EventType = "CREATE"
	EventModify EventType = "MODIFY"
	EventDelete EventType = "DELETE"
)

// Event represents a change to one record.
type Event struct {
	Type      EventType
	Entity    string
	ID        string
	Timestamp int64 // Unix timestamp
}

func (e Event) String() string {
	return fmt.Sprintf("%s %s/%s", e.Type, e.Entity, e.ID)
}
