package ir

// ElementID identifies a registered action or condition payload.
// The zero value is the null id and is never minted by a registry.
type ElementID string

// ScheduleID identifies a registered schedule.
// The zero value is the null id and is never minted by a registry.
type ScheduleID string

// ID is the constraint satisfied by every registry key.
type ID interface {
	~string
}

// IsZero reports whether id is the null id.
func IsZero[K ID](id K) bool {
	return id == ""
}

// Information is the metadata record stored next to a payload.
//
// It is kept separate from the payload so that lookups by metadata never
// touch the payload and payload replacement never rewrites metadata.
type Information[K ID] struct {
	ID          K      `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}
