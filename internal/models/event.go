package models

import "time"

// Event is a timestamped fact from an external domain source.
type Event struct {
	Type       string                 `json:"type"`
	Fields     map[string]interface{} `json:"fields"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// Field returns the named field and whether it was present.
func (e Event) Field(name string) (interface{}, bool) {
	if e.Fields == nil {
		return nil, false
	}
	v, ok := e.Fields[name]
	return v, ok
}
