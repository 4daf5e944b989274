package types

// Event represents a typed event emitted after a state transition commits.
type Event struct {
	Type       string            `json:"type"`
	Seq        uint64            `json:"seq"`
	Time       int64             `json:"time"`
	Attributes map[string]string `json:"attributes"`
}

// Clone returns a copy whose attribute map can be mutated independently.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Attributes = make(map[string]string, len(e.Attributes))
	for k, v := range e.Attributes {
		clone.Attributes[k] = v
	}
	return &clone
}
