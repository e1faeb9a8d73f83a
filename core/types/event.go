package types

// Event is the flattened form of a ledger event: a type tag plus string
// attributes, as stored in the journal and sent to stream subscribers.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Attribute returns the value stored under key, or "" when absent.
func (e *Event) Attribute(key string) string {
	if e == nil {
		return ""
	}
	return e.Attributes[key]
}
