package domain

// Event is the categorical outcome of the decision phase. It drives the next
// state the round machine transitions to.
type Event string

const (
	// EventDone means no transaction this cycle: no usable quote, or the
	// round trip did not clear the profit margin.
	EventDone Event = "DONE"
	// EventTransact means the round trip cleared the margin and a flash-swap
	// bundle should be assembled and proposed.
	EventTransact Event = "TRANSACT"
)

// Valid reports whether e is a known event tag.
func (e Event) Valid() bool {
	return e == EventDone || e == EventTransact
}

func (e Event) String() string {
	return string(e)
}
