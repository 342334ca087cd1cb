package pagination

// State is a step of the export loop.
type State int

const (
	// StateFetching lists the next page.
	StateFetching State = iota
	// StateNormalizing resolves the page's refs into records.
	StateNormalizing
	// StateWriting persists the page batch.
	StateWriting
	// StateDone is terminal.
	StateDone
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateFetching:
		return "FETCHING"
	case StateNormalizing:
		return "NORMALIZING"
	case StateWriting:
		return "WRITING"
	case StateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}
