package importer

import "time"

// ReadyState is the lifecycle position of an Importer. States only move
// forward.
type ReadyState int

const (
	Uninitialized ReadyState = iota
	Initialized
	Running
	Complete
)

var readyStateNames = map[string]ReadyState{
	"uninitialized": Uninitialized,
	"initialized":   Initialized,
	"running":       Running,
	"complete":      Complete,
}

func (s ReadyState) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	case Running:
		return "running"
	case Complete:
		return "complete"
	default:
		return "unknown"
	}
}

// ParseReadyState looks name up in the fixed name table.
func ParseReadyState(name string) (ReadyState, bool) {
	s, ok := readyStateNames[name]
	return s, ok
}

// setReadyState moves the importer to s and notifies observers. Setting the
// current state, a lower state or an unknown value is a no-op. Entering
// Complete closes Done and emits the terminal events.
func (imp *Importer) setReadyState(s ReadyState) ReadyState {
	imp.mu.Lock()
	cur := imp.state
	if s <= cur || s > Complete {
		imp.mu.Unlock()
		return cur
	}
	imp.state = s
	terminal := s == Complete
	err := imp.err
	if terminal {
		imp.finished = time.Now()
		close(imp.done)
	}
	imp.mu.Unlock()

	imp.emit(Event{Kind: EventReadyStateChanged, State: s})
	if !terminal {
		return s
	}
	if err != nil {
		imp.logger.Warn("import failed", "error", err)
		imp.emit(Event{Kind: EventFailed, State: s, Err: err})
	} else {
		imp.logger.Debug("import succeeded", "ids", len(imp.model.IDs))
		imp.emit(Event{Kind: EventSuccess, State: s, Model: imp.model})
	}
	imp.emit(Event{Kind: EventComplete, State: s, Err: err, Model: imp.model})
	return s
}

// setReadyStateByName ignores names missing from the state table.
func (imp *Importer) setReadyStateByName(name string) ReadyState {
	s, ok := ParseReadyState(name)
	if !ok {
		return imp.ReadyState()
	}
	return imp.setReadyState(s)
}
