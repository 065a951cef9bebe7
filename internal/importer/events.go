package importer

// EventKind names a notification emitted by an Importer.
type EventKind string

const (
	EventReadyStateChanged EventKind = "readyStateChanged"
	EventIndexingComplete  EventKind = "indexing:complete"
	EventIndexingFailed    EventKind = "indexing:failed"
	EventSuccess           EventKind = "success"
	EventFailed            EventKind = "failed"
	EventComplete          EventKind = "complete"
	EventRefResolved       EventKind = "ref:resolved"
	EventRefUnresolved     EventKind = "ref:unresolved"
)

// Event is delivered synchronously to every observer registered with
// WithObserver. Observers must not block; use Done or Wait to wait for
// completion.
type Event struct {
	Kind     EventKind
	Importer *Importer
	State    ReadyState
	Err      error
	Model    *Model
	// Ref is the $ref string for ref:* events.
	Ref string
}

func (imp *Importer) emit(ev Event) {
	ev.Importer = imp
	for _, fn := range imp.observers {
		fn(ev)
	}
}
