package domain

// Registry is the authoritative set of authenticated connections. All
// methods are safe for concurrent use and never perform network I/O.
type Registry interface {
	Register(entry ConnectionEntry) error
	Unregister(id ConnID) (ConnectionEntry, bool)
	Snapshot() []ConnectionEntry
	NameInUse(name string) bool
	Len() int
	Cap() int
}

// Broadcaster fans a plaintext out to every registered connection except
// exclude. A zero exclude targets everyone.
type Broadcaster interface {
	Broadcast(plaintext string, exclude ConnID)
}
