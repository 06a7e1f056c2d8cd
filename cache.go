package sco

// PeerRecord is what the host remembers about a remote device that
// requested or carried a synchronous link.
type PeerRecord struct {
	DevClass   []byte   `json:"devClass"`
	LinkType   LinkType `json:"linkType"`
	LastReason uint8    `json:"lastReason"`
}

// PeerCache persists PeerRecords across runs. Purely informational;
// the host never gates a decision on it.
type PeerCache interface {
	Store(a Addr, r PeerRecord, replace bool) error
	Load(a Addr) (PeerRecord, error)
	Clear() error
}
