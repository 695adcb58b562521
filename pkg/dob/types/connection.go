package types

import "fmt"

// ConnectionState is the lifecycle state of a Connection.
type ConnectionState int

const (
	Open ConnectionState = iota
	Closing
	Closed
)

func (s ConnectionState) String() string {
	switch s {
	case Open:
		return "Open"
	case Closing:
		return "Closing"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// ConnectionID is totally ordered lexicographically by (NodeID, ContextID,
// Counter). Counter is monotonic per node.
type ConnectionID struct {
	NodeID    int64
	ContextID int64
	Counter   int64
}

// Less implements the total lexicographic order required by §3.
func (c ConnectionID) Less(other ConnectionID) bool {
	if c.NodeID != other.NodeID {
		return c.NodeID < other.NodeID
	}
	if c.ContextID != other.ContextID {
		return c.ContextID < other.ContextID
	}
	return c.Counter < other.Counter
}

func (c ConnectionID) String() string {
	return fmt.Sprintf("%d:%d:%d", c.NodeID, c.ContextID, c.Counter)
}

// Connection is owned by the arbiter while Open; it is destroyed once it is
// Closed and all references to it have dropped.
type Connection struct {
	ID      ConnectionID
	Name    string
	Pid     int32
	Context int64
	State   ConnectionState
}
