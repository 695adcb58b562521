package core

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/consoden/dobcore/pkg/dob/metrics"
	"github.com/consoden/dobcore/pkg/dob/types"
)

// missedPeriodsForDeath is the number of consecutive missing announcements
// after which a peer is considered dead and forgotten, per §4.4.
const missedPeriodsForDeath = 3

type peerRecord struct {
	typeID       types.NodeTypeID
	priority     uint32
	lastSeenTick uint64
}

// priorityTuple is (type priority, node id); comparisons follow §4.4:
// highest type priority wins, ties broken by the *smaller* node id.
type priorityTuple struct {
	priority uint32
	id       types.NodeID
}

// higherThan reports whether t is strictly preferred over other for
// leadership.
func (t priorityTuple) higherThan(other priorityTuple) bool {
	if t.priority != other.priority {
		return t.priority > other.priority
	}
	return t.id < other.id
}

// Coordinator runs the fail-stop leader election of §4.4 and owns the
// authoritative state blob while it is elected.
type Coordinator struct {
	log       types.Logger
	strand    *Strand
	substrate Substrate

	localID       types.NodeID
	localBirth    uint64
	localTypeID   types.NodeTypeID
	localPriority uint32
	senderID      types.NodeID

	nodeTypeIDs []types.NodeTypeID

	announceTimer  *PeriodicTimer
	announcePeriod time.Duration

	peersMutex  sync.Mutex
	peers       map[types.NodeID]*peerRecord
	currentTick uint64

	elected int32 // atomic bool

	stateMutex sync.Mutex
	state      []byte

	metrics *metrics.Collectors
}

// SetMetrics attaches the collectors C4's election state is reported
// through. Calling it is optional; a Coordinator with no metrics attached
// behaves identically, just without the Elected gauge.
func (c *Coordinator) SetMetrics(m *metrics.Collectors) {
	c.metrics = m
}

// NewCoordinator constructs a Coordinator for the local node identified by
// localID/localBirth/localTypeID/localPriority, announcing over substrate
// to every node type in nodeTypeIDs every announcePeriod.
func NewCoordinator(
	localID types.NodeID,
	localBirth uint64,
	localTypeID types.NodeTypeID,
	localPriority uint32,
	nodeTypeIDs []types.NodeTypeID,
	substrate Substrate,
	announcePeriod time.Duration,
	log types.Logger,
) *Coordinator {
	c := &Coordinator{
		log:            log,
		strand:         NewStrand(256),
		substrate:      substrate,
		localID:        localID,
		localBirth:     localBirth,
		localTypeID:    localTypeID,
		localPriority:  localPriority,
		senderID:       localID,
		nodeTypeIDs:    nodeTypeIDs,
		announcePeriod: announcePeriod,
		peers:          make(map[types.NodeID]*peerRecord),
	}
	c.announceTimer = NewPeriodicTimer(c.strand, announcePeriod, c.onAnnounceTick, log)
	return c
}

// Start begins announcing and processing.
func (c *Coordinator) Start() {
	c.announceTimer.Start()
	// A lone coordinator with no peers is trivially elected.
	c.recomputeElected()
}

// Stop halts announcements.
func (c *Coordinator) Stop() {
	c.announceTimer.Stop()
	c.strand.Stop()
}

func (c *Coordinator) onAnnounceTick(status TimerStatus) {
	if status == StatusCancelled {
		return
	}

	c.peersMutex.Lock()
	c.currentTick++
	tick := c.currentTick
	for id, peer := range c.peers {
		if tick-peer.lastSeenTick >= missedPeriodsForDeath {
			delete(c.peers, id)
			c.log.Infof("coordinator: peer %d presumed dead after %d missed announcements", id, missedPeriodsForDeath)
		}
	}
	c.peersMutex.Unlock()

	c.recomputeElected()

	announcement := Announcement{
		NodeID:    c.localID,
		BirthTime: c.localBirth,
		TypeID:    c.localTypeID,
		Priority:  c.localPriority,
	}
	payload := EncodeAnnouncement(announcement)
	for _, nodeType := range c.nodeTypeIDs {
		if err := c.substrate.SendToNodeType(nodeType, payload, c.senderID); err != nil {
			// Not retried; the next tick will announce again.
			c.log.Warnf("coordinator: failed announcing to node type %d: %v", nodeType, err)
		}
	}
}

// OnAnnouncement must be called (typically dispatched onto the
// coordinator's strand by the owning Node) whenever an Announcement
// arrives from the substrate.
func (c *Coordinator) OnAnnouncement(senderID types.NodeID, a Announcement) {
	c.strand.Dispatch(func() {
		c.peersMutex.Lock()
		// Only onAnnounceTick advances currentTick: it is the coordinator's
		// notion of elapsed announcement periods. An arriving announcement
		// just refreshes lastSeenTick against whatever tick is current, it
		// must not itself advance time, or concurrently-live peers would
		// inflate the tick rate and shrink the missedPeriodsForDeath window.
		tick := c.currentTick
		c.peers[senderID] = &peerRecord{
			typeID:       a.TypeID,
			priority:     a.Priority,
			lastSeenTick: tick,
		}
		c.peersMutex.Unlock()

		c.recomputeElected()
	})
}

// ReportNodeDown forgets a peer immediately, used when C2 reports that the
// process backing a local cluster member has exited; this triggers
// re-election without waiting out the missed-announcement window.
func (c *Coordinator) ReportNodeDown(id types.NodeID) {
	c.strand.Dispatch(func() {
		c.peersMutex.Lock()
		delete(c.peers, id)
		c.peersMutex.Unlock()
		c.recomputeElected()
	})
}

func (c *Coordinator) recomputeElected() {
	local := priorityTuple{priority: c.localPriority, id: c.localID}

	c.peersMutex.Lock()
	best := local
	for id, peer := range c.peers {
		candidate := priorityTuple{priority: peer.priority, id: id}
		if candidate.higherThan(best) {
			best = candidate
		}
	}
	c.peersMutex.Unlock()

	isElected := best == local
	if isElected {
		atomic.StoreInt32(&c.elected, 1)
	} else {
		atomic.StoreInt32(&c.elected, 0)
	}

	if c.metrics != nil {
		if isElected {
			c.metrics.Elected.Set(1)
		} else {
			c.metrics.Elected.Set(0)
		}
	}
}

// IsElected reports whether this node currently believes it is the leader.
func (c *Coordinator) IsElected() bool {
	return atomic.LoadInt32(&c.elected) == 1
}

// SetState replaces the authoritative state blob. Per §5, only the
// coordinator's own strand may mutate it.
func (c *Coordinator) SetState(state []byte) {
	c.strand.Dispatch(func() {
		c.stateMutex.Lock()
		defer c.stateMutex.Unlock()
		c.state = append([]byte(nil), state...)
	})
}

// PerformOnStateMessage hands callback a buffer of exactly
// len(state)+trailerBytes bytes, holding the state lock for the duration of
// the call. The callback must not retain the buffer beyond the call, nor
// dispatch to another strand while it runs, per §5.
func (c *Coordinator) PerformOnStateMessage(trailerBytes int, callback func(buf []byte)) {
	c.stateMutex.Lock()
	defer c.stateMutex.Unlock()
	buf := make([]byte, len(c.state)+trailerBytes)
	copy(buf, c.state)
	callback(buf)
}
