package core

import (
	"encoding/json"
	"sync"

	"github.com/consoden/dobcore/pkg/dob/metrics"
	"github.com/consoden/dobcore/pkg/dob/types"
)

// remoteEventKind tags a RemoteConnectionEvent distributed over the
// substrate so peers can mirror local admission decisions.
type remoteEventKind string

const (
	remoteConnect    remoteEventKind = "connect"
	remoteDisconnect remoteEventKind = "disconnect"
)

// RemoteConnectionEvent is the distribution message C7 exchanges between
// connection handlers on different nodes. Its shape is internal
// application data, not one of the fixed layouts of §6, so it is
// marshalled with encoding/json, matching the teacher's transport.go.
type RemoteConnectionEvent struct {
	Kind       remoteEventKind    `json:"kind"`
	Connection *types.Connection `json:"connection,omitempty"`
	ID         *types.ConnectionID `json:"id,omitempty"`
}

// ConnectionHandler is C7: it drives the Arbiter on behalf of the local IPC
// source and the remote distribution source, and owns the unsent queue for
// distribution messages the substrate could not accept immediately.
type ConnectionHandler struct {
	strand      *Strand
	arbiter     *Arbiter
	substrate   Substrate
	nodeTypeIDs []types.NodeTypeID
	senderID    types.NodeID
	log         types.Logger

	requestSlot  *types.ConnectRequestSlot
	responseSlot *types.ConnectResponseSlot

	// requestSignal is the semaphore-signaled queue of §4.7: one signal
	// per inbound request placed into requestSlot.
	requestSignal chan struct{}

	// connectComplete is the "connect-complete" semaphore; signalling is
	// edge-triggered via connectSemHasBeenSignalled.
	connectComplete            chan struct{}
	semMutex                   sync.Mutex
	connectSemHasBeenSignalled bool

	unsentMutex sync.Mutex
	unsent      []types.DistributionMessage

	metrics *metrics.Collectors
}

// SetMetrics attaches the collectors evictions and unsent-queue depth are
// reported through. Optional; a handler with no metrics attached behaves
// identically.
func (h *ConnectionHandler) SetMetrics(m *metrics.Collectors) {
	h.metrics = m
}

// NewConnectionHandler builds a handler backed by requestSlot/responseSlot
// for local IPC, substrate for remote distribution, and arbiter for
// admission decisions.
func NewConnectionHandler(
	arbiter *Arbiter,
	substrate Substrate,
	nodeTypeIDs []types.NodeTypeID,
	senderID types.NodeID,
	requestSlot *types.ConnectRequestSlot,
	responseSlot *types.ConnectResponseSlot,
	log types.Logger,
) *ConnectionHandler {
	return &ConnectionHandler{
		strand:        NewStrand(256),
		arbiter:       arbiter,
		substrate:     substrate,
		nodeTypeIDs:   nodeTypeIDs,
		senderID:      senderID,
		log:           log,
		requestSlot:   requestSlot,
		responseSlot:  responseSlot,
		requestSignal: make(chan struct{}, 256),
		connectComplete: make(chan struct{}, 1),
	}
}

// Stop drains the handler's strand.
func (h *ConnectionHandler) Stop() {
	h.strand.Stop()
}

// SignalRequest is called by the local IPC producer once it has Set a
// request into requestSlot; it posts to the semaphore-signaled queue.
func (h *ConnectionHandler) SignalRequest() {
	select {
	case h.requestSignal <- struct{}{}:
	default:
		h.log.Warnf("connection handler: request signal queue full, caller must retry")
	}
}

// Run processes signalled requests one at a time until stop is closed; the
// owning Node runs it in its own goroutine.
func (h *ConnectionHandler) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-h.requestSignal:
			h.processOneLocalRequest()
		}
	}
}

func (h *ConnectionHandler) processOneLocalRequest() {
	switch h.requestSlot.Kind() {
	case types.ConnectKind:
		payload := h.requestSlot.GetAndClearConnect()
		h.arbiter.Connect(payload.Name, payload.Context, payload.Pid, func(result types.ConnectResult, conn *types.Connection) {
			h.responseSlot.SetConnect(result, conn)
			if result == types.Success {
				h.distributeConnect(*conn)
			}
			h.maybeSignalConnectSemaphore()
		})
	case types.DisconnectKind:
		payload := h.requestSlot.GetAndClearDisconnect()
		h.arbiter.Disconnect(payload.Connection, func(result types.ConnectResult) {
			h.responseSlot.SetDisconnect(result)
			if result == types.Success {
				h.distributeDisconnect(payload.Connection)
			}
			h.maybeSignalConnectSemaphore()
		})
	default:
		h.log.Warnf("connection handler: signalled with an empty request slot")
	}
}

// maybeSignalConnectSemaphore implements the edge-triggered contract of
// §4.7/§9 Open Question (c): signal at most once per inbound request, and
// only if the semaphore has not already been signalled since the consumer
// last drained it.
func (h *ConnectionHandler) maybeSignalConnectSemaphore() {
	h.semMutex.Lock()
	defer h.semMutex.Unlock()
	if h.connectSemHasBeenSignalled {
		return
	}
	select {
	case h.connectComplete <- struct{}{}:
		h.connectSemHasBeenSignalled = true
	default:
	}
}

// ConsumeConnectComplete drains one connect-complete signal if present,
// re-arming the edge trigger for the next request.
func (h *ConnectionHandler) ConsumeConnectComplete() bool {
	select {
	case <-h.connectComplete:
		h.semMutex.Lock()
		h.connectSemHasBeenSignalled = false
		h.semMutex.Unlock()
		return true
	default:
		return false
	}
}

// WaitConnectComplete blocks until the connect-complete semaphore is
// signalled, then re-arms the edge trigger for the next request.
func (h *ConnectionHandler) WaitConnectComplete() {
	<-h.connectComplete
	h.semMutex.Lock()
	h.connectSemHasBeenSignalled = false
	h.semMutex.Unlock()
}

func (h *ConnectionHandler) distributeConnect(conn types.Connection) {
	event := RemoteConnectionEvent{Kind: remoteConnect, Connection: &conn}
	h.distribute(event)
}

func (h *ConnectionHandler) distributeDisconnect(id types.ConnectionID) {
	event := RemoteConnectionEvent{Kind: remoteDisconnect, ID: &id}
	h.distribute(event)
}

func (h *ConnectionHandler) distribute(event RemoteConnectionEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.log.Errorf("connection handler: failed marshalling distribution event: %v", err)
		return
	}
	for _, nodeType := range h.nodeTypeIDs {
		h.sendOrQueue(nodeType, payload)
	}
}

func (h *ConnectionHandler) sendOrQueue(nodeType types.NodeTypeID, payload []byte) {
	if err := h.substrate.SendToNodeType(nodeType, payload, h.senderID); err != nil {
		h.unsentMutex.Lock()
		h.unsent = append(h.unsent, types.DistributionMessage{NodeTypeID: nodeType, Payload: payload})
		depth := len(h.unsent)
		h.unsentMutex.Unlock()
		h.log.Warnf("connection handler: substrate overflow, queued distribution message (unsent depth now %d)", depth)
		if h.metrics != nil {
			h.metrics.UnsentQueueDepth.Set(float64(depth))
		}
	}
}

// HandleUnsent re-drains the unsent queue head-first. It returns false
// while any element remains (the substrate is still refusing), so the
// scheduler can poll again later; it returns true once the queue is empty.
func (h *ConnectionHandler) HandleUnsent() bool {
	h.unsentMutex.Lock()
	defer h.unsentMutex.Unlock()

	for len(h.unsent) > 0 {
		head := h.unsent[0]
		if err := h.substrate.SendToNodeType(head.NodeTypeID, head.Payload, h.senderID); err != nil {
			if h.metrics != nil {
				h.metrics.UnsentQueueDepth.Set(float64(len(h.unsent)))
			}
			return false
		}
		h.unsent = h.unsent[1:]
	}
	if h.metrics != nil {
		h.metrics.UnsentQueueDepth.Set(0)
	}
	return true
}

// UnsentLen reports the current depth of the unsent queue, used by tests
// and metrics.
func (h *ConnectionHandler) UnsentLen() int {
	h.unsentMutex.Lock()
	defer h.unsentMutex.Unlock()
	return len(h.unsent)
}

// OnRemoteDistribution handles a RemoteConnectionEvent delivered via the
// substrate, mirroring its effect into the local index. A malformed
// message is logged and discarded, never retried.
func (h *ConnectionHandler) OnRemoteDistribution(raw []byte) {
	var event RemoteConnectionEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		h.log.Errorf("connection handler: discarding malformed remote distribution message: %v", err)
		return
	}

	switch event.Kind {
	case remoteConnect:
		if event.Connection == nil {
			h.log.Errorf("connection handler: discarding remote connect event with no connection")
			return
		}
		h.arbiter.MirrorRemoteConnect(*event.Connection)
	case remoteDisconnect:
		if event.ID == nil {
			h.log.Errorf("connection handler: discarding remote disconnect event with no id")
			return
		}
		h.arbiter.MirrorRemoteDisconnect(*event.ID)
	default:
		h.log.Errorf("connection handler: discarding remote distribution message with unknown kind %q", event.Kind)
	}
}

// OnProcessExit is the hook C2 drives: every connection owned by pid is
// disconnected and distributed to peers.
func (h *ConnectionHandler) OnProcessExit(pid int32) {
	h.arbiter.DisconnectAllForPid(pid, func(ids []types.ConnectionID) {
		for _, id := range ids {
			h.distributeDisconnect(id)
		}
		if h.metrics != nil && len(ids) > 0 {
			h.metrics.Evictions.Add(float64(len(ids)))
		}
	})
}
