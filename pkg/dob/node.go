// Package dob is the public entry point of the module: it assembles C1-C8
// into a running cluster node, the way the teacher's pkg/mcast.Unity
// assembles a GM-Cast partition peer.
package dob

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/consoden/dobcore/internal/config"
	"github.com/consoden/dobcore/pkg/dob/core"
	"github.com/consoden/dobcore/pkg/dob/metrics"
	"github.com/consoden/dobcore/pkg/dob/types"
	"github.com/prometheus/client_golang/prometheus"
)

// NodeOptions configures a Node's identity and cluster view.
type NodeOptions struct {
	Local         types.Node
	LocalPriority uint32
	NodeTypes     map[types.NodeTypeID]types.NodeType
	Seeds         []string
}

// Node is the C9 orchestrator: one strand-bearing subsystem per
// responsibility, wired together per §2's data/control flow description.
type Node struct {
	cfg  *config.Config
	log  types.Logger
	opts NodeOptions

	substrate   *core.SerfSubstrate
	coordinator *core.Coordinator
	publisher   *core.StatePublisher
	arbiter     *core.Arbiter
	handler     *core.ConnectionHandler
	monitor     *core.ProcessMonitor
	startupSync *core.StartupSynchronizer

	requestSlot  *types.ConnectRequestSlot
	responseSlot *types.ConnectResponseSlot

	metrics *metrics.Collectors

	stopHandler chan struct{}
	stopPump    chan struct{}
}

// NewNode constructs a Node. It does not yet join the cluster or start the
// coordinator and publisher timers; call Start for that. The process
// monitor begins polling as soon as it is constructed here.
func NewNode(cfg *config.Config, log types.Logger, reg prometheus.Registerer, opts NodeOptions) (*Node, error) {
	nodeTypeIDs := make([]types.NodeTypeID, 0, len(opts.NodeTypes))
	nodeTypeNames := make(map[types.NodeTypeID]string, len(opts.NodeTypes))
	for id, nt := range opts.NodeTypes {
		nodeTypeIDs = append(nodeTypeIDs, id)
		nodeTypeNames[id] = nt.Name
	}

	substrate, err := core.NewSerfSubstrate(cfg.NodeName, cfg.BindAddr, nodeTypeNames, log)
	if err != nil {
		return nil, fmt.Errorf("node: failed creating substrate: %w", err)
	}

	coordinator := core.NewCoordinator(
		opts.Local.ID,
		opts.Local.BirthTime,
		opts.Local.Type,
		opts.LocalPriority,
		nodeTypeIDs,
		substrate,
		cfg.AnnouncePeriod,
		log,
	)

	publisher := core.NewStatePublisher(coordinator, substrate, nodeTypeIDs, opts.Local.ID, cfg.CRCEnabled, cfg.PublishPeriod, log)

	arbiter := core.NewArbiter(int64(opts.Local.ID), cfg.AdmissionCap, log)

	requestSlot := types.NewConnectRequestSlot(log)
	responseSlot := types.NewConnectResponseSlot(log)
	handler := core.NewConnectionHandler(arbiter, substrate, nodeTypeIDs, opts.Local.ID, requestSlot, responseSlot, log)

	monitor := core.NewProcessMonitor(handler.OnProcessExit, cfg.PollPeriod, log)

	startupSync := core.NewStartupSynchronizer(cfg.SafirRuntime, log)

	m := metrics.New("dob")
	if reg != nil {
		m.MustRegister(reg)
	}
	coordinator.SetMetrics(m)
	publisher.SetMetrics(m)
	arbiter.SetMetrics(m)
	handler.SetMetrics(m)

	return &Node{
		cfg:          cfg,
		log:          log,
		opts:         opts,
		substrate:    substrate,
		coordinator:  coordinator,
		publisher:    publisher,
		arbiter:      arbiter,
		handler:      handler,
		monitor:      monitor,
		startupSync:  startupSync,
		requestSlot:  requestSlot,
		responseSlot: responseSlot,
		metrics:      m,
		stopHandler:  make(chan struct{}),
		stopPump:     make(chan struct{}),
	}, nil
}

// Start joins the cluster, starts all timers, and begins pumping delivered
// substrate messages into the coordinator and connection handler.
func (n *Node) Start(ctx context.Context) error {
	if len(n.opts.Seeds) > 0 {
		if _, err := n.substrate.Join(n.opts.Seeds); err != nil {
			n.log.Warnf("node: failed joining seeds %v: %v", n.opts.Seeds, err)
		}
	}

	n.coordinator.Start()
	n.publisher.Start()
	go n.handler.Run(n.stopHandler)
	go n.pumpSubstrate()

	return nil
}

// pumpSubstrate dispatches every delivery from the substrate to either the
// coordinator (election announcements) or the connection handler (remote
// distribution messages), mirroring §2's "Election messages arrive via C3
// into C4" / remote connect-disconnect flow.
func (n *Node) pumpSubstrate() {
	for {
		select {
		case <-n.stopPump:
			return
		case delivery, ok := <-n.substrate.Receive():
			if !ok {
				return
			}
			n.dispatchDelivery(delivery)
		}
	}
}

func (n *Node) dispatchDelivery(delivery core.Delivery) {
	if announcement, err := core.DecodeAnnouncement(delivery.Payload); err == nil {
		n.coordinator.OnAnnouncement(delivery.SenderID, announcement)
		return
	}

	if payload, _, _, err := core.DecodeStatePublication(delivery.Payload); err == nil {
		n.log.Debugf("node: received state publication of %d bytes from node %d", len(payload), delivery.SenderID)
		return
	}

	var probe json.RawMessage
	if err := json.Unmarshal(delivery.Payload, &probe); err == nil {
		n.handler.OnRemoteDistribution(delivery.Payload)
		return
	}

	n.log.Warnf("node: discarding delivery from node %d that matched no known framing", delivery.SenderID)
}

// Stop shuts down every subsystem in turn, each stopping its timer before
// its strand, matching
// §7's "clean shutdown" path for loss of the communication substrate.
func (n *Node) Stop() {
	close(n.stopPump)
	close(n.stopHandler)

	n.publisher.Stop()
	n.coordinator.Stop()
	n.monitor.Stop()
	n.arbiter.Stop()
	n.handler.Stop()

	if err := n.substrate.Close(); err != nil {
		n.log.Warnf("node: error closing substrate: %v", err)
	}
}

// IsElected reports whether this node currently believes it is the leader.
func (n *Node) IsElected() bool {
	return n.coordinator.IsElected()
}

// Connect submits a local connect request and blocks until it is
// processed, returning the outcome. It exercises the full §4.7 local-IPC
// path: Set on the request slot, signal, drain the response slot.
func (n *Node) Connect(name string, context int64, pid int32) (types.ConnectResult, *types.Connection) {
	n.requestSlot.SetConnect(types.ConnectPayload{Name: name, Context: context, Pid: pid})
	n.handler.SignalRequest()
	n.handler.WaitConnectComplete()
	return n.responseSlot.GetAndClearConnect()
}

// Disconnect submits a local disconnect request and blocks until it is
// processed.
func (n *Node) Disconnect(id types.ConnectionID) types.ConnectResult {
	n.requestSlot.SetDisconnect(types.DisconnectPayload{Connection: id})
	n.handler.SignalRequest()
	n.handler.WaitConnectComplete()
	return n.responseSlot.GetAndClearDisconnect()
}

// StartMonitoringPid begins process eviction tracking for pid.
func (n *Node) StartMonitoringPid(pid int32) {
	n.monitor.StartMonitorPid(pid)
}

// StopMonitoringPid stops process eviction tracking for pid.
func (n *Node) StopMonitoringPid(pid int32) {
	n.monitor.StopMonitorPid(pid)
}

// HandleUnsent gives the unsent distribution queue another chance to drain,
// per §4.7; callers typically drive this from a scheduling loop.
func (n *Node) HandleUnsent() bool {
	return n.handler.HandleUnsent()
}

// Synchronize runs the startup-synchronizer gate of §4.8 around handle,
// keyed by key.
func (n *Node) Synchronize(key string, handle core.Synchronized) (release func(), err error) {
	return n.startupSync.Start(key, handle)
}
