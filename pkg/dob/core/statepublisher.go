package core

import (
	"time"

	"github.com/consoden/dobcore/pkg/dob/metrics"
	"github.com/consoden/dobcore/pkg/dob/types"
)

// StatePublisher is C5: every period, if the coordinator is elected, it
// hands the coordinator's state bytes to the substrate, fanned out to
// every node type, optionally guarded by a CRC32 trailer.
type StatePublisher struct {
	strand      *Strand
	coordinator *Coordinator
	substrate   Substrate
	nodeTypeIDs []types.NodeTypeID
	senderID    types.NodeID
	crcEnabled  bool
	log         types.Logger

	timer   *PeriodicTimer
	metrics *metrics.Collectors
}

// SetMetrics attaches the collectors publish ticks are reported through.
// Optional; a publisher with no metrics attached behaves identically.
func (p *StatePublisher) SetMetrics(m *metrics.Collectors) {
	p.metrics = m
}

// NewStatePublisher creates a publisher ticking every period. Node passes
// the configured DOB_PUBLISH_PERIOD, which defaults to one second (§4.5).
func NewStatePublisher(
	coordinator *Coordinator,
	substrate Substrate,
	nodeTypeIDs []types.NodeTypeID,
	senderID types.NodeID,
	crcEnabled bool,
	period time.Duration,
	log types.Logger,
) *StatePublisher {
	p := &StatePublisher{
		strand:      NewStrand(16),
		coordinator: coordinator,
		substrate:   substrate,
		nodeTypeIDs: nodeTypeIDs,
		senderID:    senderID,
		crcEnabled:  crcEnabled,
		log:         log,
	}
	p.timer = NewPeriodicTimer(p.strand, period, p.tick, log)
	return p
}

// Start begins publishing.
func (p *StatePublisher) Start() {
	p.timer.Start()
}

// Stop halts publishing.
func (p *StatePublisher) Stop() {
	p.timer.Stop()
	p.strand.Stop()
}

func (p *StatePublisher) tick(status TimerStatus) {
	if status == StatusCancelled {
		return
	}

	if !p.coordinator.IsElected() {
		return
	}

	trailerBytes := 0
	if p.crcEnabled {
		trailerBytes = 4
	}

	p.coordinator.PerformOnStateMessage(trailerBytes, func(buf []byte) {
		blob := types.StateBlob{Payload: buf[:len(buf)-trailerBytes], TrailerBytes: trailerBytes}
		publication, err := EncodeStatePublication(blob)
		if err != nil {
			p.log.Alertf("state publisher: failed encoding publication: %v", err)
			p.log.Fatalf("state publisher: failed encoding publication: %v", err)
			return
		}

		for _, nodeType := range p.nodeTypeIDs {
			if err := p.substrate.SendToNodeType(nodeType, publication, p.senderID); err != nil {
				// Not retried; the next tick republishes.
				p.log.Warnf("state publisher: failed sending to node type %d: %v", nodeType, err)
			}
		}

		if p.metrics != nil {
			p.metrics.PublishTicks.Inc()
		}
	})
}
