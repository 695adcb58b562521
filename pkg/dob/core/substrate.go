package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/serf/serf"

	"github.com/consoden/dobcore/pkg/dob/types"
)

// ErrOverflow is returned by Substrate.SendToNodeType when the substrate
// cannot accept a message immediately. Delivery is best-effort and
// peer-ordered per §4.3; the substrate itself never retries. C7 re-enqueues
// into its unsent queue, while C5 and C4 log the failure and send again on
// their next tick.
var ErrOverflow = errors.New("substrate: send queue overflow")

// Delivery is a framed byte buffer received from a peer, tagged with the
// sender's node id.
type Delivery struct {
	SenderID types.NodeID
	Payload  []byte
}

// Substrate is the C3 contract: send framed bytes to every member of a
// named node type, and receive framed bytes from any peer.
type Substrate interface {
	SendToNodeType(nodeType types.NodeTypeID, payload []byte, senderID types.NodeID) error
	Receive() <-chan Delivery
	Close() error
}

const userEventPrefix = "dob:nt:"

// SerfSubstrate implements Substrate on top of github.com/hashicorp/serf,
// using serf's gossip layer as the framed, peer-ordered delivery mechanism.
// Each NodeTypeID is mapped to a distinct user-event name. Serf broadcasts
// user events to every cluster member, and the receiving side forwards
// every user event whatever its name, so a send is not restricted to the
// members of the addressed node type. Serf membership events are not used.
type SerfSubstrate struct {
	agent    *serf.Serf
	eventCh  chan serf.Event
	delivery chan Delivery
	log      types.Logger

	// nodeTypeNames maps every configured NodeTypeID to the user-event name
	// suffix SendToNodeType addresses it by.
	nodeTypeNames map[types.NodeTypeID]string

	done chan struct{}
}

// NewSerfSubstrate joins (or bootstraps) a serf cluster under the given
// local node name and binds to bindAddr. nodeTypeNames maps every
// configured NodeTypeID to the event-name suffix used to address it.
func NewSerfSubstrate(nodeName, bindAddr string, nodeTypeNames map[types.NodeTypeID]string, log types.Logger) (*SerfSubstrate, error) {
	conf := serf.DefaultConfig()
	conf.NodeName = nodeName
	conf.MemberlistConfig.BindAddr = bindAddr
	eventCh := make(chan serf.Event, 256)
	conf.EventCh = eventCh

	agent, err := serf.Create(conf)
	if err != nil {
		return nil, fmt.Errorf("substrate: failed creating serf agent: %w", err)
	}

	s := &SerfSubstrate{
		agent:         agent,
		eventCh:       eventCh,
		delivery:      make(chan Delivery, 256),
		log:           log,
		nodeTypeNames: nodeTypeNames,
		done:          make(chan struct{}),
	}
	go s.pump()
	return s, nil
}

// Join contacts the given existing cluster members.
func (s *SerfSubstrate) Join(existing []string) (int, error) {
	return s.agent.Join(existing, true)
}

func (s *SerfSubstrate) pump() {
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-s.eventCh:
			if !ok {
				return
			}
			s.handle(ev)
		}
	}
}

func (s *SerfSubstrate) handle(ev serf.Event) {
	userEvent, ok := ev.(serf.UserEvent)
	if !ok {
		// Member join/leave/failed/update events are dropped here and reach
		// no other component; this adapter only forwards application
		// payloads.
		return
	}

	senderID, payload, err := decodeEnvelope(userEvent.Payload)
	if err != nil {
		s.log.Warnf("substrate: discarding malformed envelope from event %s: %v", userEvent.Name, err)
		return
	}

	delivery := Delivery{SenderID: senderID, Payload: payload}
	timeout := time.NewTimer(250 * time.Millisecond)
	defer timeout.Stop()
	select {
	case s.delivery <- delivery:
	case <-timeout.C:
		s.log.Warnf("substrate: dropped delivery from node %d, consumer too slow", senderID)
	case <-s.done:
	}
}

// SendToNodeType implements Substrate.
func (s *SerfSubstrate) SendToNodeType(nodeType types.NodeTypeID, payload []byte, senderID types.NodeID) error {
	name, ok := s.nodeTypeNames[nodeType]
	if !ok {
		return fmt.Errorf("substrate: unknown node type %d", nodeType)
	}

	envelope := encodeEnvelope(senderID, payload)
	if err := s.agent.UserEvent(userEventPrefix+name, envelope, false); err != nil {
		return fmt.Errorf("%w: %v", ErrOverflow, err)
	}
	return nil
}

// Receive implements Substrate.
func (s *SerfSubstrate) Receive() <-chan Delivery {
	return s.delivery
}

// Close implements Substrate.
func (s *SerfSubstrate) Close() error {
	close(s.done)
	return s.agent.Leave()
}

func encodeEnvelope(senderID types.NodeID, payload []byte) []byte {
	buf := make([]byte, 8+len(payload))
	putUint64(buf[0:8], uint64(senderID))
	copy(buf[8:], payload)
	return buf
}

func decodeEnvelope(raw []byte) (types.NodeID, []byte, error) {
	if len(raw) < 8 {
		return 0, nil, fmt.Errorf("envelope too short: %d bytes", len(raw))
	}
	senderID := types.NodeID(getUint64(raw[0:8]))
	return senderID, raw[8:], nil
}
