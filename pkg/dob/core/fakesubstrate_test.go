package core_test

import (
	"sync"

	"github.com/consoden/dobcore/pkg/dob/core"
	"github.com/consoden/dobcore/pkg/dob/types"
)

// fakeSubstrate is an in-memory Substrate used across core_test files: sends
// are recorded, and may optionally be wired to a peer's delivery channel to
// model a two-node cluster without any real networking.
type fakeSubstrate struct {
	mutex     sync.Mutex
	sent      []core.Delivery
	overflow  bool
	deliverCh chan core.Delivery
	closed    bool
}

func newFakeSubstrate() *fakeSubstrate {
	return &fakeSubstrate{deliverCh: make(chan core.Delivery, 64)}
}

func (f *fakeSubstrate) SendToNodeType(nodeType types.NodeTypeID, payload []byte, senderID types.NodeID) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.overflow {
		return core.ErrOverflow
	}
	f.sent = append(f.sent, core.Delivery{SenderID: senderID, Payload: payload})
	return nil
}

func (f *fakeSubstrate) Receive() <-chan core.Delivery { return f.deliverCh }

func (f *fakeSubstrate) Close() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if !f.closed {
		close(f.deliverCh)
		f.closed = true
	}
	return nil
}

func (f *fakeSubstrate) setOverflow(v bool) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.overflow = v
}

func (f *fakeSubstrate) sentCount() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return len(f.sent)
}

func (f *fakeSubstrate) lastSent() core.Delivery {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.sent[len(f.sent)-1]
}

func (f *fakeSubstrate) deliver(d core.Delivery) {
	f.deliverCh <- d
}
