package core_test

import (
	"testing"
	"time"

	"github.com/consoden/dobcore/internal/testlog"
	"github.com/consoden/dobcore/pkg/dob/core"
	"github.com/consoden/dobcore/pkg/dob/types"
)

func TestStatePublisher_PublishesOnlyWhenElected(t *testing.T) {
	substrate := newFakeSubstrate()
	log := testlog.New(t)

	c := core.NewCoordinator(1, 0, 1, 10, []types.NodeTypeID{1}, substrate, time.Hour, log)
	defer c.Stop()
	c.Start()
	c.OnAnnouncement(2, core.Announcement{NodeID: 2, TypeID: 1, Priority: 20})
	waitFor(t, time.Second, func() bool { return !c.IsElected() })

	p := core.NewStatePublisher(c, substrate, []types.NodeTypeID{1}, 1, true, 15*time.Millisecond, log)
	defer p.Stop()
	p.Start()

	time.Sleep(60 * time.Millisecond)
	if substrate.sentCount() != 0 {
		t.Fatalf("expected no publications while not elected, got %d", substrate.sentCount())
	}
}

func TestStatePublisher_PublishesEncodedStateWhenElected(t *testing.T) {
	substrate := newFakeSubstrate()
	log := testlog.New(t)

	c := core.NewCoordinator(1, 0, 1, 10, []types.NodeTypeID{1}, substrate, time.Hour, log)
	defer c.Stop()
	c.Start()
	c.SetState([]byte("snapshot"))

	p := core.NewStatePublisher(c, substrate, []types.NodeTypeID{1}, 1, true, 15*time.Millisecond, log)
	defer p.Stop()
	p.Start()

	waitFor(t, time.Second, func() bool { return substrate.sentCount() > 0 })

	payload, crcOK, hasCRC, err := core.DecodeStatePublication(substrate.lastSent().Payload)
	if err != nil {
		t.Fatalf("unexpected error decoding publication: %v", err)
	}
	if !hasCRC || !crcOK {
		t.Fatalf("expected a verifying CRC trailer, hasCRC=%v crcOK=%v", hasCRC, crcOK)
	}
	if string(payload) != "snapshot" {
		t.Fatalf("expected payload \"snapshot\", got %q", payload)
	}
}
