package core_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/consoden/dobcore/internal/testlog"
	"github.com/consoden/dobcore/pkg/dob/core"
)

func TestPeriodicTimer_FiresRepeatedly(t *testing.T) {
	strand := core.NewStrand(16)
	defer strand.Stop()

	var fires int32
	timer := core.NewPeriodicTimer(strand, 10*time.Millisecond, func(status core.TimerStatus) {
		if status != core.StatusOK {
			t.Errorf("expected StatusOK, got %d", status)
		}
		atomic.AddInt32(&fires, 1)
	}, testlog.New(t))

	timer.Start()
	time.Sleep(55 * time.Millisecond)
	timer.Stop()

	if got := atomic.LoadInt32(&fires); got < 3 {
		t.Fatalf("expected at least 3 fires in 55ms at 10ms period, got %d", got)
	}
}

func TestPeriodicTimer_StopPreventsFurtherFires(t *testing.T) {
	strand := core.NewStrand(16)
	defer strand.Stop()

	var fires int32
	timer := core.NewPeriodicTimer(strand, 10*time.Millisecond, func(status core.TimerStatus) {
		atomic.AddInt32(&fires, 1)
	}, testlog.New(t))

	timer.Start()
	time.Sleep(15 * time.Millisecond)
	timer.Stop()
	after := atomic.LoadInt32(&fires)

	time.Sleep(40 * time.Millisecond)
	if got := atomic.LoadInt32(&fires); got != after {
		t.Fatalf("expected no further fires after Stop, had %d now %d", after, got)
	}
}

func TestPeriodicTimer_StopIsIdempotent(t *testing.T) {
	strand := core.NewStrand(16)
	defer strand.Stop()

	timer := core.NewPeriodicTimer(strand, 10*time.Millisecond, func(core.TimerStatus) {}, testlog.New(t))
	timer.Start()
	timer.Stop()
	timer.Stop()
}

func TestPeriodicTimer_NeverOverlaps(t *testing.T) {
	strand := core.NewStrand(16)
	defer strand.Stop()

	var active int32
	timer := core.NewPeriodicTimer(strand, 5*time.Millisecond, func(status core.TimerStatus) {
		if status == core.StatusCancelled {
			return
		}
		if !atomic.CompareAndSwapInt32(&active, 0, 1) {
			t.Errorf("overlapping callback invocation detected")
		}
		time.Sleep(8 * time.Millisecond)
		atomic.StoreInt32(&active, 0)
	}, testlog.New(t))

	timer.Start()
	time.Sleep(60 * time.Millisecond)
	timer.Stop()
}
