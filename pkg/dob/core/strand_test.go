package core_test

import (
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/consoden/dobcore/pkg/dob/core"
)

func TestStrand_DispatchRunsInOrder(t *testing.T) {
	s := core.NewStrand(16)
	defer s.Stop()

	var order []int
	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		i := i
		s.Dispatch(func() {
			order = append(order, i)
			if i == 4 {
				close(done)
			}
		})
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for dispatched tasks")
	}

	for i, v := range order {
		if v != i {
			t.Fatalf("expected strictly ordered execution, got %v", order)
		}
	}
}

func TestStrand_StopWaitsForWorkerExit(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := core.NewStrand(16)
	done := make(chan struct{})
	s.Dispatch(func() { close(done) })
	<-done
	s.Stop()
}

func TestStrand_DispatchAfterStopIsNoop(t *testing.T) {
	s := core.NewStrand(16)
	s.Stop()

	ran := false
	s.Dispatch(func() { ran = true })
	time.Sleep(20 * time.Millisecond)
	if ran {
		t.Fatal("expected Dispatch after Stop to be a no-op")
	}
}
