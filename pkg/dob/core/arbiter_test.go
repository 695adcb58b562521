package core_test

import (
	"testing"
	"time"

	"github.com/consoden/dobcore/internal/testlog"
	"github.com/consoden/dobcore/pkg/dob/core"
	"github.com/consoden/dobcore/pkg/dob/types"
)

func connectSync(t *testing.T, a *core.Arbiter, name string, context int64, pid int32) (types.ConnectResult, *types.Connection) {
	t.Helper()
	done := make(chan struct{})
	var result types.ConnectResult
	var conn *types.Connection
	a.Connect(name, context, pid, func(r types.ConnectResult, c *types.Connection) {
		result, conn = r, c
		close(done)
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Connect")
	}
	return result, conn
}

func disconnectSync(t *testing.T, a *core.Arbiter, id types.ConnectionID) types.ConnectResult {
	t.Helper()
	done := make(chan struct{})
	var result types.ConnectResult
	a.Disconnect(id, func(r types.ConnectResult) {
		result = r
		close(done)
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Disconnect")
	}
	return result
}

// TestArbiter_DuplicateNameRejected is §8 scenario 1: connecting with a name
// already in use is rejected with ConnectionNameAlreadyExists.
func TestArbiter_DuplicateNameRejected(t *testing.T) {
	a := core.NewArbiter(1, 4, testlog.New(t))
	defer a.Stop()

	result, conn := connectSync(t, a, "dup", 0, 100)
	if result != types.Success || conn == nil {
		t.Fatalf("expected first connect to succeed, got %v %#v", result, conn)
	}

	result, conn = connectSync(t, a, "dup", 0, 200)
	if result != types.ConnectionNameAlreadyExists {
		t.Fatalf("expected ConnectionNameAlreadyExists, got %v", result)
	}
	if conn != nil {
		t.Fatalf("expected nil connection on rejection, got %#v", conn)
	}
}

// TestArbiter_AdmissionCapRejectsFifthConnect is §8 scenario 2: with a cap of
// 4 per pid, a 5th simultaneous connect from the same pid is rejected with
// TooManyProcesses, while a different pid is unaffected.
func TestArbiter_AdmissionCapRejectsFifthConnect(t *testing.T) {
	a := core.NewArbiter(1, 4, testlog.New(t))
	defer a.Stop()

	const pid = int32(42)
	for i := 0; i < 4; i++ {
		result, conn := connectSync(t, a, connName(i), 0, pid)
		if result != types.Success || conn == nil {
			t.Fatalf("connect %d: expected Success, got %v", i, result)
		}
	}

	result, conn := connectSync(t, a, connName(4), 0, pid)
	if result != types.TooManyProcesses {
		t.Fatalf("expected TooManyProcesses on 5th connect, got %v", result)
	}
	if conn != nil {
		t.Fatalf("expected nil connection on rejection, got %#v", conn)
	}

	// A different pid must still be able to connect.
	result, conn = connectSync(t, a, "other-pid", 0, 99)
	if result != types.Success || conn == nil {
		t.Fatalf("expected Success for a different pid, got %v", result)
	}
}

func connName(i int) string {
	return string(rune('a' + i))
}

func TestArbiter_DisconnectFreesAdmissionSlot(t *testing.T) {
	a := core.NewArbiter(1, 1, testlog.New(t))
	defer a.Stop()

	const pid = int32(7)
	_, conn := connectSync(t, a, "only", 0, pid)
	if conn == nil {
		t.Fatal("expected first connect to succeed")
	}

	if result, _ := connectSync(t, a, "second", 0, pid); result != types.TooManyProcesses {
		t.Fatalf("expected TooManyProcesses before disconnect, got %v", result)
	}

	if result := disconnectSync(t, a, conn.ID); result != types.Success {
		t.Fatalf("expected Success disconnecting, got %v", result)
	}

	if result, _ := connectSync(t, a, "second", 0, pid); result != types.Success {
		t.Fatalf("expected Success after disconnect freed the slot, got %v", result)
	}
}

func TestArbiter_DisconnectIsIdempotent(t *testing.T) {
	a := core.NewArbiter(1, 4, testlog.New(t))
	defer a.Stop()

	_, conn := connectSync(t, a, "idem", 0, 1)
	if result := disconnectSync(t, a, conn.ID); result != types.Success {
		t.Fatalf("expected Success on first disconnect, got %v", result)
	}
	if result := disconnectSync(t, a, conn.ID); result != types.Success {
		t.Fatalf("expected Success on repeated disconnect of an already-closed id, got %v", result)
	}
}

func TestArbiter_MirrorRemoteConnectBypassesAdmissionCap(t *testing.T) {
	a := core.NewArbiter(1, 1, testlog.New(t))
	defer a.Stop()

	const pid = int32(5)
	_, conn := connectSync(t, a, "local", 0, pid)
	if conn == nil {
		t.Fatal("expected local connect to succeed")
	}

	remote := types.Connection{
		ID:      types.ConnectionID{NodeID: 2, ContextID: 0, Counter: 1},
		Name:    "remote",
		Pid:     pid,
		Context: 0,
		State:   types.Open,
	}
	a.MirrorRemoteConnect(remote)

	done := make(chan struct{})
	a.DisconnectAllForPid(pid, func(ids []types.ConnectionID) {
		// The mirrored connection was admitted despite pid already being at
		// its cap of 1, so both connections are held for pid.
		if len(ids) != 2 {
			t.Errorf("expected the local and the mirrored connection for pid %d, got %d ids", pid, len(ids))
		}
		close(done)
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for DisconnectAllForPid")
	}
}
