package core

import (
	"sync"

	"github.com/consoden/dobcore/pkg/dob/helper"
	"github.com/consoden/dobcore/pkg/dob/metrics"
	"github.com/consoden/dobcore/pkg/dob/types"
)

// Arbiter is C6: admits or rejects connect/disconnect attempts against an
// admission policy and a pid-to-connection-count map. It is single
// threaded by construction (its own Strand), so the processing rule of
// §4.6 runs atomically per request.
type Arbiter struct {
	strand        *Strand
	localNodeID   int64
	admissionCap  int
	log           types.Logger

	mutex        sync.Mutex
	byName       map[string]*types.Connection
	byID         map[types.ConnectionID]*types.Connection
	countsByPid  map[int32]int
	counter      int64

	metrics *metrics.Collectors
}

// SetMetrics attaches the collectors admission decisions are reported
// through. Optional; an Arbiter with no metrics attached behaves
// identically.
func (a *Arbiter) SetMetrics(m *metrics.Collectors) {
	a.metrics = m
}

// reportOpenConnectionsLocked refreshes the OpenConnections gauge; caller
// must hold a.mutex.
func (a *Arbiter) reportOpenConnectionsLocked() {
	if a.metrics != nil {
		a.metrics.OpenConnections.Set(float64(len(a.byID)))
	}
}

// NewArbiter creates an Arbiter for localNodeID allowing at most
// admissionCap simultaneously open connections per OS process.
func NewArbiter(localNodeID int64, admissionCap int, log types.Logger) *Arbiter {
	return &Arbiter{
		strand:       NewStrand(256),
		localNodeID:  localNodeID,
		admissionCap: admissionCap,
		log:          log,
		byName:       make(map[string]*types.Connection),
		byID:         make(map[types.ConnectionID]*types.Connection),
		countsByPid:  make(map[int32]int),
	}
}

// Stop drains the arbiter's strand.
func (a *Arbiter) Stop() {
	a.strand.Stop()
}

// Connect queues a Connect request onto the arbiter's strand and returns
// without waiting; done is invoked on the strand with the outcome.
func (a *Arbiter) Connect(name string, context int64, pid int32, done func(types.ConnectResult, *types.Connection)) {
	a.strand.Dispatch(func() {
		result, conn := a.connect(name, context, pid)
		done(result, conn)
	})
}

// Disconnect processes a Disconnect request.
func (a *Arbiter) Disconnect(id types.ConnectionID, done func(types.ConnectResult)) {
	a.strand.Dispatch(func() {
		done(a.disconnect(id))
	})
}

func (a *Arbiter) connect(name string, context int64, pid int32) (types.ConnectResult, *types.Connection) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if _, exists := a.byName[name]; exists {
		a.log.Debugf("arbiter: connect %q rejected, name already exists", name)
		if a.metrics != nil {
			a.metrics.AdmissionRejections.WithLabelValues("name_already_exists").Inc()
		}
		return types.ConnectionNameAlreadyExists, nil
	}

	if !a.canAddConnectionFromProcessLocked(pid) {
		a.log.Debugf("arbiter: connect %q rejected, pid %d at admission cap %d", name, pid, a.admissionCap)
		if a.metrics != nil {
			a.metrics.AdmissionRejections.WithLabelValues("too_many_processes").Inc()
		}
		return types.TooManyProcesses, nil
	}

	a.counter++
	conn := &types.Connection{
		ID: types.ConnectionID{
			NodeID:    a.localNodeID,
			ContextID: context,
			Counter:   a.counter,
		},
		Name:    name,
		Pid:     pid,
		Context: context,
		State:   types.Open,
	}
	a.byName[name] = conn
	a.byID[conn.ID] = conn
	a.countsByPid[pid]++
	a.reportOpenConnectionsLocked()

	a.log.Debugf("arbiter: connect %q succeeded as %s", name, conn.ID)
	return types.Success, conn
}

// canAddConnectionFromProcessLocked implements CanAddConnectionFromProcess;
// caller must hold a.mutex.
func (a *Arbiter) canAddConnectionFromProcessLocked(pid int32) bool {
	return a.countsByPid[pid] < a.admissionCap
}

func (a *Arbiter) disconnect(id types.ConnectionID) types.ConnectResult {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	conn, ok := a.byID[id]
	if !ok {
		// Idempotent on an already-closed (and thus already-removed)
		// connection.
		return types.Success
	}

	conn.State = types.Closed
	delete(a.byID, id)
	delete(a.byName, conn.Name)
	a.countsByPid[conn.Pid]--
	if a.countsByPid[conn.Pid] <= 0 {
		delete(a.countsByPid, conn.Pid)
	}
	a.reportOpenConnectionsLocked()

	a.log.Debugf("arbiter: disconnect %s succeeded", id)
	return types.Success
}

// DisconnectAllForPid disconnects every connection owned by pid, used by
// the connection handler when the process monitor reports pid has exited.
func (a *Arbiter) DisconnectAllForPid(pid int32, done func([]types.ConnectionID)) {
	a.strand.Dispatch(func() {
		a.mutex.Lock()
		var ids []types.ConnectionID
		for id, conn := range a.byID {
			if conn.Pid == pid {
				ids = append(ids, id)
			}
		}
		a.mutex.Unlock()

		for _, id := range ids {
			a.disconnect(id)
		}
		done(ids)
	})
}

// ConnectionCount reports the number of currently open connections.
func (a *Arbiter) ConnectionCount() int {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return len(a.byID)
}

// GenerateRequestUID mints a correlation identifier for an inbound request.
func GenerateRequestUID() types.UID {
	return helper.GenerateUID()
}

// MirrorRemoteConnect mirrors the effect of a Connect that was already
// admitted on its origin node into the local index, bypassing the
// admission cap: admission was authoritative on the origin node, per
// §4.7.
func (a *Arbiter) MirrorRemoteConnect(conn types.Connection) {
	a.strand.Dispatch(func() {
		a.mutex.Lock()
		defer a.mutex.Unlock()
		if _, exists := a.byID[conn.ID]; exists {
			return
		}
		stored := conn
		a.byID[conn.ID] = &stored
		a.byName[conn.Name] = &stored
		a.countsByPid[conn.Pid]++
		a.reportOpenConnectionsLocked()
	})
}

// MirrorRemoteDisconnect mirrors a remote Disconnect into the local index.
func (a *Arbiter) MirrorRemoteDisconnect(id types.ConnectionID) {
	a.strand.Dispatch(func() {
		a.disconnect(id)
	})
}
