package types

import "sync"

// RequestKind tags the variant currently held by a ConnectRequestSlot.
type RequestKind int

const (
	NotSet RequestKind = iota
	ConnectKind
	DisconnectKind
)

// ConnectPayload carries the fields of a pending Connect request.
type ConnectPayload struct {
	Name    string
	Context int64
	Pid     int32
}

// DisconnectPayload carries the fields of a pending Disconnect request.
type DisconnectPayload struct {
	Connection ConnectionID
}

// ConnectRequestSlot is the tagged-union request slot of §3: a producer may
// call Set only when the slot is NotSet, a consumer may call GetAndClear
// only with the tag it observed via Kind(). Both sides live in shared
// memory conceptually; here the slot is a plain struct guarded by a mutex,
// which is sufficient for the single-writer/single-reader discipline the
// spec requires and lets the zero value be usable in tests without any
// shared-memory plumbing.
//
// Any violation of the discipline (Set on an already-set slot, GetAndClear
// with the wrong tag) is a programmer error: it is reported through the
// supplied Logger at Alert severity and then panics, matching §7's class 1
// error handling.
type ConnectRequestSlot struct {
	mutex sync.Mutex
	log   Logger

	kind       RequestKind
	connect    ConnectPayload
	disconnect DisconnectPayload
}

func NewConnectRequestSlot(log Logger) *ConnectRequestSlot {
	return &ConnectRequestSlot{log: log, kind: NotSet}
}

func (s *ConnectRequestSlot) fatal(format string, args ...interface{}) {
	s.log.Alertf(format, args...)
	s.log.Fatalf(format, args...)
}

// Kind reports the variant currently held, without consuming it.
func (s *ConnectRequestSlot) Kind() RequestKind {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.kind
}

// SetConnect stores a Connect request. The slot must be NotSet.
func (s *ConnectRequestSlot) SetConnect(payload ConnectPayload) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.kind != NotSet {
		s.fatal("attempt to Set(Connect, %s) when slot already holds kind %d", payload.Name, s.kind)
		return
	}
	s.kind = ConnectKind
	s.connect = payload
}

// SetDisconnect stores a Disconnect request. The slot must be NotSet.
func (s *ConnectRequestSlot) SetDisconnect(payload DisconnectPayload) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.kind != NotSet {
		s.fatal("attempt to Set(Disconnect, %s) when slot already holds kind %d", payload.Connection, s.kind)
		return
	}
	s.kind = DisconnectKind
	s.disconnect = payload
}

// GetAndClearConnect consumes a Connect request. The slot must hold Connect.
func (s *ConnectRequestSlot) GetAndClearConnect() ConnectPayload {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.kind != ConnectKind {
		s.fatal("attempt to GetAndClear(Connect) when kind was %d", s.kind)
		return ConnectPayload{}
	}
	payload := s.connect
	s.connect = ConnectPayload{}
	s.kind = NotSet
	return payload
}

// GetAndClearDisconnect consumes a Disconnect request. The slot must hold
// Disconnect.
func (s *ConnectRequestSlot) GetAndClearDisconnect() DisconnectPayload {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.kind != DisconnectKind {
		s.fatal("attempt to GetAndClear(Disconnect) when kind was %d", s.kind)
		return DisconnectPayload{}
	}
	payload := s.disconnect
	s.disconnect = DisconnectPayload{}
	s.kind = NotSet
	return payload
}

// ConnectResult is the outcome carried by a ConnectResponseSlot.
type ConnectResult int

const (
	Undefined ConnectResult = iota
	Success
	ConnectionNameAlreadyExists
	TooManyProcesses
)

// ConnectResponseSlot is the symmetric tagged-union response slot of §3.
type ConnectResponseSlot struct {
	mutex sync.Mutex
	log   Logger

	kind       RequestKind
	result     ConnectResult
	connection *Connection
}

func NewConnectResponseSlot(log Logger) *ConnectResponseSlot {
	return &ConnectResponseSlot{log: log, kind: NotSet}
}

func (s *ConnectResponseSlot) fatal(format string, args ...interface{}) {
	s.log.Alertf(format, args...)
	s.log.Fatalf(format, args...)
}

func (s *ConnectResponseSlot) Kind() RequestKind {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.kind
}

// SetConnect stores the response to a Connect request.
func (s *ConnectResponseSlot) SetConnect(result ConnectResult, connection *Connection) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.kind != NotSet {
		s.fatal("attempt to Set(Connect-response, %d) when slot already holds kind %d", result, s.kind)
		return
	}
	s.kind = ConnectKind
	s.result = result
	s.connection = connection
}

// SetDisconnect stores the response to a Disconnect request.
func (s *ConnectResponseSlot) SetDisconnect(result ConnectResult) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.kind != NotSet {
		s.fatal("attempt to Set(Disconnect-response, %d) when slot already holds kind %d", result, s.kind)
		return
	}
	s.kind = DisconnectKind
	s.result = result
}

// GetAndClearConnect consumes the response to a Connect request.
func (s *ConnectResponseSlot) GetAndClearConnect() (ConnectResult, *Connection) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.kind != ConnectKind {
		s.fatal("attempt to GetAndClear(Connect-response) when kind was %d", s.kind)
		return Undefined, nil
	}
	result, conn := s.result, s.connection
	s.result = Undefined
	s.connection = nil
	s.kind = NotSet
	return result, conn
}

// GetAndClearDisconnect consumes the response to a Disconnect request.
func (s *ConnectResponseSlot) GetAndClearDisconnect() ConnectResult {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.kind != DisconnectKind {
		s.fatal("attempt to GetAndClear(Disconnect-response) when kind was %d", s.kind)
		return Undefined
	}
	result := s.result
	s.result = Undefined
	s.kind = NotSet
	return result
}
