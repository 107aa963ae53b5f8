package voice

import (
	"log/slog"
	"sync"
	"time"
)

// ConnectionSession binds a live connection to an authenticated subject.
// Exactly one per connection; a subject may hold many (multi-device).
type ConnectionSession struct {
	ConnectionID string
	SubjectID    string
	ConnectedAt  time.Time
}

// Stream is an in-progress, append-only accumulation of audio chunks.
//
// Appends take the stream's own mutex so chunk sequences on different
// streams proceed in parallel; the registry map lock is only held for
// lookups and membership changes.
type Stream struct {
	ID           string
	SubjectID    string
	ConnectionID string
	StartedAt    time.Time

	mu       sync.Mutex
	chunks   [][]byte
	size     int
	finished bool
}

// Registry tracks authenticated live connections and in-flight audio
// streams. It exclusively owns both; the gateway only resolves them by
// identifier and never keeps a second writable copy.
type Registry struct {
	log *slog.Logger

	mu        sync.RWMutex
	sessions  map[string]*ConnectionSession  // connection id -> session
	streams   map[string]*Stream             // stream id -> stream
	bySubject map[string]map[string]struct{} // subject id -> connection ids
	byConn    map[string]map[string]struct{} // connection id -> stream ids
}

// NewRegistry constructs an empty Registry.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		log:       log,
		sessions:  make(map[string]*ConnectionSession),
		streams:   make(map[string]*Stream),
		bySubject: make(map[string]map[string]struct{}),
		byConn:    make(map[string]map[string]struct{}),
	}
}

// Open registers an authenticated connection.
// A later authenticate on the same connection is rejected with
// ErrAlreadyAuthenticated, never silently overwritten.
func (r *Registry) Open(connectionID, subjectID string, now time.Time) (*ConnectionSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[connectionID]; ok {
		return nil, ErrAlreadyAuthenticated
	}

	s := &ConnectionSession{
		ConnectionID: connectionID,
		SubjectID:    subjectID,
		ConnectedAt:  now,
	}
	r.sessions[connectionID] = s

	conns := r.bySubject[subjectID]
	if conns == nil {
		conns = make(map[string]struct{})
		r.bySubject[subjectID] = conns
	}
	conns[connectionID] = struct{}{}

	wsConnectionsActive.Inc()
	r.log.Info("registry.session.open", "connection_id", connectionID, "subject_id", subjectID)
	return s, nil
}

// Close removes the connection's session and discards every stream it owns
// without processing partial audio. Safe to call for unknown connections.
func (r *Registry) Close(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[connectionID]
	if !ok {
		return
	}
	delete(r.sessions, connectionID)

	if conns := r.bySubject[s.SubjectID]; conns != nil {
		delete(conns, connectionID)
		if len(conns) == 0 {
			delete(r.bySubject, s.SubjectID)
		}
	}

	dropped := 0
	for streamID := range r.byConn[connectionID] {
		if st := r.streams[streamID]; st != nil {
			st.mu.Lock()
			st.finished = true
			st.chunks = nil
			st.mu.Unlock()
		}
		delete(r.streams, streamID)
		dropped++
	}
	delete(r.byConn, connectionID)

	wsConnectionsActive.Dec()
	wsStreamsActive.Sub(float64(dropped))
	r.log.Info("registry.session.close", "connection_id", connectionID, "streams_dropped", dropped)
}

// StartStream opens a new audio stream for an authenticated connection.
func (r *Registry) StartStream(streamID, connectionID string, now time.Time) (*Stream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[connectionID]
	if !ok {
		return nil, ErrNotAuthenticated
	}
	if _, ok := r.streams[streamID]; ok {
		return nil, ErrDuplicateStream
	}

	st := &Stream{
		ID:           streamID,
		SubjectID:    sess.SubjectID,
		ConnectionID: connectionID,
		StartedAt:    now,
	}
	r.streams[streamID] = st

	owned := r.byConn[connectionID]
	if owned == nil {
		owned = make(map[string]struct{})
		r.byConn[connectionID] = owned
	}
	owned[streamID] = struct{}{}

	wsStreamsActive.Inc()
	return st, nil
}

// AppendChunk appends one chunk to a stream, preserving arrival order, and
// returns the chunk's index. Ordering below append order (transport
// delivery) is not this layer's concern.
func (r *Registry) AppendChunk(streamID string, chunk []byte) (int, error) {
	r.mu.RLock()
	st := r.streams[streamID]
	r.mu.RUnlock()

	if st == nil {
		return 0, ErrUnknownStream
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.finished {
		return 0, ErrUnknownStream
	}
	if st.size+len(chunk) > maxStreamBytes {
		return 0, ErrStreamTooLarge
	}

	// Copy: the caller may reuse the buffer.
	c := make([]byte, len(chunk))
	copy(c, chunk)
	st.chunks = append(st.chunks, c)
	st.size += len(c)

	return len(st.chunks) - 1, nil
}

// FinishStream removes the stream and returns its concatenated chunks.
// Finishing is consuming: a stream may be finished at most once.
func (r *Registry) FinishStream(streamID string) ([]byte, error) {
	r.mu.Lock()
	st := r.streams[streamID]
	if st != nil {
		delete(r.streams, streamID)
		if owned := r.byConn[st.ConnectionID]; owned != nil {
			delete(owned, streamID)
		}
	}
	r.mu.Unlock()

	if st == nil {
		return nil, ErrUnknownStream
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.finished {
		return nil, ErrUnknownStream
	}
	st.finished = true

	out := make([]byte, 0, st.size)
	for _, c := range st.chunks {
		out = append(out, c...)
	}
	st.chunks = nil

	wsStreamsActive.Dec()
	return out, nil
}

// Session returns the session for a connection, if any.
func (r *Registry) Session(connectionID string) (*ConnectionSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[connectionID]
	return s, ok
}

// ActiveStreams lists the stream ids currently owned by a connection.
func (r *Registry) ActiveStreams(connectionID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	owned := r.byConn[connectionID]
	out := make([]string, 0, len(owned))
	for id := range owned {
		out = append(out, id)
	}
	return out
}

// ConnectionsFor lists the live connection ids for a subject.
// Fan-out helper for outbound notification only, never admission decisions.
func (r *Registry) ConnectionsFor(subjectID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.bySubject[subjectID]
	out := make([]string, 0, len(conns))
	for id := range conns {
		out = append(out, id)
	}
	return out
}
