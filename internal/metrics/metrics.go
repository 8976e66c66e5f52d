package metrics

import "sync"

// Counter names incremented by the core and the transport. Names are
// intentionally simple; they surface through the Prometheus handler as
// label values on a single counter family.
const (
	ConnectionsTotal   = "connections_total"
	RoomsCreatedTotal  = "rooms_created_total"
	MessagesBroadcast  = "messages_broadcast_total"
	RelayForwarded     = "relay_forwarded_total"
	RelayTargetMissing = "relay_target_missing_total"
	EventErrors        = "event_errors_total"
	HandlerPanics      = "handler_panics_total"

	WSConnections     = "ws_connections_total"
	WSBadMessage      = "ws_bad_message_total"
	WSRateLimited     = "ws_rate_limited_total"
	WSSendQueueDrops  = "ws_send_queue_dropped_total"
	WSIdleTimeouts    = "ws_idle_timeouts_total"
	WSOriginForbidden = "ws_origin_forbidden_total"
)

// Metrics is a minimal, concurrency-safe counter registry.
//
// The zero value is usable; counters are created on first increment.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{m: make(map[string]uint64)}
}

func (m *Metrics) Inc(name string) {
	m.mu.Lock()
	if m.m == nil {
		m.m = make(map[string]uint64)
	}
	m.m[name]++
	m.mu.Unlock()
}

func (m *Metrics) Add(name string, delta uint64) {
	m.mu.Lock()
	if m.m == nil {
		m.m = make(map[string]uint64)
	}
	m.m[name] += delta
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
