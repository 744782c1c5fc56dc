package bus

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"forgeloop/internal/logging"
)

// DefaultMaxHistory and DefaultTTL are the retention defaults (§4.9).
const (
	DefaultMaxHistory = 10000
	DefaultTTL        = 24 * time.Hour
)

type subscription struct {
	types map[MessageType]bool // nil/empty means "all types"
}

// Bus is the thread-safe in-process message bus (§4.9). One Bus instance
// is shared by the coordinator and every phase for the lifetime of a
// pipeline run.
type Bus struct {
	mu sync.Mutex

	maxHistory int
	ttl        time.Duration

	history []Message
	queues  map[string][]Message

	subscriptions map[string]subscription
	handlers      map[string]map[MessageType][]Handler

	pending map[string]chan Message // message id -> waiter, keyed by the original request's id
}

// New returns a Bus with the documented retention defaults.
func New() *Bus {
	return &Bus{
		maxHistory:    DefaultMaxHistory,
		ttl:           DefaultTTL,
		queues:        make(map[string][]Message),
		subscriptions: make(map[string]subscription),
		handlers:      make(map[string]map[MessageType][]Handler),
		pending:       make(map[string]chan Message),
	}
}

// SetRetention overrides the default history cap and message TTL.
func (b *Bus) SetRetention(maxHistory int, ttl time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maxHistory = maxHistory
	b.ttl = ttl
}

// Send delivers a message directly to one recipient and returns it.
func (b *Bus) Send(sender, recipient string, typ MessageType, payload map[string]interface{}, priority Priority, xrefs ...Xref) Message {
	msg := b.newMessage(sender, recipient, typ, payload, priority, xrefs...)
	b.publish(msg)
	return msg
}

// Broadcast delivers a message to every subscriber of typ.
func (b *Bus) Broadcast(sender string, typ MessageType, payload map[string]interface{}, priority Priority) Message {
	msg := b.newMessage(sender, Broadcast, typ, payload, priority)
	b.publish(msg)
	return msg
}

// Request sends a message and blocks until a response arrives
// (identified by in_response_to matching msg.ID) or timeout elapses.
func (b *Bus) Request(sender, recipient string, typ MessageType, payload map[string]interface{}, timeout time.Duration) (*Message, bool) {
	msg := b.newMessage(sender, recipient, typ, payload, Normal)
	msg.RequiresResponse = true
	msg.ResponseTimeout = timeout

	wait := make(chan Message, 1)
	b.mu.Lock()
	b.pending[msg.ID] = wait
	b.mu.Unlock()

	b.publish(msg)

	select {
	case resp := <-wait:
		return &resp, true
	case <-time.After(timeout):
		b.mu.Lock()
		delete(b.pending, msg.ID)
		b.mu.Unlock()
		logging.Bus("request %s to %s timed out after %s", msg.ID, recipient, timeout)
		logging.Audit().BusMessage(logging.AuditBusTimeout, string(typ), recipient, false)
		return nil, false
	}
}

// Respond publishes resp as the response to original, satisfying any
// pending Request waiter and releasing its queue slot.
func (b *Bus) Respond(sender string, original Message, payload map[string]interface{}) Message {
	resp := b.newMessage(sender, original.Sender, PhaseResponse, payload, original.Priority)
	resp.InResponseTo = original.ID
	b.publish(resp)

	b.mu.Lock()
	waiter, ok := b.pending[original.ID]
	if ok {
		delete(b.pending, original.ID)
	}
	b.mu.Unlock()

	if ok {
		waiter <- resp
	}
	return resp
}

// Subscribe registers phase's interest in the given types. An empty types
// list subscribes to everything.
func (b *Bus) Subscribe(phase string, types ...MessageType) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := subscription{types: make(map[MessageType]bool, len(types))}
	for _, t := range types {
		sub.types[t] = true
	}
	b.subscriptions[phase] = sub
}

// Unsubscribe removes phase's subscription entirely.
func (b *Bus) Unsubscribe(phase string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscriptions, phase)
}

// OnMessage registers a handler invoked on delivery of a matching message
// to phase; each invocation runs on its own goroutine. Handlers must not mutate PipelineState
// directly (§5) — only enqueue further bus traffic.
func (b *Bus) OnMessage(phase string, typ MessageType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers[phase] == nil {
		b.handlers[phase] = make(map[MessageType][]Handler)
	}
	b.handlers[phase][typ] = append(b.handlers[phase][typ], handler)
}

// GetMessages returns phase's queue, optionally filtered by since/types/
// priority and capped at limit, ordered by priority then timestamp
// (FIFO within a priority class).
func (b *Bus) GetMessages(phase string, since time.Time, types []MessageType, priority *Priority, limit int) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.expireLocked()

	typeSet := toSet(types)
	var out []Message
	for _, m := range b.queues[phase] {
		if !since.IsZero() && !m.Timestamp.After(since) {
			continue
		}
		if len(typeSet) > 0 && !typeSet[m.Type] {
			continue
		}
		if priority != nil && m.Priority != *priority {
			continue
		}
		out = append(out, m)
	}

	sortByPriorityThenTime(out)

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Search filters the retained history (not just one phase's queue) by
// sender, recipient, types, a time window, and cross-reference ids.
type SearchFilter struct {
	Sender      string
	Recipient   string
	Types       []MessageType
	Since       time.Time
	Until       time.Time
	ObjectiveID string
	TaskID      string
	IssueID     string
	Limit       int
}

// Search scans retained history against filter.
func (b *Bus) Search(filter SearchFilter) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.expireLocked()

	typeSet := toSet(filter.Types)
	var out []Message
	for _, m := range b.history {
		if filter.Sender != "" && m.Sender != filter.Sender {
			continue
		}
		if filter.Recipient != "" && m.Recipient != filter.Recipient {
			continue
		}
		if len(typeSet) > 0 && !typeSet[m.Type] {
			continue
		}
		if !filter.Since.IsZero() && m.Timestamp.Before(filter.Since) {
			continue
		}
		if !filter.Until.IsZero() && m.Timestamp.After(filter.Until) {
			continue
		}
		if filter.ObjectiveID != "" && m.ObjectiveID != filter.ObjectiveID {
			continue
		}
		if filter.TaskID != "" && m.TaskID != filter.TaskID {
			continue
		}
		if filter.IssueID != "" && m.IssueID != filter.IssueID {
			continue
		}
		out = append(out, m)
	}

	sortByPriorityThenTime(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

// Xref is a cross-reference attached to a published message.
type Xref func(*Message)

func WithObjective(id string) Xref { return func(m *Message) { m.ObjectiveID = id } }
func WithTask(id string) Xref      { return func(m *Message) { m.TaskID = id } }
func WithIssue(id string) Xref     { return func(m *Message) { m.IssueID = id } }
func WithFile(path string) Xref    { return func(m *Message) { m.FilePath = path } }

func (b *Bus) newMessage(sender, recipient string, typ MessageType, payload map[string]interface{}, priority Priority, xrefs ...Xref) Message {
	msg := Message{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Sender:    sender,
		Recipient: recipient,
		Type:      typ,
		Priority:  priority,
		Payload:   payload,
	}
	for _, xref := range xrefs {
		xref(&msg)
	}
	return msg
}

// publish appends msg to history and to every matching recipient queue,
// then invokes any registered handlers on their own delivery goroutines.
func (b *Bus) publish(msg Message) {
	b.mu.Lock()

	b.history = append(b.history, msg)
	if len(b.history) > b.maxHistory {
		b.history = b.history[len(b.history)-b.maxHistory:]
	}

	var recipients []string
	if msg.Recipient == Broadcast {
		for phase, sub := range b.subscriptions {
			if subscriptionMatches(sub, msg.Type) {
				recipients = append(recipients, phase)
			}
		}
	} else {
		recipients = []string{msg.Recipient}
	}

	var toNotify []string
	for _, phase := range recipients {
		q := append(b.queues[phase], msg)
		if len(q) > b.maxHistory {
			q = q[len(q)-b.maxHistory:]
		}
		b.queues[phase] = q
		toNotify = append(toNotify, phase)
	}

	handlersToRun := make([]Handler, 0)
	for _, phase := range toNotify {
		for _, h := range b.handlers[phase][msg.Type] {
			handlersToRun = append(handlersToRun, h)
		}
	}
	b.mu.Unlock()

	logging.Bus("%s -> %s [%s] priority=%d", msg.Sender, msg.Recipient, msg.Type, msg.Priority)
	logging.Audit().BusMessage(eventTypeFor(msg), string(msg.Type), msg.Recipient, true)

	// Handlers run on their own delivery goroutines (§5): the publishing
	// call never blocks on a subscriber's handler, and a slow or
	// misbehaving handler cannot stall the coordinator's single-threaded
	// loop or other subscribers.
	for _, h := range handlersToRun {
		go h(msg)
	}
}

func eventTypeFor(msg Message) logging.AuditEventType {
	if msg.Recipient == Broadcast {
		return logging.AuditBusBroadcast
	}
	if msg.RequiresResponse {
		return logging.AuditBusRequest
	}
	return logging.AuditBusSend
}

func subscriptionMatches(sub subscription, typ MessageType) bool {
	if len(sub.types) == 0 {
		return true
	}
	return sub.types[typ]
}

// expireLocked drops messages older than ttl from history and every
// queue. Caller must hold b.mu.
func (b *Bus) expireLocked() {
	if b.ttl <= 0 {
		return
	}
	cutoff := time.Now().Add(-b.ttl)
	b.history = dropExpired(b.history, cutoff)
	for phase, q := range b.queues {
		b.queues[phase] = dropExpired(q, cutoff)
	}
}

func dropExpired(msgs []Message, cutoff time.Time) []Message {
	out := msgs[:0]
	for _, m := range msgs {
		if m.Timestamp.After(cutoff) {
			out = append(out, m)
		}
	}
	return out
}

func toSet(types []MessageType) map[MessageType]bool {
	if len(types) == 0 {
		return nil
	}
	set := make(map[MessageType]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return set
}

// sortByPriorityThenTime orders by priority ascending (Critical wins),
// and FIFO by timestamp within a priority class (§4.9 ordering rule).
func sortByPriorityThenTime(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].Priority != msgs[j].Priority {
			return msgs[i].Priority < msgs[j].Priority
		}
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
}
