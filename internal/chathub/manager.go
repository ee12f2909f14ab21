package chathub

import (
	"checkin/backend/internal/config"
	"checkin/backend/internal/models"
	"checkin/backend/internal/storage"
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultRelayQueue = 64
	presenceQueue     = 256
	presenceTimeout   = 2 * time.Second
	// maxBufferedLive bounds the live messages held back for a connection
	// while its history backfill is in flight.
	maxBufferedLive = 256
)

// ErrHubStopped is returned by Register once Run has returned.
var ErrHubStopped = errors.New("chathub: hub is not running")

// HistoryReader supplies the backfill sent to a connection when it enters a room.
type HistoryReader interface {
	Backfill(ctx context.Context, room string, limit int) ([]models.ChatMessage, error)
}

// Broadcaster fans persisted messages out across relay instances. Without
// one, messages are only delivered to this instance's connections.
type Broadcaster interface {
	Publish(ctx context.Context, msg models.ChatMessage) error
	// Subscribe returns every message published by any instance, until ctx is done.
	Subscribe(ctx context.Context) (<-chan models.ChatMessage, error)
}

type Option func(*ManagerService)

func WithDefaultRoom(room string) Option {
	return func(m *ManagerService) { m.defaultRoom = room }
}

func WithBroadcaster(b Broadcaster) Option {
	return func(m *ManagerService) { m.broadcaster = b }
}

func WithPresence(p storage.Presence) Option {
	return func(m *ManagerService) { m.presence = p }
}

func WithSendTimeout(d time.Duration) Option {
	return func(m *ManagerService) { m.sendTimeout = d }
}

func WithBackfillTimeout(d time.Duration) Option {
	return func(m *ManagerService) { m.backfillTimeout = d }
}

// WithRelayWorkers sets the number of persistence workers and the queue
// length of each.
func WithRelayWorkers(workers, queue int) Option {
	return func(m *ManagerService) {
		m.relayWorkers = workers
		if queue > 0 {
			m.relayQueue = queue
		}
	}
}

// WithSendRate limits how many messages per second each connection may
// submit. A zero limit disables rate limiting.
func WithSendRate(limit rate.Limit, burst int) Option {
	return func(m *ManagerService) {
		m.sendRate = limit
		m.sendBurst = burst
	}
}

// WithHistoryLimit caps how many messages a websocket backfill carries. Zero means all.
func WithHistoryLimit(n int) Option {
	return func(m *ManagerService) { m.historyLimit = n }
}

type joinRequest struct {
	connID string
	room   string
}

type submission struct {
	connID  string
	payload models.SendMessagePayload
}

type backfillResult struct {
	connID string
	room   string
	gen    uint64
	msgs   []models.ChatMessage
	err    error
}

type presenceUpdate struct {
	room   string
	connID string
	joined bool
}

// connState is the hub's per-connection bookkeeping.
type connState struct {
	gen      uint64
	pending  bool
	buffered []models.ChatMessage
	limiter  *rate.Limiter // nil when sends are not rate limited
}

// ManagerService is the hub. Run owns the room registry and handles every
// event (register, unregister, join, send, delivery, backfill completion) to
// completion, one at a time. Persistence and history reads run outside the
// loop and report back through channels.
type ManagerService struct {
	registry *RoomRegistry
	conns    map[string]*connState
	relay    *Relay
	history  HistoryReader

	defaultRoom     string
	broadcaster     Broadcaster
	presence        storage.Presence
	sendTimeout     time.Duration
	backfillTimeout time.Duration
	relayWorkers    int
	relayQueue      int
	historyLimit    int
	sendRate        rate.Limit
	sendBurst       int

	registerCh   chan Client
	unregisterCh chan Client
	joinCh       chan joinRequest
	incomingCh   chan submission
	deliverCh    chan models.ChatMessage
	failedCh     chan sendFailure
	historyCh    chan backfillResult
	presenceCh   chan presenceUpdate

	done     chan struct{}
	stopped  chan struct{}
	closing  bool
	bg       sync.WaitGroup
	stopOnce sync.Once
}

// NewManagerService builds a hub that persists through store and backfills
// through history.
func NewManagerService(store storage.MessageStore, history HistoryReader, opts ...Option) *ManagerService {
	m := &ManagerService{
		conns:           make(map[string]*connState),
		history:         history,
		defaultRoom:     config.DefaultRoom,
		sendTimeout:     config.DefaultSendTimeout,
		backfillTimeout: config.DefaultBackfillTimeout,
		relayWorkers:    config.DefaultRelayWorkers,
		relayQueue:      defaultRelayQueue,

		registerCh:   make(chan Client),
		unregisterCh: make(chan Client),
		joinCh:       make(chan joinRequest),
		incomingCh:   make(chan submission),
		deliverCh:    make(chan models.ChatMessage),
		failedCh:     make(chan sendFailure),
		historyCh:    make(chan backfillResult),
		presenceCh:   make(chan presenceUpdate, presenceQueue),

		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.registry = NewRoomRegistry(m.defaultRoom)
	m.relay = newRelay(store, m.relayWorkers, m.relayQueue, m.sendTimeout)
	m.relay.persisted = m.publish
	m.relay.failed = m.fail
	return m
}

func (m *ManagerService) DefaultRoom() string { return m.defaultRoom }

// Register hands a new connection to the hub. It blocks until the event loop
// accepts it.
func (m *ManagerService) Register(c Client) error {
	select {
	case m.registerCh <- c:
		return nil
	case <-m.done:
		return ErrHubStopped
	}
}

// Unregister removes a connection. Unknown or already removed clients are ignored.
func (m *ManagerService) Unregister(c Client) {
	select {
	case m.unregisterCh <- c:
	case <-m.done:
	}
}

// Join moves a connection into room and triggers a fresh backfill for it.
func (m *ManagerService) Join(connID, room string) {
	select {
	case m.joinCh <- joinRequest{connID: connID, room: room}:
	case <-m.done:
	}
}

// Submit relays a send_message from a connection.
func (m *ManagerService) Submit(connID string, payload models.SendMessagePayload) {
	select {
	case m.incomingCh <- submission{connID: connID, payload: payload}:
	case <-m.done:
	}
}

// Wait blocks until Run has returned and every worker has stopped.
func (m *ManagerService) Wait() {
	<-m.stopped
}

// Run is the hub event loop. It returns when ctx is cancelled, after closing
// every client and stopping its workers.
func (m *ManagerService) Run(ctx context.Context) {
	defer close(m.stopped)

	var remoteCh <-chan models.ChatMessage
	if m.broadcaster != nil {
		ch, err := m.broadcaster.Subscribe(ctx)
		if err != nil {
			log.Printf("ERROR: Failed to subscribe to broadcast, delivering locally only: %v", err)
			m.broadcaster = nil
		} else {
			remoteCh = ch
		}
	}

	m.relay.start(ctx)
	if m.presence != nil {
		m.bg.Add(1)
		go m.presenceWorker()
	}

	log.Printf("INFO: Hub running, default room %q", m.defaultRoom)
	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return

		case c := <-m.registerCh:
			m.handleRegister(ctx, c)

		case c := <-m.unregisterCh:
			m.handleUnregister(c)

		case req := <-m.joinCh:
			m.handleJoin(ctx, req)

		case sub := <-m.incomingCh:
			m.handleIncomingMessage(sub)

		case msg := <-m.deliverCh:
			m.handleDelivery(msg)

		case msg, ok := <-remoteCh:
			if !ok {
				remoteCh = nil
				continue
			}
			m.handleDelivery(msg)

		case f := <-m.failedCh:
			m.handleSendFailure(f)

		case res := <-m.historyCh:
			m.handleBackfill(res)
		}
	}
}

func (m *ManagerService) shutdown() {
	m.stopOnce.Do(func() { close(m.done) })
	m.closing = true

	clients := m.registry.All()
	for _, c := range clients {
		m.removeClient(c)
	}
	close(m.presenceCh)

	m.relay.wait()
	m.bg.Wait()
	log.Printf("INFO: Hub stopped, closed %d connections", len(clients))
}

func (m *ManagerService) handleRegister(ctx context.Context, c Client) {
	id := c.GetConnID()
	if _, exists := m.registry.Client(id); exists {
		log.Printf("WARNING: Connection %s registered twice, ignoring", id)
		return
	}

	room := m.registry.Add(c)
	st := &connState{}
	if m.sendRate > 0 {
		st.limiter = rate.NewLimiter(m.sendRate, max(m.sendBurst, 1))
	}
	m.conns[id] = st
	m.trackPresence(room, id, true)
	log.Printf("INFO: Connection %s joined %s (%d online)", id, room, m.registry.Len())

	if m.sendEvent(c, models.EventRoomJoined, models.RoomJoinedPayload{Room: room}) {
		m.startBackfill(ctx, id, room)
	}
}

func (m *ManagerService) handleUnregister(c Client) {
	current, ok := m.registry.Client(c.GetConnID())
	if !ok || current != c {
		return
	}
	m.removeClient(c)
}

func (m *ManagerService) handleJoin(ctx context.Context, req joinRequest) {
	room := req.room
	if room == "" {
		room = m.defaultRoom
	}
	prev, ok := m.registry.Join(req.connID, room)
	if !ok {
		return
	}
	if prev != room {
		m.trackPresence(prev, req.connID, false)
		m.trackPresence(room, req.connID, true)
	}

	c, _ := m.registry.Client(req.connID)
	if m.sendEvent(c, models.EventRoomJoined, models.RoomJoinedPayload{Room: room}) {
		m.startBackfill(ctx, req.connID, room)
	}
}

// handleIncomingMessage validates a send and queues it for persistence.
func (m *ManagerService) handleIncomingMessage(sub submission) {
	c, ok := m.registry.Client(sub.connID)
	if !ok {
		return
	}

	msg := sub.payload.ToMessage()
	if msg.Room == "" {
		msg.Room = m.defaultRoom
	}
	if strings.TrimSpace(msg.Author) == "" {
		log.Printf("WARNING: Dropping message from %s: empty author", sub.connID)
		return
	}
	if !msg.HasContent() {
		log.Printf("WARNING: Dropping message from %s: empty body and no attachment", sub.connID)
		return
	}

	if st := m.conns[sub.connID]; st.limiter != nil && !st.limiter.Allow() {
		log.Printf("WARNING: Connection %s exceeded the send rate", sub.connID)
		m.sendEvent(c, models.EventSendFailed, models.SendFailedPayload{Reason: ReasonRateLimited, Message: sub.payload})
		return
	}

	job := persistJob{connID: sub.connID, msg: msg, payload: sub.payload}
	if !m.relay.enqueue(job) {
		log.Printf("WARNING: Relay queue full for room %s, rejecting message from %s", msg.Room, sub.connID)
		m.sendEvent(c, models.EventSendFailed, models.SendFailedPayload{Reason: ReasonRelayBusy, Message: sub.payload})
	}
}

// handleDelivery fans a persisted message out to the room's current members.
func (m *ManagerService) handleDelivery(msg models.ChatMessage) {
	env, err := models.NewEnvelope(models.EventMessageDelivered, msg)
	if err != nil {
		log.Printf("ERROR: Failed to encode message %d: %v", msg.ID, err)
		return
	}

	for _, c := range m.registry.MembersOf(msg.Room) {
		st := m.conns[c.GetConnID()]
		if st != nil && st.pending {
			if len(st.buffered) >= maxBufferedLive {
				log.Printf("WARNING: Connection %s fell behind during backfill, disconnecting", c.GetConnID())
				m.removeClient(c)
				continue
			}
			st.buffered = append(st.buffered, msg)
			continue
		}
		m.send(c, env)
	}
}

func (m *ManagerService) handleSendFailure(f sendFailure) {
	c, ok := m.registry.Client(f.connID)
	if !ok {
		return
	}
	m.sendEvent(c, models.EventSendFailed, models.SendFailedPayload{Reason: f.reason, Message: f.payload})
}

// startBackfill reads the room history off-loop. Live messages for the room
// are held back until the result is handled.
func (m *ManagerService) startBackfill(ctx context.Context, connID, room string) {
	st := m.conns[connID]
	st.gen++
	st.pending = true
	st.buffered = nil
	gen := st.gen

	m.bg.Add(1)
	go func() {
		defer m.bg.Done()

		readCtx, cancel := context.WithTimeout(ctx, m.backfillTimeout)
		defer cancel()
		msgs, err := m.history.Backfill(readCtx, room, m.historyLimit)

		select {
		case m.historyCh <- backfillResult{connID: connID, room: room, gen: gen, msgs: msgs, err: err}:
		case <-m.done:
		}
	}()
}

// handleBackfill sends the history event, then the live messages that
// arrived meanwhile, skipping any the history already contains.
func (m *ManagerService) handleBackfill(res backfillResult) {
	st, ok := m.conns[res.connID]
	if !ok || st.gen != res.gen {
		// Disconnected or switched rooms again since this read started.
		return
	}
	c, _ := m.registry.Client(res.connID)

	buffered := st.buffered
	st.pending = false
	st.buffered = nil

	seen := make(map[uint]struct{}, len(res.msgs))
	if res.err != nil {
		log.Printf("ERROR: Backfill of %s for %s failed: %v", res.room, res.connID, res.err)
		if !m.sendEvent(c, models.EventHistoryFailed, models.HistoryFailedPayload{Room: res.room, Reason: "history unavailable"}) {
			return
		}
	} else {
		for _, msg := range res.msgs {
			seen[msg.ID] = struct{}{}
		}
		if !m.sendEvent(c, models.EventHistory, models.HistoryPayload{Room: res.room, Messages: res.msgs}) {
			return
		}
	}

	room, _ := m.registry.CurrentRoom(res.connID)
	for _, msg := range buffered {
		if _, dup := seen[msg.ID]; dup || msg.Room != room {
			continue
		}
		env, err := models.NewEnvelope(models.EventMessageDelivered, msg)
		if err != nil {
			continue
		}
		if !m.send(c, env) {
			return
		}
	}
}

// publish is called by relay workers with each persisted message.
func (m *ManagerService) publish(ctx context.Context, msg models.ChatMessage) {
	if m.broadcaster != nil {
		pubCtx, cancel := context.WithTimeout(ctx, m.sendTimeout)
		err := m.broadcaster.Publish(pubCtx, msg)
		cancel()
		if err == nil {
			return
		}
		log.Printf("ERROR: relay: publish of message %d failed, delivering locally: %v", msg.ID, err)
	}
	m.deliver(msg)
}

func (m *ManagerService) deliver(msg models.ChatMessage) {
	select {
	case m.deliverCh <- msg:
	case <-m.done:
	}
}

func (m *ManagerService) fail(f sendFailure) {
	select {
	case m.failedCh <- f:
	case <-m.done:
	}
}

func (m *ManagerService) sendEvent(c Client, t models.EventType, payload any) bool {
	env, err := models.NewEnvelope(t, payload)
	if err != nil {
		log.Printf("ERROR: Failed to encode %s event: %v", t, err)
		return true
	}
	return m.send(c, env)
}

// send queues env for c without blocking. A client whose buffer is full is
// disconnected and send reports false.
func (m *ManagerService) send(c Client, env models.Envelope) bool {
	select {
	case c.GetSendChannel() <- env:
		return true
	default:
		log.Printf("WARNING: Connection %s is not keeping up, disconnecting", c.GetConnID())
		m.removeClient(c)
		return false
	}
}

func (m *ManagerService) removeClient(c Client) {
	id := c.GetConnID()
	_, room, ok := m.registry.Leave(id)
	if !ok {
		return
	}
	delete(m.conns, id)
	c.Close()
	m.trackPresence(room, id, false)
	log.Printf("INFO: Connection %s left %s", id, room)
}

// trackPresence queues a presence update. Outside shutdown a full queue
// drops the update rather than stalling the loop.
func (m *ManagerService) trackPresence(room, connID string, joined bool) {
	if m.presence == nil {
		return
	}
	u := presenceUpdate{room: room, connID: connID, joined: joined}
	if m.closing {
		m.presenceCh <- u
		return
	}
	select {
	case m.presenceCh <- u:
	default:
		log.Printf("WARNING: Presence queue full, dropping update for %s", connID)
	}
}

func (m *ManagerService) presenceWorker() {
	defer m.bg.Done()
	for u := range m.presenceCh {
		ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
		var err error
		if u.joined {
			err = m.presence.MarkJoined(ctx, u.room, u.connID)
		} else {
			err = m.presence.MarkLeft(ctx, u.room, u.connID)
		}
		cancel()
		if err != nil {
			log.Printf("WARNING: Presence update for %s in %s failed: %v", u.connID, u.room, err)
		}
	}
}
