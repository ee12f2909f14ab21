package chathub

import (
	"checkin/backend/internal/models"
	"checkin/backend/internal/storage"
	"context"
	"log"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Reasons carried by send_failed events.
const (
	ReasonRelayBusy     = "relay busy"
	ReasonPersistFailed = "message could not be saved"
	ReasonRateLimited   = "rate limited"
)

type persistJob struct {
	connID  string
	msg     models.ChatMessage
	payload models.SendMessagePayload
}

type sendFailure struct {
	connID  string
	reason  string
	payload models.SendMessagePayload
}

// Relay persists submitted messages and hands the persisted form on for
// fan-out. Jobs are sharded by room across a fixed set of workers, so every
// room is persisted and published in submission order while different rooms
// proceed in parallel.
type Relay struct {
	store   storage.MessageStore
	timeout time.Duration
	queues  []chan persistJob

	persisted func(ctx context.Context, msg models.ChatMessage)
	failed    func(f sendFailure)

	wg sync.WaitGroup
}

func newRelay(store storage.MessageStore, workers, queueSize int, timeout time.Duration) *Relay {
	if workers < 1 {
		workers = 1
	}
	queues := make([]chan persistJob, workers)
	for i := range queues {
		queues[i] = make(chan persistJob, queueSize)
	}
	return &Relay{
		store:   store,
		timeout: timeout,
		queues:  queues,
	}
}

func (r *Relay) shard(room string) int {
	return int(xxhash.Sum64String(room) % uint64(len(r.queues)))
}

// enqueue never blocks. It returns false when the room's shard is full.
func (r *Relay) enqueue(job persistJob) bool {
	select {
	case r.queues[r.shard(job.msg.Room)] <- job:
		return true
	default:
		return false
	}
}

func (r *Relay) start(ctx context.Context) {
	for i, q := range r.queues {
		r.wg.Add(1)
		go r.worker(ctx, i, q)
	}
}

// wait blocks until every worker has returned after ctx was cancelled.
func (r *Relay) wait() {
	r.wg.Wait()
}

func (r *Relay) worker(ctx context.Context, id int, queue <-chan persistJob) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			if n := len(queue); n > 0 {
				log.Printf("WARNING: relay: worker %d stopping with %d unsaved messages", id, n)
			}
			return
		case job := <-queue:
			r.process(ctx, job)
		}
	}
}

func (r *Relay) process(ctx context.Context, job persistJob) {
	sendCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	msg := job.msg
	if err := r.store.SaveMessage(sendCtx, &msg); err != nil {
		log.Printf("ERROR: relay: failed to persist message from %s in room %s: %v", job.connID, msg.Room, err)
		r.failed(sendFailure{connID: job.connID, reason: ReasonPersistFailed, payload: job.payload})
		return
	}
	r.persisted(ctx, msg)
}
