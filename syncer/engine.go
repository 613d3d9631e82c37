// Package syncer reconciles the local entry store against a remote store
// collaborator. It pushes whole-entry replaces for every accepted local
// mutation, applies incoming remote changes, mirrors tombstones, and
// suppresses self-echo so two clients editing one entry never enter a
// write-notify-write loop.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/probelab/wafermap/grid"
	"github.com/probelab/wafermap/metric"
	"github.com/probelab/wafermap/remote"
	"github.com/probelab/wafermap/store"
)

// pushQueueDepth bounds the outbound queue. Local mutation is never blocked
// on the network; if pushes back up past this, the oldest intent is already
// superseded by the full-entry write that follows it.
const pushQueueDepth = 1024

type pushRequest struct {
	key   string
	value []byte // nil tombstones the key
}

// Engine bridges one client's entry store and the shared remote store.
type Engine struct {
	store   *store.Store
	remote  remote.Store
	logger  *slog.Logger
	metrics *metric.Sync

	// clientID tags every outbound document; incoming events carrying it
	// are this process's own echoes.
	clientID string

	mu     sync.Mutex
	keys   map[string]string // sanitized key -> entry name
	status remote.Status

	// pendingTombstones counts outbound deletes per key whose self-echo has
	// not arrived yet. Tombstones carry no origin tag, so this is what keeps
	// the echo of a local delete from removing an entry recreated under the
	// same name before the echo lands. The store contract delivers every own
	// write back exactly once, so each count is consumed exactly once.
	pendingTombstones map[string]int

	pushCh   chan pushRequest
	inflight sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics sets the engine's collectors.
func WithMetrics(m *metric.Sync) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClientID overrides the generated client ID. Test hook.
func WithClientID(id string) Option {
	return func(e *Engine) { e.clientID = id }
}

// New creates an engine for the given store pair. Call Run to start syncing.
func New(st *store.Store, rs remote.Store, opts ...Option) *Engine {
	e := &Engine{
		store:             st,
		remote:            rs,
		logger:            slog.Default(),
		metrics:           metric.NewSync(nil),
		clientID:          uuid.NewString(),
		keys:              make(map[string]string),
		pendingTombstones: make(map[string]int),
		status:            remote.Status{Connected: false, Message: "not started"},
		pushCh:            make(chan pushRequest, pushQueueDepth),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ClientID returns the origin tag this engine writes.
func (e *Engine) ClientID() string {
	return e.clientID
}

// Run subscribes to the remote store, applies the initial snapshot into the
// entry store, attaches the engine as the store's mutation listener, and
// starts the push and event loops. It returns once the snapshot is applied;
// the loops run until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	snapshot, events, err := e.remote.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe to remote store: %v: %w", err, ErrRemoteRead)
	}

	for key, value := range snapshot {
		e.applyValue(key, value, true)
	}
	e.metrics.Entries.Set(float64(e.store.Len()))

	e.store.SetListener(e)

	go e.pushLoop(ctx)
	go e.eventLoop(ctx, events)
	go e.statusLoop(ctx)

	e.logger.Info("sync engine started",
		"client_id", e.clientID,
		"entries", e.store.Len())
	return nil
}

// EntryChanged implements store.Listener. It runs inside the store's critical
// section, so it only encodes and enqueues; the network write happens on the
// push loop. Remote applies never reach here: the store's re-entrancy guard
// suppresses the notification, which is what breaks the feedback loop.
func (e *Engine) EntryChanged(g *grid.Grid) {
	data, err := encodeEntry(g, e.clientID)
	if err != nil {
		e.logger.Error("encode entry for push", "entry", g.Name, "error", err)
		return
	}
	key := SanitizeKey(g.Name)

	e.mu.Lock()
	e.keys[key] = g.Name
	e.mu.Unlock()

	e.enqueue(pushRequest{key: key, value: data})
}

// EntryDeleted implements store.Listener. The key mapping is dropped and the
// outbound tombstone is recorded as pending, so its self-echo is absorbed in
// removeValue even if the entry is recreated under the same name first.
func (e *Engine) EntryDeleted(name string) {
	key := SanitizeKey(name)

	e.mu.Lock()
	delete(e.keys, key)
	e.pendingTombstones[key]++
	e.mu.Unlock()

	e.enqueue(pushRequest{key: key, value: nil})
}

// Status returns the current connectivity view. Informational only; local
// mutation never blocks on it.
func (e *Engine) Status() remote.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Flush blocks until every enqueued push has been attempted. Used by one-shot
// CLI commands before exit.
func (e *Engine) Flush() {
	e.inflight.Wait()
}

func (e *Engine) enqueue(req pushRequest) {
	e.inflight.Add(1)
	select {
	case e.pushCh <- req:
	default:
		e.inflight.Done()
		e.metrics.PushErrors.Inc()
		e.logger.Error("push queue full, dropping write", "key", req.key)
	}
}

func (e *Engine) pushLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-e.pushCh:
			e.push(ctx, req)
			e.inflight.Done()
		}
	}
}

// push performs one remote write. Failure is a warning, not a rollback: the
// optimistic local value stands until a later push succeeds or a remote
// change overwrites it.
func (e *Engine) push(ctx context.Context, req pushRequest) {
	if err := e.remote.Put(ctx, req.key, req.value); err != nil {
		e.metrics.PushErrors.Inc()
		e.setStatusMessage(fmt.Sprintf("last push failed: %v", err))
		e.logger.Warn("remote push failed, keeping local state",
			"key", req.key, "error", fmt.Errorf("%v: %w", err, ErrRemoteWrite))
		return
	}
	if req.value == nil {
		e.metrics.Tombstones.Inc()
	} else {
		e.metrics.Pushes.Inc()
	}
	e.metrics.Entries.Set(float64(e.store.Len()))
}

func (e *Engine) eventLoop(ctx context.Context, events <-chan remote.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				e.logger.Info("remote event stream closed")
				return
			}
			if ev.Tombstone() {
				e.removeValue(ev.Key)
			} else {
				e.applyValue(ev.Key, ev.Value, false)
			}
			e.metrics.Entries.Set(float64(e.store.Len()))
		}
	}
}

// applyValue decodes one remote document and applies it locally. Documents
// tagged with this engine's own client ID are echoes of writes that already
// happened here; applying them again would start the write-notify-write loop.
func (e *Engine) applyValue(key string, value []byte, initial bool) {
	g, origin, err := decodeEntry(value)
	if err != nil {
		e.logger.Warn("malformed remote entry, skipping", "key", key, "error", err)
		return
	}

	e.mu.Lock()
	e.keys[key] = g.Name
	e.mu.Unlock()

	if !initial && origin == e.clientID {
		e.metrics.EchoesSuppressed.Inc()
		return
	}

	if err := e.store.ApplyRemote(g); err != nil {
		e.logger.Warn("apply remote entry", "key", key, "error", err)
		return
	}
	e.metrics.RemoteApplied.Inc()
	e.logger.Debug("applied remote change", "entry", g.Name, "initial", initial)
}

// removeValue mirrors a remote tombstone. The echo of a locally-originated
// delete is consumed from the pending set first; without that, deleting and
// immediately recreating an entry would let the echo arrive after the
// recreate re-registered the key and wrongly remove the new entry.
func (e *Engine) removeValue(key string) {
	e.mu.Lock()
	if n := e.pendingTombstones[key]; n > 0 {
		if n == 1 {
			delete(e.pendingTombstones, key)
		} else {
			e.pendingTombstones[key] = n - 1
		}
		e.mu.Unlock()
		e.metrics.EchoesSuppressed.Inc()
		return
	}
	name, ok := e.keys[key]
	delete(e.keys, key)
	e.mu.Unlock()
	if !ok {
		return
	}

	e.store.RemoveRemote(name)
	e.metrics.RemoteRemoved.Inc()
	e.logger.Debug("mirrored remote delete", "entry", name)
}

func (e *Engine) statusLoop(ctx context.Context) {
	ch := e.remote.Status()
	if ch == nil {
		// Store has no liveness signal; degrade to assuming reachability.
		e.setStatus(remote.Status{Connected: true, Message: "no connectivity signal, assuming online"})
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-ch:
			if !ok {
				return
			}
			e.setStatus(s)
			e.logger.Info("connectivity changed", "connected", s.Connected, "message", s.Message)
		}
	}
}

func (e *Engine) setStatus(s remote.Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status = s
}

func (e *Engine) setStatusMessage(msg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status.Message = msg
}
