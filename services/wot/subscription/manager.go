// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package subscription implements the event subscription manager.
//
// Clients subscribe to one of three streams (identities, trusts, scores).
// Subscribing ships a full synchronization snapshot first, so the client
// can reconcile its view before live notifications start. After that a
// per-subscription delivery worker drains a durable FIFO queue, so
// notifications arrive in causal order and survive a daemon restart.
//
// Delivery is at-least-once: an entry is acknowledged in the queue only
// after the client confirmed it. A client that fails to confirm
// MaxFailures times in a row is force-unsubscribed.
//
// The manager implements graph.EventSink. The sink methods run inside the
// graph store's critical section and only append to the queue and wake the
// workers; all client I/O happens on the worker goroutines.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianWoT/services/wot/graph"
	storage "github.com/AleutianAI/AleutianWoT/services/wot/storage/badger"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrSubscriptionNotFound is returned when a subscription ID is unknown.
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrSynchronizationRejected is returned when the client does not
	// acknowledge the initial snapshot within the synchronization timeout.
	ErrSynchronizationRejected = errors.New("client did not acknowledge synchronization snapshot")

	// ErrManagerClosed is returned by Subscribe after Close.
	ErrManagerClosed = errors.New("subscription manager is closed")
)

// =============================================================================
// Transport
// =============================================================================

// Transport is the client-facing side of a subscription. Implementations
// wrap a websocket or FCP connection. Each Send call must block until the
// client acknowledged the message or the context expires; a non-nil error
// counts as a failed delivery attempt.
type Transport interface {
	// SendSynchronization ships the full snapshot that precedes live
	// notifications.
	SendSynchronization(ctx context.Context, subscriptionID string, stream StreamType, snapshot []byte) error

	// SendNotification ships one queued notification payload.
	SendNotification(ctx context.Context, subscriptionID string, payload []byte) error

	// SendTerminated informs the client that the daemon force-ended the
	// subscription. Best effort, no acknowledgement expected.
	SendTerminated(subscriptionID string, reason string)
}

// =============================================================================
// Options
// =============================================================================

// Default timeouts and limits.
const (
	DefaultSynchronizationTimeout = 5 * time.Minute
	DefaultAckTimeout             = time.Minute
	DefaultRetryDelay             = 10 * time.Second
	DefaultMaxFailures            = 5
)

// Options configures a Manager.
type Options struct {
	// Queue is the durable notification queue. Required.
	Queue *storage.NotificationQueue

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// SynchronizationTimeout bounds the initial snapshot handshake.
	// Default: 5 minutes.
	SynchronizationTimeout time.Duration

	// AckTimeout bounds each notification delivery attempt.
	// Default: 1 minute.
	AckTimeout time.Duration

	// RetryDelay is the minimum pause between redelivery attempts after a
	// failed delivery. Default: 10 seconds.
	RetryDelay time.Duration

	// MaxFailures is the number of consecutive delivery failures after
	// which a subscription is force-terminated. Default: 5.
	MaxFailures int

	// Clock defaults to time.Now. Injected for tests.
	Clock func() time.Time
}

// Request describes one Subscribe call.
type Request struct {
	// Stream is the stream to subscribe to.
	Stream StreamType

	// Snapshot produces the JSON-encoded full state of the stream. The
	// manager calls it after the subscription is registered for fan-out,
	// so a mutation racing the handshake lands in the snapshot, in the
	// durable queue, or in both, never in neither. Nil ships an empty
	// snapshot.
	Snapshot func() ([]byte, error)

	// Transport delivers messages to the client.
	Transport Transport

	// ResumeID optionally reuses a previous subscription ID so queued
	// undelivered notifications from before a reconnect are drained
	// first. Empty for a fresh subscription.
	ResumeID string
}

// =============================================================================
// Manager
// =============================================================================

// subscriber is the manager-internal state of one live subscription.
type subscriber struct {
	id        string
	stream    StreamType
	transport Transport

	// wake is signalled (capacity 1) whenever the queue grows.
	wake   chan struct{}
	cancel context.CancelFunc
}

// Manager owns all live subscriptions and their delivery workers.
//
// Thread Safety: Manager is safe for concurrent use.
type Manager struct {
	mu     sync.RWMutex
	subs   map[string]*subscriber
	closed bool

	queue       *storage.NotificationQueue
	logger      *slog.Logger
	syncTimeout time.Duration
	ackTimeout  time.Duration
	retryDelay  time.Duration
	maxFailures int
	clock       func() time.Time

	group   *errgroup.Group
	rootCtx context.Context
	stop    context.CancelFunc
}

// NewManager creates a subscription manager. Call Close to stop all
// delivery workers.
func NewManager(opts Options) (*Manager, error) {
	if opts.Queue == nil {
		return nil, errors.New("queue is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SynchronizationTimeout <= 0 {
		opts.SynchronizationTimeout = DefaultSynchronizationTimeout
	}
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = DefaultAckTimeout
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = DefaultMaxFailures
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, groupCtx := errgroup.WithContext(ctx)

	return &Manager{
		subs:        make(map[string]*subscriber),
		queue:       opts.Queue,
		logger:      opts.Logger,
		syncTimeout: opts.SynchronizationTimeout,
		ackTimeout:  opts.AckTimeout,
		retryDelay:  opts.RetryDelay,
		maxFailures: opts.MaxFailures,
		clock:       opts.Clock,
		group:       group,
		rootCtx:     groupCtx,
		stop:        cancel,
	}, nil
}

// Subscribe registers a client on a stream. The subscription is registered
// for fan-out first, then the synchronization snapshot is captured and
// shipped; only after the client acknowledges it does the delivery worker
// start, so no notification is delivered before the snapshot. Returns the
// subscription ID.
func (m *Manager) Subscribe(req Request) (string, error) {
	if !req.Stream.Valid() {
		return "", fmt.Errorf("unknown subscription stream %q", req.Stream)
	}
	if req.Transport == nil {
		return "", errors.New("transport is required")
	}

	workerCtx, workerCancel := context.WithCancel(m.rootCtx)
	sub := &subscriber{
		stream:    req.Stream,
		transport: req.Transport,
		wake:      make(chan struct{}, 1),
		cancel:    workerCancel,
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		workerCancel()
		return "", ErrManagerClosed
	}
	id := req.ResumeID
	if id == "" {
		id = uuid.NewString()
	}
	if _, exists := m.subs[id]; exists {
		m.mu.Unlock()
		workerCancel()
		return "", fmt.Errorf("subscription %s already active", id)
	}
	sub.id = id
	m.subs[id] = sub
	m.mu.Unlock()
	activeSubscriptions.WithLabelValues(string(req.Stream)).Inc()

	// Registered before the snapshot is captured: a mutation racing the
	// handshake is enqueued by fanOut and drained once the worker starts,
	// whether or not the snapshot already contains it. At-least-once
	// delivery permits the overlap; a gap would not.
	var snapshot []byte
	if req.Snapshot != nil {
		var err error
		snapshot, err = req.Snapshot()
		if err != nil {
			m.rollback(sub, req.ResumeID == "")
			return "", fmt.Errorf("capture %s snapshot: %w", req.Stream, err)
		}
	}

	// The handshake happens outside the manager lock: it can take up to
	// the synchronization timeout.
	syncCtx, cancel := context.WithTimeout(m.rootCtx, m.syncTimeout)
	defer cancel()
	if err := req.Transport.SendSynchronization(syncCtx, id, req.Stream, snapshot); err != nil {
		m.rollback(sub, req.ResumeID == "")
		return "", fmt.Errorf("%w: %v", ErrSynchronizationRejected, err)
	}

	m.mu.Lock()
	if m.subs[id] != sub {
		// Unsubscribed or closed while the handshake was in flight.
		m.mu.Unlock()
		workerCancel()
		return "", ErrSubscriptionNotFound
	}
	m.mu.Unlock()

	m.logger.Info("subscription established", "subscription_id", id, "stream", req.Stream)

	// Wake immediately so notifications enqueued during the handshake or
	// left over under a ResumeID are drained right after the snapshot.
	select {
	case sub.wake <- struct{}{}:
	default:
	}
	m.group.Go(func() error {
		m.runWorker(workerCtx, sub)
		return nil
	})
	return id, nil
}

// rollback undoes a registration whose handshake failed. A fresh
// subscription loses its queue; a failed resume keeps it, so the client can
// retry without losing the notifications it reconnected for.
func (m *Manager) rollback(sub *subscriber, dropQueue bool) {
	m.mu.Lock()
	present := m.subs[sub.id] == sub
	if present {
		delete(m.subs, sub.id)
	}
	m.mu.Unlock()

	sub.cancel()
	if !present {
		return
	}
	activeSubscriptions.WithLabelValues(string(sub.stream)).Dec()
	if dropQueue {
		if err := m.queue.Drop(sub.id); err != nil {
			m.logger.Error("drop notification queue", "subscription_id", sub.id, "error", err)
		}
	}
}

// Unsubscribe stops a subscription and discards its queued notifications.
// Unsubscribing an unknown ID is a no-op and reports false.
func (m *Manager) Unsubscribe(id string) bool {
	m.mu.Lock()
	sub, ok := m.subs[id]
	if ok {
		delete(m.subs, id)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}

	sub.cancel()
	if err := m.queue.Drop(id); err != nil {
		m.logger.Error("drop notification queue", "subscription_id", id, "error", err)
	}
	activeSubscriptions.WithLabelValues(string(sub.stream)).Dec()
	m.logger.Info("subscription removed", "subscription_id", id)
	return true
}

// Detach stops a subscription's worker but keeps its queued notifications,
// so a reconnecting client can Subscribe with the same ResumeID and drain
// what it missed. Reports false for unknown IDs.
func (m *Manager) Detach(id string) bool {
	m.mu.Lock()
	sub, ok := m.subs[id]
	if ok {
		delete(m.subs, id)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}

	sub.cancel()
	activeSubscriptions.WithLabelValues(string(sub.stream)).Dec()
	m.logger.Info("subscription detached", "subscription_id", id)
	return true
}

// Active returns the number of live subscriptions.
func (m *Manager) Active() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs)
}

// Close stops all delivery workers and waits for them to finish. Queued
// notifications stay in the durable queue for the next start.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	for _, sub := range m.subs {
		activeSubscriptions.WithLabelValues(string(sub.stream)).Dec()
	}
	m.subs = make(map[string]*subscriber)
	m.mu.Unlock()

	m.stop()
	return m.group.Wait()
}

// =============================================================================
// graph.EventSink
// =============================================================================

// IdentityChanged enqueues an identity notification for every identities
// subscription. Runs inside the graph store's critical section. Insert
// URIs are stripped before the payload is built.
func (m *Manager) IdentityChanged(before, after *graph.Identity) {
	m.fanOut(StreamIdentities, nilable(before.Public()), nilable(after.Public()))
}

// TrustChanged enqueues a trust notification for every trusts subscription.
func (m *Manager) TrustChanged(before, after *graph.Trust) {
	m.fanOut(StreamTrusts, nilable(before), nilable(after))
}

// ScoreChanged enqueues a score notification for every scores subscription.
func (m *Manager) ScoreChanged(before, after *graph.Score) {
	m.fanOut(StreamScores, nilable(before), nilable(after))
}

// nilable converts a typed nil pointer into an untyped nil so a missing
// side stays absent in the notification payload.
func nilable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return p
}

func (m *Manager) fanOut(stream StreamType, before, after any) {
	n, err := newNotification(stream, before, after, m.clock())
	if err != nil {
		m.logger.Error("build notification", "stream", stream, "error", err)
		return
	}
	payload, err := n.encode()
	if err != nil {
		m.logger.Error("encode notification", "stream", stream, "error", err)
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, sub := range m.subs {
		if sub.stream != stream {
			continue
		}
		if _, err := m.queue.Enqueue(sub.id, payload); err != nil {
			m.logger.Error("enqueue notification",
				"subscription_id", sub.id, "stream", stream, "error", err)
			continue
		}
		notificationsEnqueued.WithLabelValues(string(stream)).Inc()
		select {
		case sub.wake <- struct{}{}:
		default:
		}
	}
}

// =============================================================================
// Delivery worker
// =============================================================================

// runWorker drains one subscription's queue in FIFO order. Entries are
// acknowledged only after the client confirmed them, redelivered after a
// paced delay on failure, and the subscription is force-terminated after
// maxFailures consecutive failures.
func (m *Manager) runWorker(ctx context.Context, sub *subscriber) {
	limiter := rate.NewLimiter(rate.Every(m.retryDelay), 1)
	failures := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.wake:
		}

		for {
			seq, payload, err := m.queue.Peek(sub.id)
			if errors.Is(err, storage.ErrQueueEmpty) {
				break
			}
			if err != nil {
				m.logger.Error("peek notification queue",
					"subscription_id", sub.id, "error", err)
				break
			}

			sendCtx, cancel := context.WithTimeout(ctx, m.ackTimeout)
			err = sub.transport.SendNotification(sendCtx, sub.id, payload)
			cancel()

			if err != nil {
				if ctx.Err() != nil {
					return
				}
				failures++
				notificationsFailed.WithLabelValues(string(sub.stream)).Inc()
				m.logger.Warn("notification delivery failed",
					"subscription_id", sub.id,
					"seq", seq,
					"consecutive_failures", failures,
					"error", err)

				if failures >= m.maxFailures {
					m.terminate(sub, fmt.Sprintf("%d consecutive delivery failures", failures))
					return
				}
				if err := limiter.Wait(ctx); err != nil {
					return
				}
				continue
			}

			failures = 0
			if err := m.queue.Ack(sub.id, seq); err != nil {
				m.logger.Error("ack notification",
					"subscription_id", sub.id, "seq", seq, "error", err)
			}
			notificationsDelivered.WithLabelValues(string(sub.stream)).Inc()
		}
	}
}

// terminate force-removes a subscription after repeated delivery failures
// and tells the client, best effort.
func (m *Manager) terminate(sub *subscriber, reason string) {
	m.mu.Lock()
	_, present := m.subs[sub.id]
	delete(m.subs, sub.id)
	m.mu.Unlock()
	if !present {
		return
	}

	sub.cancel()
	if err := m.queue.Drop(sub.id); err != nil {
		m.logger.Error("drop notification queue", "subscription_id", sub.id, "error", err)
	}
	activeSubscriptions.WithLabelValues(string(sub.stream)).Dec()
	terminationsTotal.WithLabelValues(string(sub.stream)).Inc()
	m.logger.Warn("subscription force-terminated",
		"subscription_id", sub.id, "stream", sub.stream, "reason", reason)
	sub.transport.SendTerminated(sub.id, reason)
}

var _ graph.EventSink = (*Manager)(nil)
