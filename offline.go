package goGateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MrEthical07/goGateway/internal/rate"
	"github.com/MrEthical07/goGateway/storage"
)

// maybeQueueOffline stores a failed mutating request for replay when offline mode is on
// and the failure was a network error.
func (g *Gateway) maybeQueueOffline(ctx context.Context, c call, err error) error {
	if !g.cfg.Features.OfflineMode || !c.offlineable || c.opts.replay {
		return err
	}
	if !isMutating(c.method) || KindOf(err) != KindNetwork {
		return err
	}

	op := OfflineOperation{
		ID:        uuid.NewString(),
		Method:    c.method,
		Endpoint:  c.endpoint,
		Body:      c.body,
		Operation: c.opts.Operation.String(),
		QueuedAt:  g.obs.now(),
	}
	if qerr := g.appendOffline(ctx, op); qerr != nil {
		g.obs.logger.Warn("offline queue write failed", zap.String("endpoint", c.endpoint), zap.Error(qerr))
		return err
	}

	g.obs.emit(ctx, EventOfflineQueued, Event{Endpoint: c.endpoint, Operation: op.Operation}, nil)
	return &Error{Kind: KindNetwork, Code: CodeQueuedOffline, Message: "request stored for offline replay", Err: err}
}

func (g *Gateway) appendOffline(ctx context.Context, op OfflineOperation) error {
	g.offlineMu.Lock()
	defer g.offlineMu.Unlock()

	ops, err := g.loadOfflineLocked(ctx)
	if err != nil {
		return err
	}
	return g.saveOfflineLocked(ctx, append(ops, op))
}

// OfflineOperations lists stored operations in replay order.
func (g *Gateway) OfflineOperations(ctx context.Context) ([]OfflineOperation, error) {
	g.offlineMu.Lock()
	defer g.offlineMu.Unlock()
	return g.loadOfflineLocked(ctx)
}

// FlushOffline replays stored operations in order. A network failure bumps the
// operation's attempt count, drops it once API.RetryAttempts is reached, and stops the
// pass so later operations keep their order. Local back-pressure (full queue, rate
// limit, closed gateway, cancelled context) stops the pass without touching the
// operation. Any other failure drops the operation.
func (g *Gateway) FlushOffline(ctx context.Context) (FlushResult, error) {
	g.flushMu.Lock()
	defer g.flushMu.Unlock()

	pending, err := g.OfflineOperations(ctx)
	if err != nil {
		return FlushResult{}, err
	}

	var (
		result   FlushResult
		removed  = make(map[string]struct{}, len(pending))
		attempts = make(map[string]int)
	)

	for _, op := range pending {
		if ctx.Err() != nil {
			break
		}
		_, rerr := g.replay(ctx, op)
		if rerr == nil {
			removed[op.ID] = struct{}{}
			result.Replayed++
			g.obs.emit(ctx, EventOfflineReplayed, Event{Endpoint: op.Endpoint, Operation: op.Operation}, nil)
			continue
		}

		if replayDeferred(rerr) {
			break
		}
		if KindOf(rerr) == KindNetwork {
			n := op.Attempts + 1
			if n >= g.cfg.API.RetryAttempts {
				removed[op.ID] = struct{}{}
				result.Dropped++
				g.obs.emit(ctx, EventOfflineDropped, Event{Endpoint: op.Endpoint, Operation: op.Operation}, rerr)
				continue
			}
			attempts[op.ID] = n
			break
		}

		removed[op.ID] = struct{}{}
		result.Dropped++
		g.obs.emit(ctx, EventOfflineDropped, Event{Endpoint: op.Endpoint, Operation: op.Operation}, rerr)
	}

	g.offlineMu.Lock()
	defer g.offlineMu.Unlock()

	// reload: requests may have been queued while replaying
	current, err := g.loadOfflineLocked(ctx)
	if err != nil {
		return result, err
	}
	kept := current[:0]
	for _, op := range current {
		if _, gone := removed[op.ID]; gone {
			continue
		}
		if n, ok := attempts[op.ID]; ok {
			op.Attempts = n
		}
		kept = append(kept, op)
	}
	result.Remaining = len(kept)
	return result, g.saveOfflineLocked(ctx, kept)
}

// replayDeferred reports whether err says the gateway could not send the replay right
// now, as opposed to the server or link rejecting it.
func replayDeferred(err error) bool {
	e, ok := AsError(err)
	if !ok {
		return false
	}
	switch {
	case e.Kind == KindQueueFull, e.Kind == KindRateLimit:
		return true
	case e.Code == CodeClosed, e.Code == CodeCanceled:
		return true
	}
	return false
}

func (g *Gateway) replay(ctx context.Context, op OfflineOperation) (*Response, error) {
	operation, ok := rate.ParseOperation(op.Operation)
	if !ok {
		operation = OpAPI
	}
	method := normalizeMethod(op.Method)
	if method == http.MethodGet {
		return nil, errors.New("offline operation is not mutating")
	}
	return g.do(ctx, call{
		endpoint:    op.Endpoint,
		method:      method,
		opts:        RequestOptions{Operation: operation, replay: true},
		body:        op.Body,
		contentType: contentTypeJSON,
	})
}

func (g *Gateway) loadOfflineLocked(ctx context.Context) ([]OfflineOperation, error) {
	var ops []OfflineOperation
	if _, err := storage.GetJSON(ctx, g.store, g.keys.Key(storage.KeyOfflineQueue), &ops); err != nil {
		return nil, err
	}
	return ops, nil
}

func (g *Gateway) saveOfflineLocked(ctx context.Context, ops []OfflineOperation) error {
	if len(ops) == 0 {
		return g.store.Delete(ctx, g.keys.Key(storage.KeyOfflineQueue))
	}
	return storage.SetJSON(ctx, g.store, g.keys.Key(storage.KeyOfflineQueue), ops)
}
