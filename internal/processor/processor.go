// Package processor runs inbound messages through the extraction and
// dispatch pipeline and writes the reply back to the store. Claiming a
// message is the exactly-once gate: whichever worker wins the claim owns the
// message to a terminal reply, and a losing worker drops it silently.
package processor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"billgate/internal/billing"
	"billgate/internal/database"
	"billgate/internal/format"
	"billgate/internal/intent"
)

// Extractor turns free-form message text into a structured intent.
type Extractor interface {
	Extract(ctx context.Context, text, identity string) intent.Intent
}

// Dispatcher executes a structured intent to a terminal outcome.
type Dispatcher interface {
	Dispatch(ctx context.Context, it intent.Intent) billing.Outcome
}

// Notifier pushes an agent reply out to a delivery channel that cannot poll
// the store itself.
type Notifier interface {
	Notify(ctx context.Context, msg *database.Message)
}

// Deps carries the processor's collaborators.
type Deps struct {
	Store      database.Store
	Extractor  Extractor
	Dispatcher Dispatcher
	Log        *slog.Logger
}

// Processor owns the message pipeline. Safe for concurrent use once all
// notifiers are registered.
type Processor struct {
	store      database.Store
	extractor  Extractor
	dispatcher Dispatcher
	notifiers  map[string]Notifier
	log        *slog.Logger
}

// New creates a Processor from its dependencies.
func New(deps Deps) *Processor {
	log := deps.Log
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Processor{
		store:      deps.Store,
		extractor:  deps.Extractor,
		dispatcher: deps.Dispatcher,
		notifiers:  make(map[string]Notifier),
		log:        log.With("component", "processor"),
	}
}

// RegisterNotifier routes replies for the given channel through the
// notifier. Register all notifiers before processing starts.
func (p *Processor) RegisterNotifier(channel string, n Notifier) {
	p.notifiers[channel] = n
}

// Process takes one inbound message to a terminal reply. Messages that are
// not claimable here (already processed, claimed by a concurrent worker, or
// not a user message at all) are dropped without error. Once the claim is
// won the message always ends with a stored reply, degrading to a
// processing-error reply when the pipeline itself fails.
func (p *Processor) Process(ctx context.Context, msg *database.Message) error {
	if msg.Origin != database.OriginUser || msg.Processed() || msg.Identity == "" {
		return nil
	}

	claimed, err := p.store.ClaimMessage(ctx, msg.ID)
	if err != nil {
		return fmt.Errorf("failed to claim message %d: %w", msg.ID, err)
	}
	if !claimed {
		p.log.DebugContext(ctx, "Message already claimed, dropping", "message_id", msg.ID)
		return nil
	}

	started := time.Now()
	reply, procErr := p.run(ctx, msg)
	if procErr != "" {
		if recErr := p.store.RecordProcessError(ctx, msg.ID, procErr); recErr != nil {
			p.log.ErrorContext(ctx, "Failed to record process error", "message_id", msg.ID, "error", recErr)
		}
	}

	out := &database.Message{
		Identity: msg.Identity,
		Body:     reply,
		Origin:   database.OriginAgent,
		Channel:  msg.Channel,
		ChatRef:  msg.ChatRef,
	}
	if err := p.store.SaveMessage(ctx, out); err != nil {
		if recErr := p.store.RecordProcessError(ctx, msg.ID, "failed to store reply: "+err.Error()); recErr != nil {
			p.log.ErrorContext(ctx, "Failed to record process error", "message_id", msg.ID, "error", recErr)
		}
		return fmt.Errorf("failed to store reply for message %d: %w", msg.ID, err)
	}

	p.log.InfoContext(ctx, "Message processed",
		"message_id", msg.ID, "identity", msg.Identity, "channel", msg.Channel,
		"duration_ms", time.Since(started).Milliseconds())

	if n, ok := p.notifiers[msg.Channel]; ok {
		n.Notify(ctx, out)
	}
	return nil
}

// run executes the pipeline stages and returns the reply text plus a
// non-empty error detail when the pipeline degraded. A panic in any stage is
// contained here.
func (p *Processor) run(ctx context.Context, msg *database.Message) (reply, procErr string) {
	defer func() {
		if r := recover(); r != nil {
			p.log.ErrorContext(ctx, "Panic while processing message", "message_id", msg.ID, "panic", r)
			procErr = fmt.Sprintf("panic: %v", r)
			reply = format.Error(procErr)
		}
	}()

	it := p.extractor.Extract(ctx, msg.Body, msg.Identity)
	out := p.dispatcher.Dispatch(ctx, it)
	if f, ok := out.(billing.Failure); ok && f.Kind == billing.FailureSystem {
		procErr = f.Detail
	}
	return format.Outcome(out), procErr
}
