package tips

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gorm.io/gorm"

	"tacotip-backend/engine"
	"tacotip-backend/metrics"
	"tacotip-backend/models"
	"tacotip-backend/store"
	"tacotip-backend/utils"
)

// EngineAPI is the slice of the relay client the orchestrator drives.
type EngineAPI interface {
	PredictAddress(ctx context.Context, userID, teamID string) (string, error)
	IsDeployed(ctx context.Context, userID, teamID string) (bool, error)
	DeployAccount(ctx context.Context, userID, teamID, idempotencyKey string) (string, error)
	IsRegistered(ctx context.Context, address string) (bool, error)
	SendBatch(ctx context.Context, calls []engine.Call, idempotencyKey string) (string, error)
	TipToken() string
}

// Notifier posts the best-effort pre-submission failure notice.
type Notifier interface {
	SendEphemeral(ctx context.Context, teamID, channelID, userID, text string) error
}

// Outcome classifies how a message event was handled.
type Outcome int

const (
	OutcomeNoOp Outcome = iota
	OutcomeDuplicate
	OutcomeSubmitted
)

// Orchestrator turns message events into relay batch submissions.
type Orchestrator struct {
	Engine   EngineAPI
	Store    *store.Store
	DB       *gorm.DB
	Notifier Notifier
	Log      *slog.Logger

	DedupTTL   time.Duration
	PendingTTL time.Duration
}

func deployKey(teamID, userID, eventID string) string {
	return fmt.Sprintf("deploy-account-%s-%s-%s", teamID, userID, eventID)
}

func batchKey(eventID string) string {
	return "tip-" + eventID
}

// HandleMessage runs the full pipeline for one message event: parse, dedup,
// resolve, batch, submit, record. All failures after dedup abort the whole
// tip; nothing partial is ever submitted.
func (o *Orchestrator) HandleMessage(ctx context.Context, msg IncomingMessage) (Outcome, error) {
	intent, ok := ParseIntent(msg)
	if !ok {
		return OutcomeNoOp, nil
	}

	if intent.EventID == "" {
		// Accepted risk: without an event ID there is nothing to dedup on,
		// so the event is processed unconditionally.
		o.Log.Warn("message event has no event_id, dedup disabled",
			"team", intent.TeamID, "sender", intent.SenderID)
	} else {
		seen, err := o.Store.MarkProcessed(intent.EventID, o.DedupTTL)
		if err != nil {
			return OutcomeNoOp, fmt.Errorf("dedup check: %w", err)
		}
		if seen {
			o.Log.Info("duplicate event skipped", "event", intent.EventID)
			metrics.IncDuplicateEvent()
			return OutcomeDuplicate, nil
		}
	}

	queueID, err := o.tip(ctx, intent)
	if err != nil {
		o.Log.Error("tip aborted", "event", intent.EventID, "sender", intent.SenderID, "err", err)
		o.notifyFailure(ctx, intent)
		return OutcomeNoOp, err
	}

	o.Log.Info("tip submitted",
		"event", intent.EventID, "queue", queueID,
		"sender", intent.SenderID, "recipients", len(intent.RecipientIDs), "amount", intent.Amount)
	metrics.IncTipSubmitted()
	return OutcomeSubmitted, nil
}

// tip resolves every participant, builds the batch and submits it under the
// per-event idempotency key.
func (o *Orchestrator) tip(ctx context.Context, intent Intent) (string, error) {
	senderAddr, err := o.Engine.PredictAddress(ctx, intent.SenderID, intent.TeamID)
	if err != nil {
		return "", err
	}

	deployed, err := o.Engine.IsDeployed(ctx, intent.SenderID, intent.TeamID)
	if err != nil {
		return "", err
	}
	if !deployed {
		if _, err := o.Engine.DeployAccount(ctx, intent.SenderID, intent.TeamID,
			deployKey(intent.TeamID, intent.SenderID, intent.EventID)); err != nil {
			return "", err
		}
		o.Log.Info("deployed sender account", "user", intent.SenderID, "address", senderAddr)
	}

	registered, err := o.Engine.IsRegistered(ctx, senderAddr)
	if err != nil {
		return "", err
	}

	recipientAddrs, recipientIDs := o.resolveRecipients(ctx, intent)
	if len(recipientAddrs) == 0 {
		return "", fmt.Errorf("no recipients could be resolved")
	}

	calls, err := o.buildBatch(senderAddr, registered, recipientAddrs, intent.Amount)
	if err != nil {
		return "", err
	}

	queueID, err := o.Engine.SendBatch(ctx, calls, batchKey(intent.EventID))
	if err != nil {
		return "", err
	}

	pending := store.PendingTip{
		TeamID:           intent.TeamID,
		SenderUserID:     intent.SenderID,
		RecipientUserIDs: recipientIDs,
		TipAmount:        intent.Amount,
		ChannelID:        intent.ChannelID,
		MessageTS:        intent.MessageTS,
	}
	if err := o.Store.PutPending(queueID, pending, o.PendingTTL); err != nil {
		// The batch is already queued; losing the linkage only costs the
		// outcome notifications, so this does not abort.
		o.Log.Error("failed to record pending tip", "queue", queueID, "err", err)
	}

	if o.DB != nil {
		rec, err := models.NewTipRecord(queueID, intent.TeamID, intent.SenderID,
			pending.RecipientUserIDs, intent.Amount, intent.ChannelID, intent.MessageTS)
		if err == nil {
			err = o.DB.Create(rec).Error
		}
		if err != nil {
			o.Log.Error("failed to persist tip record", "queue", queueID, "err", err)
		}
	}

	return queueID, nil
}

// buildBatch orders the sender's registration call, when needed, before the
// single multi-recipient transfer. The token contract requires sender
// registration before a transfer; recipients can receive unregistered.
func (o *Orchestrator) buildBatch(senderAddr string, senderRegistered bool, recipientAddrs []string, amount int) ([]engine.Call, error) {
	var calls []engine.Call
	if !senderRegistered {
		reg, err := engine.RegisterAccountCall(o.Engine.TipToken(), senderAddr)
		if err != nil {
			return nil, err
		}
		calls = append(calls, reg)
	}

	transfer, err := engine.TipManyCall(o.Engine.TipToken(), senderAddr, recipientAddrs, utils.TacosToWei(int64(amount)))
	if err != nil {
		return nil, err
	}
	return append(calls, transfer), nil
}

// resolveRecipients fans out per recipient and collects successfully resolved
// addresses in first-mention order, along with the user IDs that resolved.
// One recipient's failure drops only that recipient. Undeployed recipients
// get a fire-and-forget deployment request: a transfer only needs the
// destination address to exist in predicted form.
func (o *Orchestrator) resolveRecipients(ctx context.Context, intent Intent) ([]string, []string) {
	type resolved struct {
		addr string
		err  error
	}
	results := make([]resolved, len(intent.RecipientIDs))

	var wg sync.WaitGroup
	for i, uid := range intent.RecipientIDs {
		wg.Add(1)
		go func(i int, uid string) {
			defer wg.Done()
			addr, err := o.resolveRecipient(ctx, uid, intent.TeamID, intent.EventID)
			results[i] = resolved{addr: addr, err: err}
		}(i, uid)
	}
	wg.Wait()

	addrs := make([]string, 0, len(results))
	ids := make([]string, 0, len(results))
	for i, res := range results {
		if res.err != nil {
			o.Log.Warn("recipient dropped from tip",
				"user", intent.RecipientIDs[i], "event", intent.EventID, "err", res.err)
			continue
		}
		addrs = append(addrs, res.addr)
		ids = append(ids, intent.RecipientIDs[i])
	}
	return addrs, ids
}

func (o *Orchestrator) resolveRecipient(ctx context.Context, userID, teamID, eventID string) (string, error) {
	addr, err := o.Engine.PredictAddress(ctx, userID, teamID)
	if err != nil {
		return "", err
	}
	deployed, err := o.Engine.IsDeployed(ctx, userID, teamID)
	if err != nil {
		return "", err
	}
	if !deployed {
		go func() {
			if _, err := o.Engine.DeployAccount(context.WithoutCancel(ctx), userID, teamID,
				deployKey(teamID, userID, eventID)); err != nil {
				o.Log.Error("background account deployment failed", "user", userID, "err", err)
			}
		}()
	}
	return addr, nil
}

func (o *Orchestrator) notifyFailure(ctx context.Context, intent Intent) {
	if o.Notifier == nil || intent.ChannelID == "" {
		return
	}
	text := "Something went wrong and your tip was not submitted. Please try again."
	if err := o.Notifier.SendEphemeral(ctx, intent.TeamID, intent.ChannelID, intent.SenderID, text); err != nil {
		o.Log.Warn("failed to send failure notice", "user", intent.SenderID, "err", err)
	}
}
