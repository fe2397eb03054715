package tips

import (
	"context"
	"log/slog"

	"gorm.io/gorm"

	"tacotip-backend/metrics"
	"tacotip-backend/models"
	"tacotip-backend/store"
)

// Relay callback statuses the reconciler acts on. Anything else is an
// intermediate status and a no-op.
const (
	StatusMined   = "mined"
	StatusErrored = "errored"
)

// Callback is the validated relay webhook payload.
type Callback struct {
	QueueID         string `json:"queueId" validate:"required"`
	Status          string `json:"status" validate:"required"`
	TransactionHash string `json:"transactionHash"`
	ErrorMessage    string `json:"errorMessage"`
}

// TipNotifier delivers outcome messages. Implementations own profile
// resolution and Block Kit formatting.
type TipNotifier interface {
	SendTipSuccess(ctx context.Context, tip store.PendingTip, notifyRecipients []string, txHash string) error
	SendTipFailure(ctx context.Context, tip store.PendingTip, txHash, errorMessage string) error
}

// Reconciler consumes mined/errored callbacks and turns them into Slack
// notifications for the original conversation's participants.
type Reconciler struct {
	Store    *store.Store
	Notifier TipNotifier
	DB       *gorm.DB
	Log      *slog.Logger
}

// Reconcile processes one relay callback. Whatever happens downstream the
// webhook caller is acknowledged: a returned error is for logging only and
// must never translate into a non-2xx response, because the relay's retries
// must not be able to trigger duplicate notifications.
func (r *Reconciler) Reconcile(ctx context.Context, cb Callback) error {
	if cb.Status != StatusMined && cb.Status != StatusErrored {
		return nil
	}
	metrics.IncCallback(cb.Status)

	tip, found, err := r.Store.TakePending(cb.QueueID)
	if err != nil {
		return err
	}
	if !found {
		// TTL expiry, a second callback for an already-consumed queue ID, or
		// a callback unrelated to tipping. All fine.
		r.Log.Info("no pending tip for callback", "queue", cb.QueueID, "status", cb.Status)
		return nil
	}

	if r.DB != nil {
		if err := models.MarkTipOutcome(r.DB, cb.QueueID, cb.Status, cb.TransactionHash); err != nil {
			r.Log.Error("failed to update tip record", "queue", cb.QueueID, "err", err)
		}
	}

	switch cb.Status {
	case StatusMined:
		r.notifyMined(ctx, tip, cb)
	case StatusErrored:
		r.notifyErrored(ctx, tip, cb)
	}
	return nil
}

func (r *Reconciler) notifyMined(ctx context.Context, tip store.PendingTip, cb Callback) {
	notify := make([]string, 0, len(tip.RecipientUserIDs))
	for _, uid := range tip.RecipientUserIDs {
		if r.DB == nil || models.NotifyAllowed(r.DB, tip.TeamID, uid) {
			notify = append(notify, uid)
		}
	}

	if err := r.Notifier.SendTipSuccess(ctx, tip, notify, cb.TransactionHash); err != nil {
		r.Log.Error("failed to deliver success notifications", "queue", cb.QueueID, "err", err)
		metrics.IncNotificationFailure()
	}
}

func (r *Reconciler) notifyErrored(ctx context.Context, tip store.PendingTip, cb Callback) {
	if err := r.Notifier.SendTipFailure(ctx, tip, cb.TransactionHash, cb.ErrorMessage); err != nil {
		r.Log.Error("failed to deliver failure notification", "queue", cb.QueueID, "err", err)
		metrics.IncNotificationFailure()
	}
}
