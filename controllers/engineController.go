package controllers

import (
	"github.com/gofiber/fiber/v2"

	"tacotip-backend/middlewares"
	"tacotip-backend/tips"
)

// HandleEngineMined consumes the relay's mined-transaction webhook.
func HandleEngineMined(c *fiber.Ctx) error {
	return handleEngineCallback(c, tips.StatusMined)
}

// HandleEngineErrored consumes the relay's errored-transaction webhook.
func HandleEngineErrored(c *fiber.Ctx) error {
	return handleEngineCallback(c, tips.StatusErrored)
}

// handleEngineCallback validates the payload and hands it to the reconciler.
// Once classified, the callback is always acknowledged: the relay does not
// retry webhooks usefully, and a retry must never re-trigger notifications.
func handleEngineCallback(c *fiber.Ctx, expect string) error {
	var cb tips.Callback
	if err := middlewares.BindAndValidate(c, &cb); err != nil {
		return err
	}

	if cb.Status != expect {
		return c.JSON(fiber.Map{"ok": true})
	}

	if err := deps.Reconciler.Reconcile(c.UserContext(), cb); err != nil {
		deps.Log.Error("callback reconciliation failed", "queue", cb.QueueID, "status", cb.Status, "err", err)
	}
	return c.JSON(fiber.Map{"ok": true})
}
