package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
	"github.com/slack-go/slack"

	"tacotip-backend/database"
	"tacotip-backend/models"
	"tacotip-backend/slackbot"
	"tacotip-backend/utils"
)

// HandleSlackInteractivity consumes interactive payloads (home tab radio
// buttons, withdrawal form, link buttons). Slack posts them form-encoded
// under a single "payload" field.
func HandleSlackInteractivity(c *fiber.Ctx) error {
	raw := c.FormValue("payload")
	if raw == "" {
		return fiber.NewError(fiber.StatusBadRequest, "missing payload")
	}

	var cb slack.InteractionCallback
	if err := json.Unmarshal([]byte(raw), &cb); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
	}

	if cb.Type != slack.InteractionTypeBlockActions {
		deps.Log.Info("unhandled interaction type", "type", cb.Type)
		return c.JSON(fiber.Map{"ok": true})
	}

	for _, action := range cb.ActionCallback.BlockActions {
		switch action.ActionID {
		case slackbot.ActionNotificationPreference:
			notify := action.SelectedOption.Value == "true"
			if err := models.SetNotifyPreference(database.DB, cb.Team.ID, cb.User.ID, notify); err != nil {
				deps.Log.Error("failed to store notification preference",
					"team", cb.Team.ID, "user", cb.User.ID, "err", err)
			}
		case slackbot.ActionWithdrawTacos:
			handleWithdrawal(c.UserContext(), &cb)
		default:
			// Link buttons (view_transaction etc.) only need the ack.
		}
	}

	return c.JSON(fiber.Map{"ok": true})
}

// handleWithdrawal reads the home tab form state and submits a direct token
// transfer to the requested address. The trigger ID keys idempotency, so a
// double click cannot double-withdraw.
func handleWithdrawal(ctx context.Context, cb *slack.InteractionCallback) {
	teamID, userID := cb.Team.ID, cb.User.ID

	notify := func(text string) {
		if err := deps.Bot.SendDM(ctx, teamID, userID, text); err != nil {
			deps.Log.Warn("failed to send withdrawal notice", "user", userID, "err", err)
		}
	}

	if cb.View.State == nil {
		notify("Your withdrawal request was missing its form data. Please try again.")
		return
	}
	values := cb.View.State.Values
	toAddress := values[slackbot.BlockWithdrawalAddress][slackbot.InputWithdrawalAddress].Value
	amountRaw := values[slackbot.BlockWithdrawalAmount][slackbot.InputWithdrawalAmount].Value

	if !common.IsHexAddress(toAddress) {
		notify("That withdrawal address doesn't look valid. Please check it and try again.")
		return
	}
	amount, err := strconv.ParseInt(amountRaw, 10, 64)
	if err != nil || amount <= 0 {
		notify("The withdrawal amount must be a whole number of tacos.")
		return
	}

	senderAddress, err := deps.Engine.PredictAddress(ctx, userID, teamID)
	if err != nil {
		deps.Log.Error("withdrawal address resolution failed", "user", userID, "err", err)
		notify("We couldn't resolve your wallet. Please try again.")
		return
	}

	queueID, err := deps.Engine.Transfer(ctx, senderAddress, toAddress,
		utils.TacosToWei(amount).String(), "withdraw-"+cb.TriggerID)
	if err != nil {
		deps.Log.Error("withdrawal submission failed", "user", userID, "err", err)
		notify("Your withdrawal could not be submitted. Please try again.")
		return
	}

	deps.Log.Info("withdrawal submitted", "user", userID, "queue", queueID, "amount", amount)
	notify(fmt.Sprintf("Your withdrawal of %d tacos to `%s` has been submitted.", amount, toAddress))
}
