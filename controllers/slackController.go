package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/slack-go/slack"

	"tacotip-backend/database"
	"tacotip-backend/metrics"
	"tacotip-backend/middlewares"
	"tacotip-backend/models"
	"tacotip-backend/tips"
)

type slackAuthorization struct {
	TeamID string `json:"team_id"`
	UserID string `json:"user_id"`
	IsBot  bool   `json:"is_bot"`
	Token  string `json:"token"`
}

type slackInnerEvent struct {
	Type    string       `json:"type" validate:"required"`
	Subtype string       `json:"subtype"`
	User    string       `json:"user"`
	Channel string       `json:"channel"`
	Text    string       `json:"text"`
	TS      string       `json:"ts"`
	Blocks  slack.Blocks `json:"blocks"`
}

// slackEventEnvelope is the strict boundary schema for the events endpoint.
type slackEventEnvelope struct {
	Type           string               `json:"type" validate:"required"`
	Challenge      string               `json:"challenge"`
	TeamID         string               `json:"team_id"`
	EventID        string               `json:"event_id"`
	Authorizations []slackAuthorization `json:"authorizations"`
	Event          *slackInnerEvent     `json:"event"`
}

// HandleSlackEvents consumes the Slack Events API callback. Every handled
// abort (duplicate, no-op, tip failure) still acknowledges with ok:true;
// Slack's redelivery cannot safely retry a partially-processed tip.
func HandleSlackEvents(c *fiber.Ctx) error {
	var body slackEventEnvelope
	if err := middlewares.BindAndValidate(c, &body); err != nil {
		return err
	}

	if body.Type == "url_verification" {
		return c.JSON(fiber.Map{"challenge": body.Challenge})
	}

	if body.Type != "event_callback" || body.TeamID == "" {
		return c.JSON(fiber.Map{"ok": true})
	}
	metrics.IncEventReceived()

	if _, err := ensureInstallation(body); err != nil {
		if errors.Is(err, models.ErrMissingInstallation) {
			deps.Log.Error("no bot token for team", "team", body.TeamID)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "no bot token found"})
		}
		return err
	}

	if body.Event == nil {
		return c.JSON(fiber.Map{"ok": true})
	}

	switch body.Event.Type {
	case "message":
		if body.Event.Subtype != "" || body.Event.User == "" || body.Event.Text == "" {
			break
		}
		msg := tips.IncomingMessage{
			EventID:   body.EventID,
			TeamID:    body.TeamID,
			SenderID:  body.Event.User,
			ChannelID: body.Event.Channel,
			Text:      body.Event.Text,
			MessageTS: body.Event.TS,
			Blocks:    body.Event.Blocks,
		}
		if _, err := deps.Orchestrator.HandleMessage(c.UserContext(), msg); err != nil {
			// Already logged with context; the event is still acknowledged.
			break
		}
	case "app_home_opened":
		if err := deps.Bot.PublishHomeView(c.UserContext(), body.TeamID, body.Event.User); err != nil {
			deps.Log.Error("failed to publish home view", "team", body.TeamID, "user", body.Event.User, "err", err)
		}
	}

	return c.JSON(fiber.Map{"ok": true})
}

// ensureInstallation returns the team's installation, bootstrapping a row
// from the event's authorization block when the OAuth redirect was skipped.
func ensureInstallation(body slackEventEnvelope) (*models.Installation, error) {
	inst, err := models.InstallationForTeam(database.DB, body.TeamID)
	if err == nil {
		return inst, nil
	}
	if !errors.Is(err, models.ErrMissingInstallation) {
		return nil, err
	}

	if len(body.Authorizations) > 0 && body.Authorizations[0].Token != "" {
		auth := body.Authorizations[0]
		inst := &models.Installation{
			TeamID:            body.TeamID,
			BotToken:          auth.Token,
			InstalledByUserID: auth.UserID,
		}
		if err := models.UpsertInstallation(database.DB, inst); err != nil {
			return nil, err
		}
		deps.Log.Info("created installation record from event authorization", "team", body.TeamID)
		return inst, nil
	}
	return nil, models.ErrMissingInstallation
}
