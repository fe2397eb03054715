package slackbot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/slack-go/slack"
	"gorm.io/gorm"

	"tacotip-backend/config"
	"tacotip-backend/engine"
	"tacotip-backend/ghost"
	"tacotip-backend/models"
)

const defaultAvatar = "https://api.slack.com/img/blocks/bkb_template_images/profile_1.png"

// Bot wraps the Slack Web API for every outbound message the pipeline sends.
// Tokens are per-team and come from the installations table.
type Bot struct {
	DB     *gorm.DB
	Cfg    *config.Config
	Engine *engine.Client
	Ghost  *ghost.Client
	Log    *slog.Logger

	// apiURL overrides the Slack API base in tests. Must end with a slash.
	apiURL string
}

func (b *Bot) api(token string) *slack.Client {
	if b.apiURL != "" {
		return slack.New(token, slack.OptionAPIURL(b.apiURL))
	}
	return slack.New(token)
}

func (b *Bot) botToken(teamID string) (string, error) {
	inst, err := models.InstallationForTeam(b.DB, teamID)
	if err != nil {
		return "", err
	}
	return inst.BotToken, nil
}

// SendEphemeral posts an ephemeral text message into a channel, visible only
// to the given user.
func (b *Bot) SendEphemeral(ctx context.Context, teamID, channelID, userID, text string) error {
	token, err := b.botToken(teamID)
	if err != nil {
		return err
	}
	_, err = b.api(token).PostEphemeralContext(ctx, channelID, userID, slack.MsgOptionText(text, false))
	return err
}

// SendDM posts a plain text direct message to a user.
func (b *Bot) SendDM(ctx context.Context, teamID, userID, text string) error {
	token, err := b.botToken(teamID)
	if err != nil {
		return err
	}
	_, _, err = b.api(token).PostMessageContext(ctx, userID, slack.MsgOptionText(text, false))
	return err
}

// userProfile fetches the display profile for message formatting. Failures
// degrade to a placeholder profile instead of blocking the notification.
func (b *Bot) userProfile(ctx context.Context, token, userID string) *slack.User {
	user, err := b.api(token).GetUserInfoContext(ctx, userID)
	if err != nil || user == nil {
		b.Log.Warn("failed to fetch user profile", "user", userID, "err", err)
		return &slack.User{ID: userID}
	}
	return user
}

func displayName(u *slack.User) string {
	switch {
	case u.RealName != "":
		return u.RealName
	case u.Profile.DisplayName != "":
		return u.Profile.DisplayName
	case u.Name != "":
		return u.Name
	case u.ID != "":
		return u.ID
	}
	return "Unknown User"
}

func avatarURL(u *slack.User) string {
	if u.Profile.Image48 != "" {
		return u.Profile.Image48
	}
	return defaultAvatar
}

// joinNames renders "A", "A and B" or "A, B and C".
func joinNames(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	}
	out := ""
	for i, name := range names {
		switch {
		case i == 0:
			out = name
		case i == len(names)-1:
			out += " and " + name
		default:
			out += ", " + name
		}
	}
	return out
}

func (b *Bot) txURL(txHash string) string {
	return fmt.Sprintf("%s/tx/%s", b.Cfg.ExplorerURL, txHash)
}

func messageLink(teamID, channelID, messageTS string) string {
	return fmt.Sprintf("slack://channel?team=%s&id=%s&message=%s", teamID, channelID, messageTS)
}
