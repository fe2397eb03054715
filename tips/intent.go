package tips

import (
	"strings"

	"github.com/slack-go/slack"

	"tacotip-backend/config"
)

// IncomingMessage is the validated shape of a Slack message event the
// orchestrator consumes. Controllers fill it from the event envelope.
type IncomingMessage struct {
	EventID   string
	TeamID    string
	SenderID  string
	ChannelID string
	Text      string
	MessageTS string
	Blocks    slack.Blocks
}

// Intent is the ephemeral result of parsing one message event. It is never
// persisted; it exists only for the duration of orchestration.
type Intent struct {
	EventID      string
	TeamID       string
	SenderID     string
	RecipientIDs []string
	Amount       int
	ChannelID    string
	MessageTS    string
}

// CountTipIndicators returns how many tip tokens the message text carries.
func CountTipIndicators(text string) int {
	return strings.Count(text, config.TipIndicator)
}

// MentionedUsers walks the message's rich-text blocks and returns mentioned
// user IDs in message order. Mentions are taken from structured elements, not
// from the raw text.
func MentionedUsers(blocks slack.Blocks) []string {
	var users []string
	for _, block := range blocks.BlockSet {
		rich, ok := block.(*slack.RichTextBlock)
		if !ok {
			continue
		}
		for _, el := range rich.Elements {
			section, ok := el.(*slack.RichTextSection)
			if !ok {
				continue
			}
			for _, sub := range section.Elements {
				if mention, ok := sub.(*slack.RichTextSectionUserElement); ok && mention.UserID != "" {
					users = append(users, mention.UserID)
				}
			}
		}
	}
	return users
}

// ParseIntent derives a tip intent from a message event. The recipient list
// keeps first-mention order, drops duplicates and excludes the sender. The
// second return is false when the message is not a tip (no recipients or a
// zero indicator count) and the orchestrator should no-op.
func ParseIntent(msg IncomingMessage) (Intent, bool) {
	amount := CountTipIndicators(msg.Text)
	if amount == 0 {
		return Intent{}, false
	}

	seen := make(map[string]struct{})
	var recipients []string
	for _, uid := range MentionedUsers(msg.Blocks) {
		if uid == msg.SenderID {
			continue
		}
		if _, dup := seen[uid]; dup {
			continue
		}
		seen[uid] = struct{}{}
		recipients = append(recipients, uid)
	}
	if len(recipients) == 0 {
		return Intent{}, false
	}

	return Intent{
		EventID:      msg.EventID,
		TeamID:       msg.TeamID,
		SenderID:     msg.SenderID,
		RecipientIDs: recipients,
		Amount:       amount,
		ChannelID:    msg.ChannelID,
		MessageTS:    msg.MessageTS,
	}, true
}
