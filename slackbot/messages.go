package slackbot

import (
	"context"
	"fmt"
	"strings"

	"github.com/slack-go/slack"

	"tacotip-backend/config"
	"tacotip-backend/store"
)

// SendTipSuccess DMs the sender a confirmation and each recipient in
// notifyRecipients a received-tip notice. Recipients whose preference is off
// were already filtered out by the reconciler.
func (b *Bot) SendTipSuccess(ctx context.Context, tip store.PendingTip, notifyRecipients []string, txHash string) error {
	token, err := b.botToken(tip.TeamID)
	if err != nil {
		return err
	}
	api := b.api(token)

	sender := b.userProfile(ctx, token, tip.SenderUserID)
	recipients := make([]*slack.User, 0, len(tip.RecipientUserIDs))
	for _, uid := range tip.RecipientUserIDs {
		recipients = append(recipients, b.userProfile(ctx, token, uid))
	}

	var firstErr error
	_, _, err = api.PostMessageContext(ctx, tip.SenderUserID,
		slack.MsgOptionBlocks(b.successBlocks(tip, recipients, txHash)...),
		slack.MsgOptionText("Your tip has been sent successfully!", false),
	)
	if err != nil {
		firstErr = fmt.Errorf("notify sender %s: %w", tip.SenderUserID, err)
	}

	for _, uid := range notifyRecipients {
		_, _, err := api.PostMessageContext(ctx, uid,
			slack.MsgOptionBlocks(b.receivedBlocks(tip, sender, txHash)...),
			slack.MsgOptionText(fmt.Sprintf("You received a tip from %s!", displayName(sender)), false),
		)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("notify recipient %s: %w", uid, err)
		}
	}
	return firstErr
}

// SendTipFailure DMs the sender the relay's error, or a generic notice when
// the relay gave none.
func (b *Bot) SendTipFailure(ctx context.Context, tip store.PendingTip, txHash, errorMessage string) error {
	token, err := b.botToken(tip.TeamID)
	if err != nil {
		return err
	}

	recipients := make([]*slack.User, 0, len(tip.RecipientUserIDs))
	for _, uid := range tip.RecipientUserIDs {
		recipients = append(recipients, b.userProfile(ctx, token, uid))
	}

	_, _, err = b.api(token).PostMessageContext(ctx, tip.SenderUserID,
		slack.MsgOptionBlocks(b.failureBlocks(tip, recipients, txHash, errorMessage)...),
		slack.MsgOptionText("Your tip transaction failed", false),
	)
	return err
}

func recipientContext(recipients []*slack.User) *slack.ContextBlock {
	elems := make([]slack.MixedElement, 0, len(recipients)+1)
	names := make([]string, 0, len(recipients))
	for _, u := range recipients {
		elems = append(elems, slack.NewImageBlockElement(avatarURL(u), displayName(u)))
		names = append(names, "*"+displayName(u)+"*")
	}
	elems = append(elems, slack.NewTextBlockObject(slack.MarkdownType, "Recipients: "+joinNames(names), false, false))
	return slack.NewContextBlock("", elems...)
}

func linkButton(actionID, label, url string) *slack.ActionBlock {
	btn := slack.NewButtonBlockElement(actionID, "",
		slack.NewTextBlockObject(slack.PlainTextType, label, true, false))
	btn.URL = url
	return slack.NewActionBlock("", btn)
}

func (b *Bot) successBlocks(tip store.PendingTip, recipients []*slack.User, txHash string) []slack.Block {
	return []slack.Block{
		slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, ":white_check_mark: *Your tip has been sent successfully!*", false, false),
			nil, nil),
		recipientContext(recipients),
		linkButton("view_message", "View Original Message", messageLink(tip.TeamID, tip.ChannelID, tip.MessageTS)),
		linkButton("view_transaction", "View on "+b.Cfg.ExplorerName, b.txURL(txHash)),
	}
}

func (b *Bot) receivedBlocks(tip store.PendingTip, sender *slack.User, txHash string) []slack.Block {
	return []slack.Block{
		slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, ":tada: *You received a tip!*", false, false),
			nil, nil),
		slack.NewContextBlock("",
			slack.NewImageBlockElement(avatarURL(sender), displayName(sender)),
			slack.NewTextBlockObject(slack.MarkdownType, "Sent by *"+displayName(sender)+"*", false, false),
		),
		linkButton("view_message", "View Original Message", messageLink(tip.TeamID, tip.ChannelID, tip.MessageTS)),
		linkButton("view_transaction", "View Transaction on "+b.Cfg.ExplorerName, b.txURL(txHash)),
	}
}

func (b *Bot) failureBlocks(tip store.PendingTip, recipients []*slack.User, txHash, errorMessage string) []slack.Block {
	errText := "The transaction failed for an unknown reason. Please try again."
	if errorMessage != "" {
		errText = "Error: " + errorMessage
	}

	blocks := []slack.Block{
		slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, ":x: *Your tip transaction failed*", false, false),
			nil, nil),
		recipientContext(recipients),
		slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType,
				fmt.Sprintf("Amount: %s (%d)", strings.Repeat(config.TipIndicator, tip.TipAmount), tip.TipAmount), false, false),
			nil, nil),
		linkButton("view_message", "View Original Message", messageLink(tip.TeamID, tip.ChannelID, tip.MessageTS)),
		slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, errText, false, false),
			nil, nil),
	}
	if txHash != "" {
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, "Transaction Hash: `"+txHash+"`", false, false),
			nil, nil))
	}
	return blocks
}
