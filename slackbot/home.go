package slackbot

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/slack-go/slack"

	"tacotip-backend/config"
	"tacotip-backend/ghost"
	"tacotip-backend/models"
	"tacotip-backend/utils"
)

// Home tab interaction identifiers shared with the interactivity handler.
const (
	ActionNotificationPreference = "notification_preference"
	ActionWithdrawTacos          = "withdraw_tacos"
	BlockWithdrawalAddress       = "withdrawal_address"
	BlockWithdrawalAmount        = "withdrawal_amount"
	InputWithdrawalAddress       = "withdrawal_address_input"
	InputWithdrawalAmount        = "withdrawal_amount_input"
)

// PublishHomeView renders and publishes the user's home tab: stats,
// leaderboards, notification preference and the withdrawal form.
func (b *Bot) PublishHomeView(ctx context.Context, teamID, userID string) error {
	token, err := b.botToken(teamID)
	if err != nil {
		return err
	}

	address, err := b.Engine.PredictAddress(ctx, userID, teamID)
	if err != nil {
		return err
	}

	sentToday := "0"
	receivedAllTime := "0"
	var daily, weekly, monthly []ghost.Entry
	if b.Ghost.Enabled() {
		if v, err := b.Ghost.TipsSentToday(ctx, address); err == nil {
			sentToday = v
		} else {
			b.Log.Warn("failed to read tips sent today", "user", userID, "err", err)
		}
		if v, err := b.Ghost.AllTimeReceived(ctx, address); err == nil {
			receivedAllTime = v
		} else {
			b.Log.Warn("failed to read all-time received", "user", userID, "err", err)
		}
		daily, _ = b.Ghost.Leaderboard(ctx, ghost.WindowDay, 5)
		weekly, _ = b.Ghost.Leaderboard(ctx, ghost.WindowWeek, 5)
		monthly, _ = b.Ghost.Leaderboard(ctx, ghost.WindowMonth, 5)
	}

	balanceHint := "Enter the number of tacos to withdraw"
	if bal, err := b.Engine.TokenBalance(ctx, address); err == nil {
		if wei, ok := new(big.Int).SetString(bal.Value, 10); ok {
			balanceHint = fmt.Sprintf("You have %s tacos available to withdraw", utils.WeiToTacos(wei))
		}
	}

	notifyOn := true
	if b.DB != nil {
		if pref, err := models.PreferenceForUser(b.DB, teamID, userID); err == nil && pref != nil {
			notifyOn = pref.NotifyOnTipReceived
		}
	}

	blocks := b.homeBlocks(address, sentToday, receivedAllTime, daily, weekly, monthly, notifyOn, balanceHint)
	_, err = b.api(token).PublishViewContext(ctx, userID, slack.HomeTabViewRequest{
		Type:   slack.VTHomeTab,
		Blocks: slack.Blocks{BlockSet: blocks},
	}, "")
	return err
}

func shortenAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}

func header(text string) *slack.HeaderBlock {
	return slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, text, true, false))
}

func mrkdwnSection(text string) *slack.SectionBlock {
	return slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil)
}

func leaderboardBlocks(title string, entries []ghost.Entry) []slack.Block {
	if len(entries) == 0 {
		return []slack.Block{mrkdwnSection(fmt.Sprintf("*%s*\nNo tips yet!", title))}
	}
	blocks := []slack.Block{mrkdwnSection("*" + title + "*")}
	var elems []slack.MixedElement
	for i, entry := range entries {
		if wei, ok := new(big.Int).SetString(entry.TotalAmount, 10); ok {
			entry.TotalAmount = utils.WeiToTacos(wei)
		}
		elems = append(elems, slack.NewTextBlockObject(slack.MarkdownType,
			fmt.Sprintf("%d. `%s` - %s %s", i+1, shortenAddress(entry.UserAddress), entry.TotalAmount, config.TipIndicator),
			false, false))
	}
	return append(blocks, slack.NewContextBlock("", elems...))
}

func (b *Bot) homeBlocks(address, sentToday, receivedAllTime string, daily, weekly, monthly []ghost.Entry, notifyOn bool, balanceHint string) []slack.Block {
	sentTodayText := fmt.Sprintf("(%s)", sentToday)
	if n, ok := new(big.Int).SetString(sentToday, 10); ok && n.IsInt64() && n.Int64() >= 0 && n.Int64() <= 50 {
		sentTodayText = fmt.Sprintf("%s (%s)", strings.Repeat(config.TipIndicator, int(n.Int64())), sentToday)
	}
	receivedText := receivedAllTime
	if wei, ok := new(big.Int).SetString(receivedAllTime, 10); ok {
		receivedText = utils.WeiToTacos(wei)
	}

	onOption := slack.NewOptionBlockObject("true",
		slack.NewTextBlockObject(slack.PlainTextType, "On", true, false), nil)
	offOption := slack.NewOptionBlockObject("false",
		slack.NewTextBlockObject(slack.PlainTextType, "Off", true, false), nil)
	radio := slack.NewRadioButtonsBlockElement(ActionNotificationPreference, onOption, offOption)
	if notifyOn {
		radio.InitialOption = onOption
	} else {
		radio.InitialOption = offOption
	}

	explorerBtn := slack.NewButtonBlockElement("view_on_explorer", "",
		slack.NewTextBlockObject(slack.PlainTextType, "View on "+b.Cfg.ExplorerName, true, false))
	explorerBtn.URL = fmt.Sprintf("%s/address/%s", b.Cfg.ExplorerURL, address)

	withdrawBtn := slack.NewButtonBlockElement(ActionWithdrawTacos, "",
		slack.NewTextBlockObject(slack.PlainTextType, "Withdraw Tacos", true, false))
	withdrawBtn.Style = slack.StylePrimary

	addressInput := slack.NewInputBlock(BlockWithdrawalAddress,
		slack.NewTextBlockObject(slack.PlainTextType, "Withdrawal Address", true, false),
		slack.NewTextBlockObject(slack.PlainTextType, "This address will be used when you choose to withdraw your tacos", true, false),
		slack.NewPlainTextInputBlockElement(
			slack.NewTextBlockObject(slack.PlainTextType, "Enter the address where you want to withdraw your tacos", true, false),
			InputWithdrawalAddress))

	amountInput := slack.NewInputBlock(BlockWithdrawalAmount,
		slack.NewTextBlockObject(slack.PlainTextType, "Amount of Tacos", true, false),
		slack.NewTextBlockObject(slack.PlainTextType, balanceHint, true, false),
		slack.NewNumberInputBlockElement(
			slack.NewTextBlockObject(slack.PlainTextType, "Enter the number of tacos to withdraw", true, false),
			InputWithdrawalAmount, false))

	blocks := []slack.Block{
		header("Your Tip Stats 📊"),
		mrkdwnSection("*Tips Sent Today*"),
		slack.NewContextBlock("", slack.NewTextBlockObject(slack.MarkdownType, sentTodayText, false, false)),
		mrkdwnSection("*Total Tips Received All Time*"),
		slack.NewContextBlock("", slack.NewTextBlockObject(slack.MarkdownType, receivedText, false, false)),
		slack.NewDividerBlock(),
		header("Team Leaderboard 🏆"),
	}
	blocks = append(blocks, leaderboardBlocks("Today's Top Recipients", daily)...)
	blocks = append(blocks, leaderboardBlocks("This Week's Top Recipients", weekly)...)
	blocks = append(blocks, leaderboardBlocks("This Month's Top Recipients", monthly)...)
	blocks = append(blocks,
		slack.NewDividerBlock(),
		header("Notifications :bell:"),
		mrkdwnSection("Choose whether you want to receive a message when someone tips you"),
		slack.NewActionBlock("", radio),
		slack.NewDividerBlock(),
		header("Your Wallet :credit_card:"),
		mrkdwnSection("*Your Wallet Address*"),
		slack.NewContextBlock("", slack.NewTextBlockObject(slack.MarkdownType, "`"+address+"`", false, false)),
		slack.NewActionBlock("", explorerBtn),
		slack.NewDividerBlock(),
		header("Withdraw Tacos :money_with_wings:"),
		addressInput,
		amountInput,
		slack.NewActionBlock("", withdrawBtn),
	)
	return blocks
}
