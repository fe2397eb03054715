package tips

import (
	"testing"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/require"
)

func richBlocks(userIDs ...string) slack.Blocks {
	els := make([]slack.RichTextSectionElement, 0, len(userIDs))
	for _, id := range userIDs {
		els = append(els, slack.NewRichTextSectionUserElement(id, nil))
	}
	return slack.Blocks{BlockSet: []slack.Block{
		slack.NewRichTextBlock("", slack.NewRichTextSection(els...)),
	}}
}

func TestCountTipIndicators(t *testing.T) {
	require.Equal(t, 0, CountTipIndicators("thanks for the help"))
	require.Equal(t, 1, CountTipIndicators("nice work :taco:"))
	require.Equal(t, 3, CountTipIndicators(":taco::taco: and one more :taco:"))
}

func TestParseIntentMultipleRecipients(t *testing.T) {
	intent, ok := ParseIntent(IncomingMessage{
		EventID:  "Ev1",
		TeamID:   "T1",
		SenderID: "U0",
		Text:     "<@U1> <@U2> great demo :taco::taco:",
		Blocks:   richBlocks("U1", "U2"),
	})
	require.True(t, ok)
	require.Equal(t, []string{"U1", "U2"}, intent.RecipientIDs)
	require.Equal(t, 2, intent.Amount)
	require.Equal(t, "U0", intent.SenderID)
}

func TestParseIntentKeepsOrderAndDropsDuplicates(t *testing.T) {
	intent, ok := ParseIntent(IncomingMessage{
		SenderID: "U0",
		Text:     ":taco:",
		Blocks:   richBlocks("U3", "U1", "U3", "U2", "U1"),
	})
	require.True(t, ok)
	require.Equal(t, []string{"U3", "U1", "U2"}, intent.RecipientIDs)
}

func TestParseIntentExcludesSender(t *testing.T) {
	intent, ok := ParseIntent(IncomingMessage{
		SenderID: "U0",
		Text:     "treating myself and <@U1> :taco:",
		Blocks:   richBlocks("U0", "U1"),
	})
	require.True(t, ok)
	require.Equal(t, []string{"U1"}, intent.RecipientIDs)
}

func TestParseIntentSelfTipIsNoOp(t *testing.T) {
	_, ok := ParseIntent(IncomingMessage{
		SenderID: "U0",
		Text:     "<@U0> :taco:",
		Blocks:   richBlocks("U0"),
	})
	require.False(t, ok)
}

func TestParseIntentWithoutIndicatorIsNoOp(t *testing.T) {
	_, ok := ParseIntent(IncomingMessage{
		SenderID: "U0",
		Text:     "<@U1> thanks!",
		Blocks:   richBlocks("U1"),
	})
	require.False(t, ok)
}

func TestParseIntentWithoutMentionsIsNoOp(t *testing.T) {
	_, ok := ParseIntent(IncomingMessage{
		SenderID: "U0",
		Text:     "tacos for everyone :taco:",
	})
	require.False(t, ok)
}

func TestMentionedUsersIgnoresNonRichBlocks(t *testing.T) {
	blocks := slack.Blocks{BlockSet: []slack.Block{
		slack.NewDividerBlock(),
		slack.NewRichTextBlock("", slack.NewRichTextSection(
			slack.NewRichTextSectionTextElement("hey ", nil),
			slack.NewRichTextSectionUserElement("U7", nil),
		)),
	}}
	require.Equal(t, []string{"U7"}, MentionedUsers(blocks))
}
