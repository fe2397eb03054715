package slackbot

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/require"

	"tacotip-backend/config"
	"tacotip-backend/store"
)

func testBot() *Bot {
	return &Bot{Cfg: &config.Config{
		ExplorerURL:  "https://sepolia.basescan.org",
		ExplorerName: "Basescan",
	}}
}

func blocksJSON(t *testing.T, blocks []slack.Block) string {
	t.Helper()
	data, err := json.Marshal(blocks)
	require.NoError(t, err)
	// Slack's custom marshalers HTML-escape via json.Marshal; undo the
	// escaping so substring assertions can match raw URLs.
	return strings.ReplaceAll(string(data), `\u0026`, "&")
}

func TestJoinNames(t *testing.T) {
	require.Equal(t, "", joinNames(nil))
	require.Equal(t, "Ada", joinNames([]string{"Ada"}))
	require.Equal(t, "Ada and Grace", joinNames([]string{"Ada", "Grace"}))
	require.Equal(t, "Ada, Grace and Edsger", joinNames([]string{"Ada", "Grace", "Edsger"}))
}

func TestDisplayNameFallbacks(t *testing.T) {
	require.Equal(t, "Ada Lovelace", displayName(&slack.User{ID: "U1", RealName: "Ada Lovelace"}))

	u := &slack.User{ID: "U1"}
	u.Profile.DisplayName = "ada"
	require.Equal(t, "ada", displayName(u))

	require.Equal(t, "U1", displayName(&slack.User{ID: "U1"}))
	require.Equal(t, "Unknown User", displayName(&slack.User{}))
}

func TestFailureBlocksCarryRelayError(t *testing.T) {
	b := testBot()
	tip := store.PendingTip{TeamID: "T1", ChannelID: "C1", MessageTS: "1714.1", TipAmount: 2}

	out := blocksJSON(t, b.failureBlocks(tip, nil, "0xhash", "insufficient funds"))
	require.Contains(t, out, "Error: insufficient funds")
	require.Contains(t, out, config.TipIndicator+config.TipIndicator+" (2)")
	require.Contains(t, out, "0xhash")
}

func TestFailureBlocksGenericWithoutError(t *testing.T) {
	b := testBot()
	out := blocksJSON(t, b.failureBlocks(store.PendingTip{TipAmount: 1}, nil, "", ""))
	require.Contains(t, out, "unknown reason")
	require.NotContains(t, out, "Transaction Hash")
}

func TestSuccessBlocksLinkExplorer(t *testing.T) {
	b := testBot()
	tip := store.PendingTip{TeamID: "T1", ChannelID: "C1", MessageTS: "1714.1"}
	recipients := []*slack.User{{ID: "U1", RealName: "Grace"}}

	out := blocksJSON(t, b.successBlocks(tip, recipients, "0xabc"))
	require.Contains(t, out, "https://sepolia.basescan.org/tx/0xabc")
	require.Contains(t, out, "slack://channel?team=T1&id=C1&message=1714.1")
	require.Contains(t, out, "Grace")
}

func TestReceivedBlocksLinkMessageAndTransaction(t *testing.T) {
	b := testBot()
	tip := store.PendingTip{TeamID: "T1", ChannelID: "C1", MessageTS: "1714.1"}
	sender := &slack.User{ID: "U0", RealName: "Ada"}

	out := blocksJSON(t, b.receivedBlocks(tip, sender, "0xabc"))
	require.Contains(t, out, "slack://channel?team=T1&id=C1&message=1714.1")
	require.Contains(t, out, "https://sepolia.basescan.org/tx/0xabc")
	require.Contains(t, out, "Ada")
}

func TestShortenAddress(t *testing.T) {
	require.Equal(t, "0x1234…cdef", shortenAddress("0x12345678000000000000000000000000"+"0000cdef"))
	require.Equal(t, "0xabc", shortenAddress("0xabc"))
}
