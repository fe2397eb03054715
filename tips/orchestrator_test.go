package tips

import (
	"context"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tacotip-backend/engine"
	"tacotip-backend/store"
)

const testTipToken = "0x00000000000000000000000000000000000000aa"

// addrFor derives a stable, well-formed address per user so call encoding in
// tests goes through the same validation as production input.
func addrFor(userID string) string {
	h := hex.EncodeToString([]byte(userID))
	if len(h) > 40 {
		h = h[:40]
	}
	return "0x" + strings.Repeat("0", 40-len(h)) + h
}

type fakeEngine struct {
	mu          sync.Mutex
	deployed    map[string]bool
	registered  map[string]bool
	failResolve map[string]bool
	batches     [][]engine.Call
	batchKeys   []string
	deployKeys  []string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		deployed:    make(map[string]bool),
		registered:  make(map[string]bool),
		failResolve: make(map[string]bool),
	}
}

func (f *fakeEngine) PredictAddress(_ context.Context, userID, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failResolve[userID] {
		return "", errors.New("relay unreachable")
	}
	return addrFor(userID), nil
}

func (f *fakeEngine) IsDeployed(_ context.Context, userID, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deployed[userID], nil
}

func (f *fakeEngine) DeployAccount(_ context.Context, userID, _, idempotencyKey string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deployed[userID] = true
	f.deployKeys = append(f.deployKeys, idempotencyKey)
	return "deploy-queue", nil
}

func (f *fakeEngine) IsRegistered(_ context.Context, address string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registered[address], nil
}

func (f *fakeEngine) SendBatch(_ context.Context, calls []engine.Call, idempotencyKey string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, calls)
	f.batchKeys = append(f.batchKeys, idempotencyKey)
	return "queue-1", nil
}

func (f *fakeEngine) TipToken() string { return testTipToken }

type fakeNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeNotifier) SendEphemeral(_ context.Context, _, _, _, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return nil
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *fakeEngine, *fakeNotifier) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "tips.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	eng := newFakeEngine()
	notifier := &fakeNotifier{}
	o := &Orchestrator{
		Engine:     eng,
		Store:      s,
		Notifier:   notifier,
		Log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		DedupTTL:   5 * time.Minute,
		PendingTTL: 5 * time.Minute,
	}
	return o, eng, notifier
}

func tipMessage(eventID string, recipients ...string) IncomingMessage {
	return IncomingMessage{
		EventID:   eventID,
		TeamID:    "T1",
		SenderID:  "U0",
		ChannelID: "C1",
		Text:      "great demo :taco::taco:",
		MessageTS: "1714.0001",
		Blocks:    richBlocks(recipients...),
	}
}

func TestHandleMessageSubmitsSingleTransfer(t *testing.T) {
	o, eng, _ := newTestOrchestrator(t)
	eng.deployed["U0"] = true
	eng.deployed["U1"] = true
	eng.deployed["U2"] = true
	eng.registered[addrFor("U0")] = true

	out, err := o.HandleMessage(context.Background(), tipMessage("Ev1", "U1", "U2"))
	require.NoError(t, err)
	require.Equal(t, OutcomeSubmitted, out)

	require.Len(t, eng.batches, 1)
	require.Len(t, eng.batches[0], 1, "registered sender needs no registration call")
	require.Equal(t, []string{"tip-Ev1"}, eng.batchKeys)

	pending, found, err := o.Store.TakePending("queue-1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "U0", pending.SenderUserID)
	require.Equal(t, []string{"U1", "U2"}, pending.RecipientUserIDs)
	require.Equal(t, 2, pending.TipAmount)
}

func TestHandleMessageRegistersUnregisteredSenderFirst(t *testing.T) {
	o, eng, _ := newTestOrchestrator(t)
	eng.deployed["U0"] = true
	eng.deployed["U1"] = true

	out, err := o.HandleMessage(context.Background(), tipMessage("Ev2", "U1"))
	require.NoError(t, err)
	require.Equal(t, OutcomeSubmitted, out)

	require.Len(t, eng.batches, 1)
	calls := eng.batches[0]
	require.Len(t, calls, 2)

	wantReg, err := engine.RegisterAccountCall(testTipToken, addrFor("U0"))
	require.NoError(t, err)
	require.Equal(t, wantReg, calls[0], "registration must precede the transfer")
}

func TestHandleMessageDeploysUndeployedSender(t *testing.T) {
	o, eng, _ := newTestOrchestrator(t)
	eng.deployed["U1"] = true

	_, err := o.HandleMessage(context.Background(), tipMessage("Ev3", "U1"))
	require.NoError(t, err)
	require.Contains(t, eng.deployKeys, "deploy-account-T1-U0-Ev3")
}

func TestHandleMessageConcurrentDuplicatesSubmitOnce(t *testing.T) {
	o, eng, _ := newTestOrchestrator(t)
	eng.deployed["U0"] = true
	eng.deployed["U1"] = true
	eng.registered[addrFor("U0")] = true

	msg := tipMessage("Ev4", "U1")
	type result struct {
		out Outcome
		err error
	}
	results := make(chan result, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := o.HandleMessage(context.Background(), msg)
			results <- result{out: out, err: err}
		}()
	}
	wg.Wait()
	close(results)

	require.Len(t, eng.batches, 1, "a retried delivery must not double-spend")

	counts := map[Outcome]int{}
	for res := range results {
		require.NoError(t, res.err)
		counts[res.out]++
	}
	require.Equal(t, 1, counts[OutcomeSubmitted])
	require.Equal(t, 1, counts[OutcomeDuplicate])
}

func TestHandleMessageRetryAfterRestartIsDuplicate(t *testing.T) {
	o, eng, _ := newTestOrchestrator(t)
	eng.deployed["U0"] = true
	eng.deployed["U1"] = true
	eng.registered[addrFor("U0")] = true

	msg := tipMessage("Ev8", "U1")
	out, err := o.HandleMessage(context.Background(), msg)
	require.NoError(t, err)
	require.Equal(t, OutcomeSubmitted, out)

	// A redelivery handled by a fresh process over the same database must not
	// reach the relay again; the dedup marker, not memory, carries the state.
	eng2 := newFakeEngine()
	o2 := &Orchestrator{
		Engine:     eng2,
		Store:      o.Store,
		Log:        o.Log,
		DedupTTL:   o.DedupTTL,
		PendingTTL: o.PendingTTL,
	}
	out, err = o2.HandleMessage(context.Background(), msg)
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, out)
	require.Empty(t, eng2.batches)
}

func TestHandleMessageDropsOnlyFailedRecipient(t *testing.T) {
	o, eng, _ := newTestOrchestrator(t)
	eng.deployed["U0"] = true
	eng.deployed["U1"] = true
	eng.deployed["U2"] = true
	eng.registered[addrFor("U0")] = true
	eng.failResolve["U2"] = true

	out, err := o.HandleMessage(context.Background(), tipMessage("Ev5", "U1", "U2"))
	require.NoError(t, err)
	require.Equal(t, OutcomeSubmitted, out)

	pending, found, err := o.Store.TakePending("queue-1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []string{"U1"}, pending.RecipientUserIDs)
}

func TestHandleMessageAbortsWhenNoRecipientResolves(t *testing.T) {
	o, eng, notifier := newTestOrchestrator(t)
	eng.deployed["U0"] = true
	eng.registered[addrFor("U0")] = true
	eng.failResolve["U1"] = true

	out, err := o.HandleMessage(context.Background(), tipMessage("Ev6", "U1"))
	require.Error(t, err)
	require.Equal(t, OutcomeNoOp, out)
	require.Empty(t, eng.batches)
	require.Len(t, notifier.texts, 1, "sender gets an ephemeral failure notice")
}

func TestHandleMessageWithoutEventIDStillProcesses(t *testing.T) {
	o, eng, _ := newTestOrchestrator(t)
	eng.deployed["U0"] = true
	eng.deployed["U1"] = true
	eng.registered[addrFor("U0")] = true

	msg := tipMessage("", "U1")
	out, err := o.HandleMessage(context.Background(), msg)
	require.NoError(t, err)
	require.Equal(t, OutcomeSubmitted, out)

	// No event ID means no dedup: a second delivery goes through again.
	out, err = o.HandleMessage(context.Background(), msg)
	require.NoError(t, err)
	require.Equal(t, OutcomeSubmitted, out)
	require.Len(t, eng.batches, 2)
}

func TestHandleMessageNonTipIsNoOp(t *testing.T) {
	o, eng, _ := newTestOrchestrator(t)

	out, err := o.HandleMessage(context.Background(), IncomingMessage{
		EventID:  "Ev7",
		TeamID:   "T1",
		SenderID: "U0",
		Text:     "no tacos here",
		Blocks:   richBlocks("U1"),
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeNoOp, out)
	require.Empty(t, eng.batches)
}
