package dispatch

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"glyph/internal/glypherr"
	"glyph/internal/identity"
	"glyph/internal/ledger"
	"glyph/internal/nodeapi"
	"glyph/internal/pricing"
	"glyph/internal/registry"
	"glyph/internal/replication"
)

func newTestDispatcher(t *testing.T, nodePubkey, nodeURL string) (*Dispatcher, *ledger.Ledger, *identity.Identity) {
	t.Helper()
	dir := t.TempDir()
	l, err := ledger.Open(filepath.Join(dir, "ledger.db"), nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })

	gwID, _ := identity.Generate()
	reg := registry.New()
	if nodeURL != "" {
		reg.Register(nodePubkey, "node-1", nodeURL)
	}
	pricer := pricing.New(nil, nil)
	peers := replication.NewPeers()
	gossip := replication.NewGossiper(l, nil)
	dhtPub := replication.NewDHTPublisher(nil, nil)

	d := New(reg, l, pricer, gwID, peers, gossip, dhtPub, nil)
	return d, l, gwID
}

func TestInferFailsWithNoNodesRegistered(t *testing.T) {
	d, _, _ := newTestDispatcher(t, "", "")
	_, err := d.Infer(context.Background(), Request{Prompt: "hi"})
	if glypherr.KindOf(err) != glypherr.KindNoNodes {
		t.Fatalf("expected KindNoNodes, got %v", err)
	}
}

func TestInferEndToEndWithoutBilling(t *testing.T) {
	nodeID, _ := identity.Generate()
	node := nodeapi.New(nodeID, nil)
	srv := httptest.NewServer(node.Router())
	defer srv.Close()

	d, l, _ := newTestDispatcher(t, nodeID.PublicKeyB64(), srv.URL)

	resp, err := d.Infer(context.Background(), Request{Prompt: "hello world"})
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}
	if resp.Text == "" {
		t.Fatalf("expected non-empty response text")
	}

	rows, err := l.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 receipt recorded, got %d", len(rows))
	}
	if !rows[0].Receipt.Verify() {
		t.Fatalf("expected recorded receipt to carry valid dual signatures")
	}

	// Fan-out is fire-and-forget; give goroutines a moment to run without
	// making the test depend on their completion.
	time.Sleep(10 * time.Millisecond)
}

func TestInferDebitsBeforeCommitAndFailsOnInsufficientBalance(t *testing.T) {
	nodeID, _ := identity.Generate()
	node := nodeapi.New(nodeID, nil)
	srv := httptest.NewServer(node.Router())
	defer srv.Close()

	d, l, _ := newTestDispatcher(t, nodeID.PublicKeyB64(), srv.URL)

	user := "user-pubkey-1"
	if err := l.Ensure(user); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}

	// Long enough that the quote is strictly positive at the base rate: 10
	// prompt tokens price to 1 mGLYPH before the output term is added.
	prompt := "one two three four five six seven eight nine ten"

	_, err := d.Infer(context.Background(), Request{Prompt: prompt, UserPubkey: user})
	if err != glypherr.ErrInsufficientBalance {
		t.Fatalf("expected ErrInsufficientBalance with a zero balance, got %v", err)
	}

	rows, _ := l.List()
	if len(rows) != 0 {
		t.Fatalf("expected no receipt to be committed when debit fails, got %d", len(rows))
	}

	if err := l.Credit(user, 10_000_000, "seed", "test"); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}
	resp, err := d.Infer(context.Background(), Request{Prompt: prompt, UserPubkey: user})
	if err != nil {
		t.Fatalf("Infer failed after funding account: %v", err)
	}
	if resp.Text == "" {
		t.Fatalf("expected non-empty response text")
	}

	bal, err := l.Balance(user)
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if bal >= 10_000_000 {
		t.Fatalf("expected balance to be debited, got %d", bal)
	}
}
