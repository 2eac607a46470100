package replication

import (
	"path/filepath"
	"testing"

	"glyph/internal/identity"
	"glyph/internal/ledger"
	"glyph/internal/receipt"
)

func openTestLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	dir := t.TempDir()
	l, err := ledger.Open(filepath.Join(dir, "ledger.db"), nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestPeersAddIsIdempotent(t *testing.T) {
	p := NewPeers()
	p.Add("http://peer-a")
	p.Add("http://peer-b")
	got := p.Add("http://peer-a")

	if len(got) != 2 {
		t.Fatalf("expected re-adding a known peer not to grow the list, got %v", got)
	}
	if len(p.List()) != 2 {
		t.Fatalf("expected List to reflect 2 unique peers, got %v", p.List())
	}
}

func TestAcceptReceiptsDropsInvalidSilentlyAndIsIdempotent(t *testing.T) {
	l := openTestLedger(t)
	g := NewGossiper(l, nil)

	gw, _ := identity.Generate()
	node, _ := identity.Generate()
	valid := receipt.New(gw.PublicKeyB64(), node.PublicKeyB64(), "sess", "/generate", 10, 20, 100)
	valid.SignGateway(gw.Private)
	valid.SignNode(node.Private)

	unsigned := receipt.New(gw.PublicKeyB64(), node.PublicKeyB64(), "sess-2", "/generate", 10, 20, 100)

	n := g.AcceptReceipts([]*receipt.Receipt{valid, unsigned, nil})
	if n != 1 {
		t.Fatalf("expected 1 accepted receipt, got %d", n)
	}

	rows, err := l.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected only the valid receipt to land in the ledger, got %d rows", len(rows))
	}

	// Re-gossiping the same valid receipt must not inflate the accepted
	// count: across the gateway's lifetime a receipt is accepted at most
	// once.
	n = g.AcceptReceipts([]*receipt.Receipt{valid})
	if n != 0 {
		t.Fatalf("expected re-gossip of a known receipt to accept 0, got %d", n)
	}
	rows, _ = l.List()
	if len(rows) != 1 {
		t.Fatalf("expected ledger row count to remain 1 after re-gossip, got %d", len(rows))
	}
}

func TestAcceptMintProposalsRequiresMatchingEpochRoot(t *testing.T) {
	l := openTestLedger(t)
	g := NewGossiper(l, nil)

	snap := &ledger.Snapshot{EpochID: "epoch-1", Root: "root-abc"}
	if err := l.SaveEpoch(snap.EpochID, snap); err != nil {
		t.Fatalf("SaveEpoch failed: %v", err)
	}

	existing := make(map[string]*MintProposal)
	proposals := []*MintProposal{
		{ID: "p1", EpochID: "epoch-1", EpochRoot: "root-abc"},
		{ID: "p2", EpochID: "epoch-1", EpochRoot: "wrong-root"},
		{ID: "p3", EpochID: "unknown-epoch", EpochRoot: "root-abc"},
	}

	n := g.AcceptMintProposals(existing, proposals)
	if n != 1 {
		t.Fatalf("expected only the matching-root proposal to be accepted, got %d", n)
	}
	if _, ok := existing["p1"]; !ok {
		t.Fatalf("expected p1 to be present in existing set")
	}

	// Duplicate id against the existing set is rejected.
	n = g.AcceptMintProposals(existing, []*MintProposal{{ID: "p1", EpochID: "epoch-1", EpochRoot: "root-abc"}})
	if n != 0 {
		t.Fatalf("expected duplicate proposal id to be rejected, got %d accepted", n)
	}
}

func TestProposalStorePutGetAndAddSignature(t *testing.T) {
	s := NewProposalStore()
	id := s.Put(&MintProposal{EpochID: "epoch-1", EpochRoot: "root-abc"}, "p1")
	if id != "p1" {
		t.Fatalf("expected assigned id p1, got %s", id)
	}

	got, err := s.Get("p1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.EpochID != "epoch-1" {
		t.Fatalf("unexpected proposal: %+v", got)
	}

	count, err := s.AddSignature("p1", "validator-1", "sig-1")
	if err != nil {
		t.Fatalf("AddSignature failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected signature count 1, got %d", count)
	}

	if _, err := s.AddSignature("missing", "v", "s"); err == nil {
		t.Fatalf("expected AddSignature on unknown id to fail")
	}

	if len(s.List()) != 1 {
		t.Fatalf("expected List to return 1 proposal")
	}
}

func TestProposalStoreMergeSkipsExisting(t *testing.T) {
	s := NewProposalStore()
	s.Put(&MintProposal{EpochID: "epoch-1"}, "p1")

	s.Merge(map[string]*MintProposal{
		"p1": {EpochID: "should-not-overwrite"},
		"p2": {EpochID: "epoch-2"},
	})

	if len(s.List()) != 2 {
		t.Fatalf("expected merge to add only the new proposal, got %d total", len(s.List()))
	}
	got, _ := s.Get("p1")
	if got.EpochID != "epoch-1" {
		t.Fatalf("expected merge not to overwrite an existing proposal, got %+v", got)
	}
}
