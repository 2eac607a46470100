package ledger

import (
	"encoding/json"
	"path/filepath"
	"testing"

	bolt "go.etcd.io/bbolt"

	"glyph/internal/identity"
	"glyph/internal/receipt"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	dir := t.TempDir()
	l, err := Open(filepath.Join(dir, "ledger.db"), nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func signedReceipt(t *testing.T, gw, node *identity.Identity, session string, outputTokens int64) *receipt.Receipt {
	t.Helper()
	r := receipt.New(gw.PublicKeyB64(), node.PublicKeyB64(), session, "/generate", 10, outputTokens, 100)
	r.SignGateway(gw.Private)
	r.SignNode(node.Private)
	return r
}

func TestAddRejectsUnsignedReceipt(t *testing.T) {
	l := openTestLedger(t)
	gw, _ := identity.Generate()
	node, _ := identity.Generate()
	r := receipt.New(gw.PublicKeyB64(), node.PublicKeyB64(), "sess", "/generate", 10, 20, 100)

	if _, err := l.Add(r); err == nil {
		t.Fatalf("expected Add to reject an unsigned receipt")
	}
}

func TestAddIsIdempotentAndChainsCorrectly(t *testing.T) {
	l := openTestLedger(t)
	gw, _ := identity.Generate()
	node, _ := identity.Generate()

	r1 := signedReceipt(t, gw, node, "sess-1", 20)
	r2 := signedReceipt(t, gw, node, "sess-2", 30)

	wantAdded := []bool{true, true, false}
	for i, r := range []*receipt.Receipt{r1, r2, r1} {
		added, err := l.Add(r)
		if err != nil {
			t.Fatalf("Add failed: %v", err)
		}
		if added != wantAdded[i] {
			t.Fatalf("Add #%d reported added=%v, want %v", i, added, wantAdded[i])
		}
	}

	rows, err := l.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected re-adding r1 to be a no-op, got %d rows", len(rows))
	}

	ok, err := l.VerifyChain()
	if err != nil {
		t.Fatalf("VerifyChain failed: %v", err)
	}
	if !ok {
		t.Fatalf("expected chain to verify")
	}

	head, err := l.GetChainHead()
	if err != nil {
		t.Fatalf("GetChainHead failed: %v", err)
	}
	if head != rows[len(rows)-1].ChainHash {
		t.Fatalf("chain head does not match last row's chain hash")
	}
}

func TestVerifyChainDetectsTampering(t *testing.T) {
	l := openTestLedger(t)
	gw, _ := identity.Generate()
	node, _ := identity.Generate()

	if _, err := l.Add(signedReceipt(t, gw, node, "sess-1", 20)); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, err := l.Add(signedReceipt(t, gw, node, "sess-2", 30)); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	rows, err := l.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	rows[0].ChainHash = "tampered"
	raw, err := json.Marshal(rows[0])
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if err := l.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketReceiptsOrder).Put(seqKey(rows[0].Seq), raw)
	}); err != nil {
		t.Fatalf("direct bucket write failed: %v", err)
	}

	ok, err := l.VerifyChain()
	if err != nil {
		t.Fatalf("VerifyChain failed: %v", err)
	}
	if ok {
		t.Fatalf("expected VerifyChain to detect the tampered row")
	}
}

func TestAccountConservation(t *testing.T) {
	l := openTestLedger(t)
	if err := l.Credit("alice", 1000, "seed", "ref-1"); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}
	if err := l.Debit("alice", 400, "spend", "ref-2"); err != nil {
		t.Fatalf("Debit failed: %v", err)
	}
	bal, err := l.Balance("alice")
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if bal != 600 {
		t.Fatalf("expected balance 600, got %d", bal)
	}

	entries, err := l.TransactionLog("alice")
	if err != nil {
		t.Fatalf("TransactionLog failed: %v", err)
	}
	var sum int64
	for _, e := range entries {
		sum += e.Delta
	}
	if sum != bal {
		t.Fatalf("expected sum of log deltas (%d) to equal balance (%d)", sum, bal)
	}
}

func TestDebitRejectsInsufficientBalance(t *testing.T) {
	l := openTestLedger(t)
	if err := l.Credit("bob", 100, "seed", "ref-1"); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}
	if err := l.Debit("bob", 500, "spend", "ref-2"); err == nil {
		t.Fatalf("expected Debit to fail on insufficient balance")
	}
	bal, err := l.Balance("bob")
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if bal != 100 {
		t.Fatalf("expected balance to be unchanged at 100, got %d", bal)
	}
}

func TestAggregateWeightedSumsWithinWindow(t *testing.T) {
	l := openTestLedger(t)
	gw, _ := identity.Generate()
	node1, _ := identity.Generate()
	node2, _ := identity.Generate()

	mkReceipt := func(node *identity.Identity, session string, outputTokens, createdAt int64) *receipt.Receipt {
		r := receipt.New(gw.PublicKeyB64(), node.PublicKeyB64(), session, "/generate", 10, outputTokens, 100)
		r.CreatedAt = createdAt
		r.SignGateway(gw.Private)
		r.SignNode(node.Private)
		return r
	}

	r1 := mkReceipt(node1, "sess-1", 100, 1000)
	r2 := mkReceipt(node2, "sess-2", 50, 1500)
	r3 := mkReceipt(node1, "sess-3", 200, 5000) // outside window

	for _, r := range []*receipt.Receipt{r1, r2, r3} {
		if _, err := l.Add(r); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	weights, err := l.AggregateWeighted(0, 2000)
	if err != nil {
		t.Fatalf("AggregateWeighted failed: %v", err)
	}
	if got := weights[node1.PublicKeyB64()]; got != 100*DefaultQuality {
		t.Fatalf("expected node1 weight %v, got %v", 100*DefaultQuality, got)
	}
	if got := weights[node2.PublicKeyB64()]; got != 50*DefaultQuality {
		t.Fatalf("expected node2 weight %v, got %v", 50*DefaultQuality, got)
	}
}

func TestEpochSaveGetAndAnchor(t *testing.T) {
	l := openTestLedger(t)
	snap := &Snapshot{
		EpochID:     "epoch-1",
		TokenTicker: "GLYPH",
		TotalAmount: 1000,
		Payouts:     []Payout{{NodePubkey: "n1", EthAddress: "0xabc", Amount: 1000}},
	}
	if err := l.SaveEpoch(snap.EpochID, snap); err != nil {
		t.Fatalf("SaveEpoch failed: %v", err)
	}

	got, err := l.GetEpoch("epoch-1")
	if err != nil {
		t.Fatalf("GetEpoch failed: %v", err)
	}
	if got.TokenTicker != "GLYPH" || got.TotalAmount != 1000 {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
	if got.Finalized {
		t.Fatalf("expected new epoch to be unfinalized")
	}

	if err := l.SetAnchor("epoch-1", "0xdeadbeef"); err != nil {
		t.Fatalf("SetAnchor failed: %v", err)
	}
	got, err = l.GetEpoch("epoch-1")
	if err != nil {
		t.Fatalf("GetEpoch failed: %v", err)
	}
	if !got.Finalized || got.AnchorTxID != "0xdeadbeef" {
		t.Fatalf("expected epoch to be finalized with anchor txid, got %+v", got)
	}
}

func TestGetEpochNotFound(t *testing.T) {
	l := openTestLedger(t)
	if _, err := l.GetEpoch("missing"); err == nil {
		t.Fatalf("expected GetEpoch to fail for an unknown epoch id")
	}
}

func TestQuorumMonotonicityAndThreshold(t *testing.T) {
	l := openTestLedger(t)
	if err := l.SetQuorumThreshold(2); err != nil {
		t.Fatalf("SetQuorumThreshold failed: %v", err)
	}
	th, err := l.GetQuorumThreshold()
	if err != nil {
		t.Fatalf("GetQuorumThreshold failed: %v", err)
	}
	if th != 2 {
		t.Fatalf("expected threshold 2, got %d", th)
	}

	if err := l.RecordEpochSignature("epoch-1", "v1", "sig1"); err != nil {
		t.Fatalf("RecordEpochSignature failed: %v", err)
	}
	sigs, _ := l.EpochSignatures("epoch-1")
	if len(sigs) != 1 {
		t.Fatalf("expected 1 signature, got %d", len(sigs))
	}

	if err := l.RecordEpochSignature("epoch-1", "v2", "sig2"); err != nil {
		t.Fatalf("RecordEpochSignature failed: %v", err)
	}
	sigs, _ = l.EpochSignatures("epoch-1")
	if len(sigs) != 2 {
		t.Fatalf("expected signature count to grow monotonically, got %d", len(sigs))
	}

	// Resubmission from the same validator must not increase the count.
	if err := l.RecordEpochSignature("epoch-1", "v1", "sig1-again"); err != nil {
		t.Fatalf("RecordEpochSignature failed: %v", err)
	}
	sigs, _ = l.EpochSignatures("epoch-1")
	if len(sigs) != 2 {
		t.Fatalf("expected duplicate validator resubmission not to grow count, got %d", len(sigs))
	}
	if sigs["v1"] != "sig1-again" {
		t.Fatalf("expected last-write-wins for duplicate validator signature")
	}
}
