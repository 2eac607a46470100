package epoch

import (
	"path/filepath"
	"testing"

	"glyph/internal/glypherr"
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

func TestSettleRejectsEmptyWindow(t *testing.T) {
	l := openTestLedger(t)
	gwID, _ := identity.Generate()
	e := New(l, gwID, nil, nil)

	_, err := e.Settle(Plan{TokenTicker: "GLYPH", TotalAmount: 1000, StartTime: 0, EndTime: 100})
	if glypherr.KindOf(err) != glypherr.KindEmptyEpoch {
		t.Fatalf("expected KindEmptyEpoch, got %v (%v)", glypherr.KindOf(err), err)
	}
}

func TestSettlePayoutsStayWithinTotalAmountAndSigns(t *testing.T) {
	l := openTestLedger(t)
	gwID, _ := identity.Generate()
	node1, _ := identity.Generate()
	node2, _ := identity.Generate()

	if err := l.SetNodeAddress(node1.PublicKeyB64(), "0x1111111111111111111111111111111111111111"); err != nil {
		t.Fatalf("SetNodeAddress failed: %v", err)
	}
	if err := l.SetNodeAddress(node2.PublicKeyB64(), "0x2222222222222222222222222222222222222222"); err != nil {
		t.Fatalf("SetNodeAddress failed: %v", err)
	}

	mk := func(node *identity.Identity, session string, outputTokens int64) *receipt.Receipt {
		r := receipt.New(gwID.PublicKeyB64(), node.PublicKeyB64(), session, "/generate", 10, outputTokens, 100)
		r.CreatedAt = 1000
		r.SignGateway(gwID.Private)
		r.SignNode(node.Private)
		return r
	}
	if _, err := l.Add(mk(node1, "s1", 100)); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, err := l.Add(mk(node2, "s2", 100)); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	e := New(l, gwID, nil, nil)
	snap, err := e.Settle(Plan{TokenTicker: "GLYPH", TotalAmount: 1000, StartTime: 0, EndTime: 2000})
	if err != nil {
		t.Fatalf("Settle failed: %v", err)
	}

	var sum int64
	for _, p := range snap.Payouts {
		sum += p.Amount
	}
	// Equal weights split the total evenly; floor division may leave a
	// residual below the total, but never exceed it.
	if sum > snap.TotalAmount {
		t.Fatalf("payout sum %d exceeds total amount %d", sum, snap.TotalAmount)
	}
	if len(snap.Payouts) != 2 {
		t.Fatalf("expected 2 payouts, got %d", len(snap.Payouts))
	}

	if !identity.Verify(gwID.PublicKeyB64(), CanonicalSnapshot(snap), snap.GatewaySig) {
		t.Fatalf("expected gateway signature over canonical snapshot to verify")
	}
}

func TestSettleSkipsUnaddressedNodes(t *testing.T) {
	l := openTestLedger(t)
	gwID, _ := identity.Generate()
	node1, _ := identity.Generate()
	node2, _ := identity.Generate() // never registers a payout address

	if err := l.SetNodeAddress(node1.PublicKeyB64(), "0x1111111111111111111111111111111111111111"); err != nil {
		t.Fatalf("SetNodeAddress failed: %v", err)
	}

	mk := func(node *identity.Identity, session string, outputTokens int64) *receipt.Receipt {
		r := receipt.New(gwID.PublicKeyB64(), node.PublicKeyB64(), session, "/generate", 10, outputTokens, 100)
		r.CreatedAt = 1000
		r.SignGateway(gwID.Private)
		r.SignNode(node.Private)
		return r
	}
	if _, err := l.Add(mk(node1, "s1", 100)); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, err := l.Add(mk(node2, "s2", 100)); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	e := New(l, gwID, nil, nil)
	snap, err := e.Settle(Plan{TokenTicker: "GLYPH", TotalAmount: 1000, StartTime: 0, EndTime: 2000})
	if err != nil {
		t.Fatalf("Settle failed: %v", err)
	}
	if len(snap.Payouts) != 1 {
		t.Fatalf("expected only the addressed node to receive a payout, got %d", len(snap.Payouts))
	}
	if snap.Payouts[0].NodePubkey != node1.PublicKeyB64() {
		t.Fatalf("expected payout to go to node1, got %s", snap.Payouts[0].NodePubkey)
	}
}

func TestSignRequiresRegisteredValidatorAndValidSignature(t *testing.T) {
	l := openTestLedger(t)
	gwID, _ := identity.Generate()
	node1, _ := identity.Generate()
	validator, _ := identity.Generate()
	outsider, _ := identity.Generate()

	if err := l.SetNodeAddress(node1.PublicKeyB64(), "0x1111111111111111111111111111111111111111"); err != nil {
		t.Fatalf("SetNodeAddress failed: %v", err)
	}
	r := receipt.New(gwID.PublicKeyB64(), node1.PublicKeyB64(), "s1", "/generate", 10, 100, 100)
	r.CreatedAt = 1000
	r.SignGateway(gwID.Private)
	r.SignNode(node1.Private)
	if _, err := l.Add(r); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	e := New(l, gwID, nil, nil)
	snap, err := e.Settle(Plan{TokenTicker: "GLYPH", TotalAmount: 1000, StartTime: 0, EndTime: 2000})
	if err != nil {
		t.Fatalf("Settle failed: %v", err)
	}

	if err := l.AddValidator(validator.PublicKeyB64(), 1.0); err != nil {
		t.Fatalf("AddValidator failed: %v", err)
	}

	// Non-validator is rejected regardless of signature validity.
	sig := outsider.Sign(CanonicalSnapshot(snap))
	if _, _, err := e.Sign(snap.EpochID, outsider.PublicKeyB64(), sig); glypherr.KindOf(err) != glypherr.KindForbidden {
		t.Fatalf("expected KindForbidden for non-validator signer, got %v", err)
	}

	// Validator with a bad signature is rejected.
	if _, _, err := e.Sign(snap.EpochID, validator.PublicKeyB64(), "garbage"); glypherr.KindOf(err) != glypherr.KindBadSignature {
		t.Fatalf("expected KindBadSignature for invalid signature, got %v", err)
	}

	// Validator with a correct signature succeeds.
	validSig := validator.Sign(CanonicalSnapshot(snap))
	sigs, threshold, err := e.Sign(snap.EpochID, validator.PublicKeyB64(), validSig)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if threshold != 1 {
		t.Fatalf("expected default quorum threshold 1, got %d", threshold)
	}
	if sigs[validator.PublicKeyB64()] != validSig {
		t.Fatalf("expected recorded signature to match submission")
	}
}
