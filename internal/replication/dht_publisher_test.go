package replication

import (
	"testing"

	"glyph/internal/dht"
	"glyph/internal/identity"
	"glyph/internal/receipt"
)

func TestDHTPublisherPublishAndFetchHead(t *testing.T) {
	store := dht.New()
	pub := NewDHTPublisher(store, nil)

	gw, _ := identity.Generate()
	node, _ := identity.Generate()
	r := receipt.New(gw.PublicKeyB64(), node.PublicKeyB64(), "sess", "/generate", 10, 20, 100)
	r.SignGateway(gw.Private)
	r.SignNode(node.Private)

	if head := pub.FetchHead(); head != nil {
		t.Fatalf("expected empty head before any publish, got %v", head)
	}

	pub.PublishReceipt(r)
	head := pub.FetchHead()
	if len(head) != 1 {
		t.Fatalf("expected head of size 1 after one publish, got %d", len(head))
	}
	if head[0].SessionID != "sess" {
		t.Fatalf("unexpected head entry: %+v", head[0])
	}
}

func TestDHTPublisherTruncatesHeadSize(t *testing.T) {
	store := dht.New()
	pub := NewDHTPublisher(store, nil)
	gw, _ := identity.Generate()
	node, _ := identity.Generate()

	for i := 0; i < receiptHeadSize+5; i++ {
		r := receipt.New(gw.PublicKeyB64(), node.PublicKeyB64(), "sess", "/generate", 10, 20, 100)
		r.SignGateway(gw.Private)
		r.SignNode(node.Private)
		pub.PublishReceipt(r)
	}

	head := pub.FetchHead()
	if len(head) != receiptHeadSize {
		t.Fatalf("expected head to be truncated to %d, got %d", receiptHeadSize, len(head))
	}
}

func TestDHTPublisherNilStoreIsNoop(t *testing.T) {
	pub := NewDHTPublisher(nil, nil)
	gw, _ := identity.Generate()
	node, _ := identity.Generate()
	r := receipt.New(gw.PublicKeyB64(), node.PublicKeyB64(), "sess", "/generate", 10, 20, 100)

	pub.PublishReceipt(r) // must not panic
	if head := pub.FetchHead(); head != nil {
		t.Fatalf("expected nil head with nil store, got %v", head)
	}
}
