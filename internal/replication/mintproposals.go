package replication

import (
	"sync"

	"glyph/internal/glypherr"
)

// ProposalStore is the mutex-guarded in-memory mint-proposal map shared
// by the propose, sign, list, and gossip paths.
type ProposalStore struct {
	mu    sync.Mutex
	byID  map[string]*MintProposal
	order []string
}

// NewProposalStore constructs an empty store.
func NewProposalStore() *ProposalStore {
	return &ProposalStore{byID: make(map[string]*MintProposal)}
}

// Put stores p under id, setting p.ID to id and replacing any proposal
// already stored under that id. Returns id.
func (s *ProposalStore) Put(p *MintProposal, id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = id
	if _, exists := s.byID[id]; !exists {
		s.order = append(s.order, id)
	}
	s.byID[id] = p
	return id
}

// Get returns a proposal by id.
func (s *ProposalStore) Get(id string) (*MintProposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return nil, glypherr.ErrNotFound
	}
	return p, nil
}

// AddSignature appends a signer/signature pair to a proposal and returns
// the running signature count.
func (s *ProposalStore) AddSignature(id, signerPubkey, signature string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return 0, glypherr.ErrNotFound
	}
	p.SignerPubkeys = append(p.SignerPubkeys, signerPubkey)
	p.Signatures = append(p.Signatures, signature)
	return len(p.Signatures), nil
}

// List returns every proposal in insertion order.
func (s *ProposalStore) List() []*MintProposal {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*MintProposal, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// Snapshot returns a copy of the id -> proposal map for merge operations
// such as AcceptMintProposals's duplicate check. The map is a copy; the
// proposal pointers in it are shared with the store.
func (s *ProposalStore) Snapshot() map[string]*MintProposal {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*MintProposal, len(s.byID))
	for k, v := range s.byID {
		out[k] = v
	}
	return out
}

// Merge adds every proposal in accepted (as produced against a Snapshot
// by Gossiper.AcceptMintProposals) that is not yet present.
func (s *ProposalStore) Merge(accepted map[string]*MintProposal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range accepted {
		if _, exists := s.byID[id]; exists {
			continue
		}
		s.byID[id] = p
		s.order = append(s.order, id)
	}
}
