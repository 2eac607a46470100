// Package nodeapi implements a minimal HTTP server standing in for an
// external model-execution node: it answers /generate with a
// deterministic stub response and /sign_receipt by countersigning
// whatever canonical payload it is handed. Used by the `node` CLI
// subcommand and by gateway integration tests as a real peer.
package nodeapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"glyph/internal/identity"
	"glyph/internal/receipt"
)

// Server is the mock compute node.
type Server struct {
	id  *identity.Identity
	log *logrus.Logger
}

// New builds a Server bound to a node identity.
func New(id *identity.Identity, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.New()
	}
	return &Server{id: id, log: log}
}

// Router returns the mux.Router implementing /generate and /sign_receipt.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/generate", s.generate).Methods(http.MethodPost)
	r.HandleFunc("/sign_receipt", s.signReceipt).Methods(http.MethodPost)
	return r
}

type generateRequest struct {
	Prompt       string  `json:"prompt"`
	MaxNewTokens int     `json:"max_new_tokens"`
	Temperature  float64 `json:"temperature"`
}

type generateResponse struct {
	Text         string `json:"text"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
	WallTimeMS   int64  `json:"wall_time_ms"`
}

// generate produces a deterministic stub completion, token-counting on
// whitespace so tests can predict exact input/output token counts.
func (s *Server) generate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	text := "echo: " + req.Prompt
	resp := generateResponse{
		Text:         text,
		InputTokens:  countTokens(req.Prompt),
		OutputTokens: countTokens(text),
		WallTimeMS:   time.Since(start).Milliseconds(),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func countTokens(s string) int64 {
	if strings.TrimSpace(s) == "" {
		return 0
	}
	return int64(len(strings.Fields(s)))
}

type signReceiptResponse struct {
	NodeSig string `json:"node_sig"`
}

// signReceipt countersigns the canonical payload of the posted receipt
// (node_sig is ignored on the way in) and returns the signature.
func (s *Server) signReceipt(w http.ResponseWriter, r *http.Request) {
	var rec receipt.Receipt
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rec.SignNode(s.id.Private)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(signReceiptResponse{NodeSig: rec.NodeSig})
}
