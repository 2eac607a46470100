package gatewayapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Register wires every gateway HTTP route onto r.
func Register(r *mux.Router, c *Controller) {
	r.Use(LoggingMiddleware)
	r.Use(MetricsMiddleware)

	r.HandleFunc("/register", c.Register).Methods(http.MethodPost)
	r.HandleFunc("/add_peer", c.AddPeer).Methods(http.MethodPost)
	r.HandleFunc("/peers", c.ListPeers).Methods(http.MethodGet)
	r.HandleFunc("/price/quote", c.PriceQuote).Methods(http.MethodPost)
	r.HandleFunc("/set_eth_address", c.SetEthAddress).Methods(http.MethodPost)
	r.HandleFunc("/inference", c.Inference).Methods(http.MethodPost)
	r.HandleFunc("/receipts", c.Receipts).Methods(http.MethodGet)
	r.HandleFunc("/pull/receipts", c.PullReceipts).Methods(http.MethodGet)
	r.HandleFunc("/nodes", c.Nodes).Methods(http.MethodGet)
	r.HandleFunc("/epoch/settle", c.EpochSettle).Methods(http.MethodPost)
	r.HandleFunc("/epoch/sign", c.EpochSign).Methods(http.MethodPost)
	r.HandleFunc("/epoch/status/{id}", c.EpochStatus).Methods(http.MethodGet)
	r.HandleFunc("/gossip/receipts", c.GossipReceipts).Methods(http.MethodPost)
	r.HandleFunc("/validators/add", c.AddValidator).Methods(http.MethodPost)
	r.HandleFunc("/validators/remove", c.RemoveValidator).Methods(http.MethodPost)
	r.HandleFunc("/validate/quality", c.ValidateQuality).Methods(http.MethodPost)
	r.HandleFunc("/config/token", c.ConfigToken).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/mint/preview", c.MintPreview).Methods(http.MethodPost)
	r.HandleFunc("/mint/anchor", c.MintAnchor).Methods(http.MethodPost)
	r.HandleFunc("/mint/execute", c.MintExecute).Methods(http.MethodPost)
	r.HandleFunc("/token/supply", c.TokenSupply).Methods(http.MethodGet)
	r.HandleFunc("/mint/propose_psbt", c.ProposePSBT).Methods(http.MethodPost)
	r.HandleFunc("/mint/submit_signature", c.SubmitSignature).Methods(http.MethodPost)
	r.HandleFunc("/mint/proposals", c.MintProposals).Methods(http.MethodGet)
	r.HandleFunc("/gossip/mint_proposals", c.GossipMintProposals).Methods(http.MethodPost)

	r.HandleFunc("/healthz", Healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", Readyz(c.svc)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}
