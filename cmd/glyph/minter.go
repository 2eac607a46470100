package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"glyph/internal/config"
	"glyph/internal/utils"
)

// minter stands in for the external on-chain minter collaborator: it
// consumes an epoch's selected payouts and returns a transaction id the
// gateway anchors via /mint/anchor. This mock signs a deterministic
// digest of the payout set with the ECDSA key in
// GLYPH_MINTER_PRIVATE_KEY and reports the resulting hash as the txid.
func minterCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "minter",
		Short: "run a mock external minter implementing /mint/execute",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMinter(addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8082", "address to listen on")
	return cmd
}

func runMinter(addr string) error {
	log := logrus.StandardLogger()

	keyHex := utils.EnvOrDefault(config.MinterPrivateKeyEnv, "")
	if keyHex == "" {
		return fmt.Errorf("minter: %s must be set", config.MinterPrivateKeyEnv)
	}
	priv, err := crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
	if err != nil {
		return fmt.Errorf("minter: parse %s: %w", config.MinterPrivateKeyEnv, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/mint/execute", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			EpochID string `json:"epoch_id"`
			Payouts []struct {
				Address string `json:"address"`
				Amount  int64  `json:"amount"`
			} `json:"payouts"`
			DryRun bool `json:"dry_run"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		digestInput, err := json.Marshal(req)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		digest := crypto.Keccak256Hash(digestInput)
		sig, err := crypto.Sign(digest.Bytes(), priv)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		txid := "0x" + hex.EncodeToString(crypto.Keccak256(digest.Bytes(), sig))
		log.WithField("epoch_id", req.EpochID).WithField("dry_run", req.DryRun).WithField("txid", txid).Info("minter: executed")

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"txid": txid})
	})
	mux.HandleFunc("/token/supply", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"total_supply": "0"})
	})

	log.WithField("addr", addr).Info("minter: listening")
	return http.ListenAndServe(addr, mux)
}
