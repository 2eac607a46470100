package main

import (
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"glyph/internal/identity"
	"glyph/internal/nodeapi"
)

func nodeCmd() *cobra.Command {
	var addr, keyPath string
	cmd := &cobra.Command{
		Use:   "node",
		Short: "run a mock compute node implementing /generate and /sign_receipt",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNode(addr, keyPath)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8081", "address to listen on")
	cmd.Flags().StringVar(&keyPath, "key", "node.key", "path to the node's identity key file")
	return cmd
}

func runNode(addr, keyPath string) error {
	log := logrus.StandardLogger()

	id, err := identity.LoadOrCreate(keyPath)
	if err != nil {
		return err
	}

	srv := nodeapi.New(id, log)
	log.WithField("addr", addr).WithField("pubkey", id.PublicKeyB64()).Info("node: listening")
	return http.ListenAndServe(addr, srv.Router())
}
