package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"glyph/internal/config"
	"glyph/internal/utils"
)

// configure-token is a thin POST wrapper over a running gateway's
// /config/token, for operators who would otherwise curl the endpoint.
func configureTokenCmd() *cobra.Command {
	var tokenAddress, network, rpcURL string
	cmd := &cobra.Command{
		Use:   "configure-token",
		Short: "set the gateway's token_address/network/rpc_url settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigureToken(tokenAddress, network, rpcURL)
		},
	}
	cmd.Flags().StringVar(&tokenAddress, "token-address", "", "ERC-20 token contract address")
	cmd.Flags().StringVar(&network, "network", "", "network name, e.g. mainnet")
	cmd.Flags().StringVar(&rpcURL, "rpc-url", "", "RPC endpoint URL")
	return cmd
}

func runConfigureToken(tokenAddress, network, rpcURL string) error {
	gatewayURL := utils.EnvOrDefault(config.GatewayURLEnv, "http://localhost:8080")

	body, err := json.Marshal(map[string]string{
		"token_address": tokenAddress,
		"network":       network,
		"rpc_url":       rpcURL,
	})
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(gatewayURL+"/config/token", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, raw)
	}
	fmt.Println(string(raw))
	return nil
}
