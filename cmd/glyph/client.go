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

// client is a thin HTTP adapter over the gateway's /inference endpoint.
func clientCmd() *cobra.Command {
	var prompt, userPubkey string
	var maxNewTokens int
	var temperature float64

	cmd := &cobra.Command{
		Use:   "client",
		Short: "send one /inference request to a running gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(prompt, userPubkey, maxNewTokens, temperature)
		},
	}
	cmd.Flags().StringVar(&prompt, "prompt", "", "prompt text")
	cmd.Flags().StringVar(&userPubkey, "user-pubkey", "", "billed user pubkey, base64 (optional)")
	cmd.Flags().IntVar(&maxNewTokens, "max-new-tokens", 256, "max new tokens")
	cmd.Flags().Float64Var(&temperature, "temperature", 0.7, "sampling temperature")
	return cmd
}

func runClient(prompt, userPubkey string, maxNewTokens int, temperature float64) error {
	gatewayURL := utils.EnvOrDefault(config.GatewayURLEnv, "http://localhost:8080")

	body, err := json.Marshal(map[string]interface{}{
		"prompt":         prompt,
		"max_new_tokens": maxNewTokens,
		"temperature":    temperature,
		"user_pubkey":    userPubkey,
	})
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 65 * time.Second}
	resp, err := client.Post(gatewayURL+"/inference", "application/json", bytes.NewReader(body))
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
