// Package main implements the memctl CLI for manual operations against the memoryd HTTP server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the memoryd HTTP server
	serverURL string
	// requesterScope is sent as the X-Memory-Scope header on every request
	requesterScope string
	// jsonOutput switches command output to indented JSON
	jsonOutput bool
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "memctl",
	Short: "CLI for memoryd HTTP server operations",
	Long: `memctl is a command-line interface for interacting with the memoryd HTTP server.
It provides commands for storing, retrieving, and searching memories, managing
shared workspaces, and watching a live metrics dashboard.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:9091", "memoryd server URL")
	rootCmd.PersistentFlags().StringVar(&requesterScope, "scope", "", "requester scope sent as X-Memory-Scope (empty uses the server default)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print responses as indented JSON")
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(storeCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(scopesCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(workspaceCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(initCmd)
}

// doRequest sends an API request with the scope header and decodes the JSON
// response into out when the status matches want. A nil out discards the body.
func doRequest(method, path string, body interface{}, want int, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reqJSON, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(reqJSON)
	}

	url := serverURL + path
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if requesterScope != "" {
		req.Header.Set("X-Memory-Scope", requesterScope)
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		respBody, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// printJSON prints v as indented JSON to stdout
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// truncate flattens s to one line of at most max runes
func truncate(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check memoryd server health",
	Long: `Check the health status of the memoryd HTTP server.

Examples:
  # Check health
  memctl health

  # Check health on a different server
  memctl health --server http://localhost:8080`,
	RunE: runHealth,
}

// HealthResponse matches internal/httpapi/types.go HealthResponse
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// runHealth handles the health command
func runHealth(cmd *cobra.Command, args []string) error {
	var health HealthResponse
	if err := doRequest(http.MethodGet, "/health", nil, http.StatusOK, &health); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to reach %s: %v\n", serverURL, err)
		return err
	}

	if jsonOutput {
		return printJSON(health)
	}

	fmt.Printf("Server Status: %s\n", health.Status)
	if health.Version != "" {
		fmt.Printf("Server Version: %s\n", health.Version)
	}
	fmt.Printf("Server URL: %s\n", serverURL)

	return nil
}
