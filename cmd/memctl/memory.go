package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// Flags shared by the memory commands
var (
	targetScope string
	noChildren  bool

	storeValue      string
	storeImportance float64
	storeType       string
	storeTags       []string

	listPattern    string
	searchLimit    int
	searchMinScore float64
)

// StoreRequest matches internal/httpapi/types.go StoreRequest
type StoreRequest struct {
	Key        string          `json:"key"`
	Content    string          `json:"content,omitempty"`
	Value      json.RawMessage `json:"value,omitempty"`
	Scope      string          `json:"scope,omitempty"`
	Importance float64         `json:"importance,omitempty"`
	MemoryType string          `json:"memory_type,omitempty"`
	Tags       []string        `json:"tags,omitempty"`
}

// ItemResponse matches internal/httpapi/types.go ItemResponse
type ItemResponse struct {
	Key       string          `json:"key"`
	Scope     string          `json:"scope"`
	Value     json.RawMessage `json:"value"`
	Text      string          `json:"text,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// KeysResponse matches internal/httpapi/types.go KeysResponse
type KeysResponse struct {
	Scope string   `json:"scope"`
	Keys  []string `json:"keys"`
	Count int      `json:"count"`
}

// ScopesResponse matches internal/httpapi/types.go ScopesResponse
type ScopesResponse struct {
	Scopes []string `json:"scopes"`
	Count  int      `json:"count"`
}

// SearchRequest matches internal/httpapi/types.go SearchRequest
type SearchRequest struct {
	Query    string  `json:"query"`
	Scope    string  `json:"scope,omitempty"`
	Limit    int     `json:"limit,omitempty"`
	MinScore float64 `json:"min_score,omitempty"`
}

// SearchResult matches internal/httpapi/types.go SearchResult
type SearchResult struct {
	Key     string  `json:"key"`
	Scope   string  `json:"scope"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// SearchResponse matches internal/httpapi/types.go SearchResponse
type SearchResponse struct {
	Results []SearchResult `json:"results"`
	Count   int            `json:"count"`
	Query   string         `json:"query"`
}

// storeCmd stores a memory under a key
var storeCmd = &cobra.Command{
	Use:   "store <key> [content]",
	Short: "Store a memory under a key",
	Long: `Store a memory under a key. Content comes from the argument, or from
stdin when the argument is omitted or "-".

Examples:
  # Store text content
  memctl store user:preferences "prefers dark mode"

  # Store from stdin
  cat notes.txt | memctl store meeting:notes

  # Store raw JSON instead of text
  memctl store config:retry --value '{"retries":3}'

  # Store into a child scope as a team requester
  memctl store task:status "done" --scope team:alpha --target team:alpha:agent:a1

  # Rich content for ranked recall
  memctl store fact:capital "Paris is the capital of France" --type fact --importance 0.9 --tags geography`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runStore,
}

// getCmd retrieves a memory by key
var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Retrieve a memory by key",
	Long: `Retrieve a memory by key. Lookups fall back to child scopes unless
--no-children is set.

Examples:
  # Retrieve from the requester scope
  memctl get user:preferences --scope team:alpha

  # Retrieve from an explicit scope, no child fallback
  memctl get task:status --target team:alpha:agent:a1 --no-children`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

// rmCmd deletes a memory by key
var rmCmd = &cobra.Command{
	Use:   "rm <key>",
	Short: "Delete a memory by key",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemove,
}

// lsCmd lists keys in a scope
var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List keys in a scope",
	Long: `List keys in a scope, including its child scopes unless --no-children
is set. A glob pattern filters the keys.

Examples:
  # List everything visible to a team
  memctl ls --scope team:alpha

  # Only task keys, only the scope itself
  memctl ls --scope team:alpha --pattern 'task:*' --no-children`,
	RunE: runList,
}

// scopesCmd lists scopes visible to the requester
var scopesCmd = &cobra.Command{
	Use:   "scopes",
	Short: "List scopes visible to the requester",
	RunE:  runScopes,
}

// searchCmd searches memories by keyword
var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search memories by keyword",
	Long: `Search memories by keyword across the target scope and its children.

Examples:
  # Search a team's memories
  memctl search revenue --scope team:finance

  # Tighter match threshold, fewer results
  memctl search revenue --min-score 0.9 --limit 3`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	storeCmd.Flags().StringVar(&targetScope, "target", "", "scope to store into (defaults to the requester scope)")
	storeCmd.Flags().StringVar(&storeValue, "value", "", "raw JSON value to store instead of text content")
	storeCmd.Flags().Float64Var(&storeImportance, "importance", 0, "importance weight for ranked recall (0..1)")
	storeCmd.Flags().StringVar(&storeType, "type", "", "memory type, e.g. fact, preference, experience")
	storeCmd.Flags().StringSliceVar(&storeTags, "tags", nil, "tags attached to the memory")

	getCmd.Flags().StringVar(&targetScope, "target", "", "scope to read from (defaults to the requester scope)")
	getCmd.Flags().BoolVar(&noChildren, "no-children", false, "do not fall back to child scopes")

	rmCmd.Flags().StringVar(&targetScope, "target", "", "scope to delete from (defaults to the requester scope)")

	lsCmd.Flags().StringVar(&targetScope, "target", "", "scope to list (defaults to the requester scope)")
	lsCmd.Flags().StringVar(&listPattern, "pattern", "", "glob pattern filtering the keys")
	lsCmd.Flags().BoolVar(&noChildren, "no-children", false, "do not include child scopes")

	searchCmd.Flags().StringVar(&targetScope, "target", "", "scope to search (defaults to the requester scope)")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "maximum number of results")
	searchCmd.Flags().Float64Var(&searchMinScore, "min-score", 0, "minimum relevance score (0..1)")
}

// runStore handles the store command
func runStore(cmd *cobra.Command, args []string) error {
	req := StoreRequest{
		Key:        args[0],
		Scope:      targetScope,
		Importance: storeImportance,
		MemoryType: storeType,
		Tags:       storeTags,
	}

	if storeValue != "" {
		if !json.Valid([]byte(storeValue)) {
			return fmt.Errorf("--value must be valid JSON")
		}
		req.Value = json.RawMessage(storeValue)
	} else if len(args) > 1 && args[1] != "-" {
		req.Content = args[1]
	} else {
		// Read from stdin
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read from stdin: %w", err)
		}
		req.Content = string(data)
	}

	if req.Content == "" && req.Value == nil {
		return fmt.Errorf("no content to store")
	}

	var item ItemResponse
	if err := doRequest(http.MethodPost, "/api/v1/memory", req, http.StatusCreated, &item); err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(item)
	}
	fmt.Printf("Stored %q in scope %s\n", item.Key, item.Scope)
	return nil
}

// runGet handles the get command
func runGet(cmd *cobra.Command, args []string) error {
	path := "/api/v1/memory/" + url.PathEscape(args[0])
	q := url.Values{}
	if targetScope != "" {
		q.Set("scope", targetScope)
	}
	if noChildren {
		q.Set("children", "false")
	}
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var item ItemResponse
	if err := doRequest(http.MethodGet, path, nil, http.StatusOK, &item); err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(item)
	}

	// Text memories print as-is; structured values print as indented JSON
	if item.Text != "" {
		fmt.Println(item.Text)
	} else {
		var buf bytes.Buffer
		if err := json.Indent(&buf, item.Value, "", "  "); err != nil {
			fmt.Println(string(item.Value))
		} else {
			fmt.Println(buf.String())
		}
	}
	fmt.Fprintf(os.Stderr, "[memctl] %s (scope %s, updated %s)\n",
		item.Key, item.Scope, item.UpdatedAt.Format(time.RFC3339))
	return nil
}

// runRemove handles the rm command
func runRemove(cmd *cobra.Command, args []string) error {
	path := "/api/v1/memory/" + url.PathEscape(args[0])
	if targetScope != "" {
		path += "?scope=" + url.QueryEscape(targetScope)
	}

	if err := doRequest(http.MethodDelete, path, nil, http.StatusNoContent, nil); err != nil {
		return err
	}

	fmt.Printf("Deleted %q\n", args[0])
	return nil
}

// runList handles the ls command
func runList(cmd *cobra.Command, args []string) error {
	q := url.Values{}
	if targetScope != "" {
		q.Set("scope", targetScope)
	}
	if listPattern != "" {
		q.Set("pattern", listPattern)
	}
	if noChildren {
		q.Set("children", "false")
	}
	path := "/api/v1/memory"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var keys KeysResponse
	if err := doRequest(http.MethodGet, path, nil, http.StatusOK, &keys); err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(keys)
	}

	for _, key := range keys.Keys {
		fmt.Println(key)
	}
	fmt.Fprintf(os.Stderr, "[memctl] %d key(s) in scope %s\n", keys.Count, keys.Scope)
	return nil
}

// runScopes handles the scopes command
func runScopes(cmd *cobra.Command, args []string) error {
	var scopes ScopesResponse
	if err := doRequest(http.MethodGet, "/api/v1/scopes", nil, http.StatusOK, &scopes); err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(scopes)
	}

	for _, s := range scopes.Scopes {
		fmt.Println(s)
	}
	return nil
}

// runSearch handles the search command
func runSearch(cmd *cobra.Command, args []string) error {
	req := SearchRequest{
		Query:    args[0],
		Scope:    targetScope,
		Limit:    searchLimit,
		MinScore: searchMinScore,
	}

	var results SearchResponse
	if err := doRequest(http.MethodPost, "/api/v1/search", req, http.StatusOK, &results); err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(results)
	}

	for _, r := range results.Results {
		fmt.Printf("%.2f  %s/%s  %s\n", r.Score, r.Scope, r.Key, truncate(r.Content, 80))
	}
	fmt.Fprintf(os.Stderr, "[memctl] %d result(s) for %q\n", results.Count, results.Query)
	return nil
}
