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

var (
	workspaceName  string
	workspaceLimit int
)

// WorkspaceCreateRequest matches internal/httpapi/types.go WorkspaceCreateRequest
type WorkspaceCreateRequest struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// WorkspaceResponse matches internal/httpapi/types.go WorkspaceResponse
type WorkspaceResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// WorkspaceListResponse matches internal/httpapi/types.go WorkspaceListResponse
type WorkspaceListResponse struct {
	Workspaces []WorkspaceResponse `json:"workspaces"`
	Count      int                 `json:"count"`
}

// WorkspaceWriteRequest matches internal/httpapi/types.go WorkspaceWriteRequest
type WorkspaceWriteRequest struct {
	Key     string          `json:"key"`
	Content json.RawMessage `json:"content"`
}

// EntryResponse matches internal/httpapi/types.go EntryResponse
type EntryResponse struct {
	Key       string          `json:"key"`
	Content   json.RawMessage `json:"content"`
	Text      string          `json:"text,omitempty"`
	CreatedBy string          `json:"created_by,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// WorkspaceKeysResponse matches internal/httpapi/types.go WorkspaceKeysResponse
type WorkspaceKeysResponse struct {
	WorkspaceID string   `json:"workspace_id"`
	Keys        []string `json:"keys"`
	Count       int      `json:"count"`
}

// WorkspaceSearchRequest matches internal/httpapi/types.go WorkspaceSearchRequest
type WorkspaceSearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// WorkspaceSearchResult matches internal/httpapi/types.go WorkspaceSearchResult
type WorkspaceSearchResult struct {
	Key       string    `json:"key"`
	Content   string    `json:"content"`
	Score     float64   `json:"score"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// WorkspaceSearchResponse matches internal/httpapi/types.go WorkspaceSearchResponse
type WorkspaceSearchResponse struct {
	WorkspaceID string                  `json:"workspace_id"`
	Results     []WorkspaceSearchResult `json:"results"`
	Count       int                     `json:"count"`
}

// workspaceCmd groups the shared-workspace commands
var workspaceCmd = &cobra.Command{
	Use:     "workspace",
	Aliases: []string{"ws"},
	Short:   "Manage shared workspaces",
	Long: `Manage shared workspaces: scratch scopes where agents in a workflow
exchange intermediate results.

Examples:
  # Create a workspace for a workflow run
  memctl workspace create wf-42-scratch --scope workflow:wf-42

  # Drop a draft into it and read it back
  memctl workspace write wf-42-scratch draft "first pass" --scope workflow:wf-42:agent:writer
  memctl workspace read wf-42-scratch draft --scope workflow:wf-42:agent:reviewer`,
}

var workspaceCreateCmd = &cobra.Command{
	Use:   "create [id]",
	Short: "Create a workspace",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runWorkspaceCreate,
}

var workspaceListCmd = &cobra.Command{
	Use:   "ls",
	Short: "List workspaces visible to the requester",
	RunE:  runWorkspaceList,
}

var workspaceInfoCmd = &cobra.Command{
	Use:   "info <id>",
	Short: "Show a workspace record",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkspaceInfo,
}

var workspaceWriteCmd = &cobra.Command{
	Use:   "write <id> <key> [content]",
	Short: "Write an entry into a workspace",
	Long: `Write an entry into a workspace. Content comes from the argument, or
from stdin when the argument is omitted or "-". Valid JSON is stored as-is;
anything else is stored as a JSON string.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runWorkspaceWrite,
}

var workspaceReadCmd = &cobra.Command{
	Use:   "read <id> <key>",
	Short: "Read an entry from a workspace",
	Args:  cobra.ExactArgs(2),
	RunE:  runWorkspaceRead,
}

var workspaceKeysCmd = &cobra.Command{
	Use:   "keys <id>",
	Short: "List entry keys in a workspace",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkspaceKeys,
}

var workspaceSearchCmd = &cobra.Command{
	Use:   "search <id> <query>",
	Short: "Search entries in a workspace",
	Args:  cobra.ExactArgs(2),
	RunE:  runWorkspaceSearch,
}

func init() {
	workspaceCreateCmd.Flags().StringVar(&workspaceName, "name", "", "human-readable workspace name")
	workspaceSearchCmd.Flags().IntVar(&workspaceLimit, "limit", 0, "maximum number of results")

	workspaceCmd.AddCommand(workspaceCreateCmd)
	workspaceCmd.AddCommand(workspaceListCmd)
	workspaceCmd.AddCommand(workspaceInfoCmd)
	workspaceCmd.AddCommand(workspaceWriteCmd)
	workspaceCmd.AddCommand(workspaceReadCmd)
	workspaceCmd.AddCommand(workspaceKeysCmd)
	workspaceCmd.AddCommand(workspaceSearchCmd)
}

// runWorkspaceCreate handles workspace create
func runWorkspaceCreate(cmd *cobra.Command, args []string) error {
	req := WorkspaceCreateRequest{Name: workspaceName}
	if len(args) > 0 {
		req.ID = args[0]
	}

	var ws WorkspaceResponse
	if err := doRequest(http.MethodPost, "/api/v1/workspaces", req, http.StatusCreated, &ws); err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(ws)
	}
	fmt.Println(ws.ID)
	fmt.Fprintf(os.Stderr, "[memctl] Created workspace %s (by %s)\n", ws.ID, ws.CreatedBy)
	return nil
}

// runWorkspaceList handles workspace ls
func runWorkspaceList(cmd *cobra.Command, args []string) error {
	var list WorkspaceListResponse
	if err := doRequest(http.MethodGet, "/api/v1/workspaces", nil, http.StatusOK, &list); err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(list)
	}

	for _, ws := range list.Workspaces {
		name := ws.Name
		if name == "" {
			name = "-"
		}
		fmt.Printf("%-24s  %-20s  %s\n", ws.ID, name, ws.CreatedBy)
	}
	fmt.Fprintf(os.Stderr, "[memctl] %d workspace(s)\n", list.Count)
	return nil
}

// runWorkspaceInfo handles workspace info
func runWorkspaceInfo(cmd *cobra.Command, args []string) error {
	path := "/api/v1/workspaces/" + url.PathEscape(args[0])

	var ws WorkspaceResponse
	if err := doRequest(http.MethodGet, path, nil, http.StatusOK, &ws); err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(ws)
	}

	fmt.Printf("ID:         %s\n", ws.ID)
	if ws.Name != "" {
		fmt.Printf("Name:       %s\n", ws.Name)
	}
	fmt.Printf("Created by: %s\n", ws.CreatedBy)
	fmt.Printf("Created at: %s\n", ws.CreatedAt.Format(time.RFC3339))
	return nil
}

// runWorkspaceWrite handles workspace write
func runWorkspaceWrite(cmd *cobra.Command, args []string) error {
	var content string
	if len(args) > 2 && args[2] != "-" {
		content = args[2]
	} else {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read from stdin: %w", err)
		}
		content = string(data)
	}
	if content == "" {
		return fmt.Errorf("no content to write")
	}

	req := WorkspaceWriteRequest{Key: args[1]}
	if json.Valid([]byte(content)) {
		req.Content = json.RawMessage(content)
	} else {
		encoded, err := json.Marshal(content)
		if err != nil {
			return fmt.Errorf("failed to encode content: %w", err)
		}
		req.Content = encoded
	}

	path := "/api/v1/workspaces/" + url.PathEscape(args[0]) + "/entries"

	var entry EntryResponse
	if err := doRequest(http.MethodPost, path, req, http.StatusCreated, &entry); err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(entry)
	}
	fmt.Printf("Wrote %q to workspace %s\n", entry.Key, args[0])
	return nil
}

// runWorkspaceRead handles workspace read
func runWorkspaceRead(cmd *cobra.Command, args []string) error {
	path := "/api/v1/workspaces/" + url.PathEscape(args[0]) + "/entries/" + url.PathEscape(args[1])

	var entry EntryResponse
	if err := doRequest(http.MethodGet, path, nil, http.StatusOK, &entry); err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(entry)
	}

	// Text entries print as-is; structured content prints as indented JSON
	if entry.Text != "" {
		fmt.Println(entry.Text)
	} else {
		var buf bytes.Buffer
		if err := json.Indent(&buf, entry.Content, "", "  "); err != nil {
			fmt.Println(string(entry.Content))
		} else {
			fmt.Println(buf.String())
		}
	}
	if entry.CreatedBy != "" {
		fmt.Fprintf(os.Stderr, "[memctl] %s (by %s, %s)\n",
			entry.Key, entry.CreatedBy, entry.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

// runWorkspaceKeys handles workspace keys
func runWorkspaceKeys(cmd *cobra.Command, args []string) error {
	path := "/api/v1/workspaces/" + url.PathEscape(args[0]) + "/entries"

	var keys WorkspaceKeysResponse
	if err := doRequest(http.MethodGet, path, nil, http.StatusOK, &keys); err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(keys)
	}

	for _, key := range keys.Keys {
		fmt.Println(key)
	}
	fmt.Fprintf(os.Stderr, "[memctl] %d entry(ies) in workspace %s\n", keys.Count, keys.WorkspaceID)
	return nil
}

// runWorkspaceSearch handles workspace search
func runWorkspaceSearch(cmd *cobra.Command, args []string) error {
	req := WorkspaceSearchRequest{Query: args[1], Limit: workspaceLimit}
	path := "/api/v1/workspaces/" + url.PathEscape(args[0]) + "/search"

	var results WorkspaceSearchResponse
	if err := doRequest(http.MethodPost, path, req, http.StatusOK, &results); err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(results)
	}

	for _, r := range results.Results {
		fmt.Printf("%.2f  %s  %s\n", r.Score, r.Key, truncate(r.Content, 80))
	}
	fmt.Fprintf(os.Stderr, "[memctl] %d result(s) in workspace %s\n", results.Count, results.WorkspaceID)
	return nil
}
