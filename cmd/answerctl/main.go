// Package main implements the answerctl CLI for manual operations against
// a running answerd HTTP server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the answerd HTTP server
	serverURL string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "answerctl",
	Short: "CLI for answerd HTTP server operations",
	Long: `answerctl is a command-line interface for interacting with the answerd HTTP server.
It provides commands for ingesting documents, asking questions, and checking server health.`,
	Version: version,
}

var (
	ingestSource string
	queryChatID  string
	queryModel   string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "answerd server URL")

	ingestCmd.Flags().StringVar(&ingestSource, "source", "", "source identifier for all files (default: file path)")
	queryCmd.Flags().StringVar(&queryChatID, "chat-id", "", "conversation id to continue")
	queryCmd.Flags().StringVar(&queryModel, "model", "", "model override for this request")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(healthCmd)
}

// ingestCmd uploads text files into the knowledge base
var ingestCmd = &cobra.Command{
	Use:   "ingest <files...>",
	Short: "Ingest text files into the knowledge base",
	Long: `Ingest one or more text or markdown files into the answerd knowledge base.
Each file's path is used as its source identifier unless --source is given.

Examples:
  # Ingest a pair of documents
  answerctl ingest notes.md handbook.txt

  # Override the source identifier
  answerctl ingest --source https://example.com/handbook handbook.txt`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

// queryCmd asks the server a question
var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Ask a question against the knowledge base",
	Long: `Ask a question and print the generated answer with its citations.

Examples:
  # One-off question
  answerctl query "What pillars does SUTD have?"

  # Continue a conversation
  answerctl query --chat-id 7f3a... "And what about ASD?"`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check answerd server health",
	RunE:  runHealth,
}

// IngestDocument matches internal/server IngestDocument
type IngestDocument struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

// IngestTextRequest matches internal/server IngestTextRequest
type IngestTextRequest struct {
	Documents []IngestDocument `json:"documents"`
}

// IngestResult matches internal/ingest Result
type IngestResult struct {
	Documents int      `json:"documents"`
	Chunks    int      `json:"chunks"`
	Warnings  []string `json:"warnings,omitempty"`
}

// QueryRequest matches internal/server QueryRequest
type QueryRequest struct {
	Query  string `json:"query"`
	ChatID string `json:"chat_id,omitempty"`
	Model  string `json:"model,omitempty"`
}

// TextSegment matches internal/citations TextSegment
type TextSegment struct {
	Text   string  `json:"text"`
	Source *string `json:"source"`
}

// QueryResponse matches internal/server QueryResponse
type QueryResponse struct {
	ChatID   string        `json:"chat_id"`
	Answer   string        `json:"answer"`
	Segments []TextSegment `json:"segments"`
}

// HealthResponse matches internal/server HealthResponse
type HealthResponse struct {
	Status string `json:"status"`
}

// runIngest handles the ingest command
func runIngest(cmd *cobra.Command, args []string) error {
	docs := make([]IngestDocument, 0, len(args))
	for _, path := range args {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read file %s: %w", path, err)
		}
		source := ingestSource
		if source == "" {
			source = path
		}
		docs = append(docs, IngestDocument{Text: string(content), Source: source})
	}

	var result IngestResult
	if err := postJSON("/api/v1/ingest/text", IngestTextRequest{Documents: docs}, &result); err != nil {
		return err
	}

	fmt.Printf("Ingested %d document(s) as %d chunk(s)\n", result.Documents, result.Chunks)
	for _, warning := range result.Warnings {
		fmt.Fprintf(os.Stderr, "[answerctl] warning: %s\n", warning)
	}
	return nil
}

// runQuery handles the query command
func runQuery(cmd *cobra.Command, args []string) error {
	req := QueryRequest{Query: args[0], ChatID: queryChatID, Model: queryModel}

	var resp QueryResponse
	if err := postJSON("/api/v1/query", req, &resp); err != nil {
		return err
	}

	fmt.Println(resp.Answer)
	fmt.Fprintf(os.Stderr, "\n[answerctl] chat id: %s\n", resp.ChatID)
	for _, seg := range resp.Segments {
		if seg.Source != nil {
			fmt.Fprintf(os.Stderr, "[answerctl] source: %s\n", *seg.Source)
		}
	}
	return nil
}

// runHealth handles the health command
func runHealth(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", serverURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	var healthResp HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&healthResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("Server Status: %s\n", healthResp.Status)
	fmt.Printf("Server URL: %s\n", serverURL)
	return nil
}

// postJSON sends body to path on the server and decodes the response into out.
func postJSON(path string, body, out any) error {
	reqJSON, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := serverURL + path
	httpReq, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(reqJSON))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 2 * time.Minute}
	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
