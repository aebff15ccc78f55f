// Package mcpserver exposes the loan application workflow as MCP tools,
// so an agent host can drive a session headlessly: send chat turns,
// upload documents, poll status, and fetch the sanction letter.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/nmehta/loanassist/internal/document"
	"github.com/nmehta/loanassist/internal/orchestrator"
	"github.com/nmehta/loanassist/internal/session"
)

const defaultSettleTimeout = 30 * time.Second

// Deps holds dependencies for the MCP server.
type Deps struct {
	Orchestrator *orchestrator.Orchestrator
	// SettleTimeout bounds how long a tool call waits for the workflow to
	// go idle. Zero means defaultSettleTimeout.
	SettleTimeout time.Duration
}

// New creates an MCP server with all loan application tools registered.
// The orchestrator must already be running.
func New(deps Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"loanassist",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("loanassist: conversational loan application assistant backed by a remote loan service."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("send_message",
			mcp.WithDescription("Send one chat message to the loan assistant and return its replies."),
			mcp.WithString("message", mcp.Description("The message text"), mcp.Required()),
		),
		mcpSendMessage(deps),
	)

	s.AddTool(
		mcp.NewTool("upload_document",
			mcp.WithDescription("Upload a document file for verification. Valid types: aadhaar, pan, salary."),
			mcp.WithString("type", mcp.Description("Document type"), mcp.Required()),
			mcp.WithString("path", mcp.Description("Path to a JPEG, PNG, or PDF file up to 5MB"), mcp.Required()),
		),
		mcpUploadDocument(deps),
	)

	s.AddTool(
		mcp.NewTool("application_status",
			mcp.WithDescription("Return the current application state as JSON: stage, collected data, documents, eligibility, and decision."),
		),
		mcpApplicationStatus(deps),
	)

	s.AddTool(
		mcp.NewTool("download_letter",
			mcp.WithDescription("Fetch and save the sanction letter once the loan is approved; returns the saved path."),
		),
		mcpDownloadLetter(deps),
	)

	return s
}

func mcpSendMessage(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("message")
		if err != nil {
			return mcpError("message is required"), nil
		}

		snap := deps.Orchestrator.Current()
		if snap.Stage == session.StageComplete {
			return mcpError("the application is complete; no further messages are accepted"), nil
		}
		if snap.Busy {
			return mcpError("a request is already in progress; try again shortly"), nil
		}

		baseline := len(snap.Messages)
		deps.Orchestrator.SendMessage(text)

		settled, err := waitSettled(ctx, deps, baseline)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpText(assistantLinesSince(settled, baseline)), nil
	}
}

func mcpUploadDocument(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		typeArg, err := req.RequireString("type")
		if err != nil {
			return mcpError("type is required"), nil
		}
		path, err := req.RequireString("path")
		if err != nil {
			return mcpError("path is required"), nil
		}

		docType, err := document.ParseType(typeArg)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		if err := document.ValidateFile(path); err != nil {
			return mcpError(err.Error()), nil
		}

		snap := deps.Orchestrator.Current()
		if snap.Stage != session.StageDocuments {
			return mcpError(fmt.Sprintf("documents are not being collected in the %s stage", snap.Stage)), nil
		}

		baseline := len(snap.Messages)
		deps.Orchestrator.UploadDocument(docType, path)

		settled, err := waitSettled(ctx, deps, baseline)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpText(assistantLinesSince(settled, baseline)), nil
	}
}

func mcpApplicationStatus(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		snap := deps.Orchestrator.Current()

		type status struct {
			SessionID         string                     `json:"session_id"`
			Stage             session.Stage              `json:"stage"`
			Busy              bool                       `json:"busy"`
			DocumentsVerified int                        `json:"documents_verified"`
			DocumentsRequired int                        `json:"documents_required"`
			UserData          map[string]any             `json:"user_data,omitempty"`
			Eligibility       *session.EligibilityResult `json:"eligibility,omitempty"`
			Decision          *session.Decision          `json:"decision,omitempty"`
			LetterPath        string                     `json:"letter_path,omitempty"`
		}

		b, err := json.Marshal(status{
			SessionID:         snap.ID,
			Stage:             snap.Stage,
			Busy:              snap.Busy,
			DocumentsVerified: distinctVerified(snap.Documents),
			DocumentsRequired: len(document.Required()),
			UserData:          snap.UserData,
			Eligibility:       snap.Eligibility,
			Decision:          snap.Decision,
			LetterPath:        snap.LetterPath,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal status: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpDownloadLetter(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		snap := deps.Orchestrator.Current()
		if snap.Decision == nil || snap.Decision.Status != session.DecisionApproved {
			return mcpError("the sanction letter is only available once the loan is approved"), nil
		}
		if snap.LetterPath != "" {
			return mcpText(snap.LetterPath), nil
		}

		baseline := len(snap.Messages)
		deps.Orchestrator.DownloadLetter()

		settled, err := waitSettled(ctx, deps, baseline)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		if settled.LetterPath == "" {
			return mcpError(assistantLinesSince(settled, baseline)), nil
		}
		return mcpText(settled.LetterPath), nil
	}
}

// waitSettled polls until the workflow has appended at least one message
// past baseline and gone idle. Tool calls are synchronous from the host's
// point of view even though the orchestrator is not.
func waitSettled(ctx context.Context, deps Deps, baseline int) (session.Snapshot, error) {
	timeout := deps.SettleTimeout
	if timeout <= 0 {
		timeout = defaultSettleTimeout
	}
	deadline := time.Now().Add(timeout)

	for {
		snap := deps.Orchestrator.Current()
		if len(snap.Messages) > baseline && !snap.Busy {
			return snap, nil
		}
		if time.Now().After(deadline) {
			return session.Snapshot{}, fmt.Errorf("timed out waiting for the workflow to settle")
		}
		select {
		case <-ctx.Done():
			return session.Snapshot{}, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func assistantLinesSince(snap session.Snapshot, baseline int) string {
	var lines []string
	for _, m := range snap.Messages[baseline:] {
		if m.Role == session.RoleAssistant {
			lines = append(lines, m.Content)
		}
	}
	return strings.Join(lines, "\n")
}

func distinctVerified(docs []session.DocumentRecord) int {
	seen := map[string]bool{}
	for _, d := range docs {
		if d.Verified {
			seen[d.Type] = true
		}
	}
	return len(seen)
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
