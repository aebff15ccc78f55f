package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/nmehta/loanassist/internal/backend"
	"github.com/nmehta/loanassist/internal/orchestrator"
	"github.com/nmehta/loanassist/internal/session"
)

// happyBackend walks the whole workflow through its success path.
type happyBackend struct{}

func (happyBackend) Chat(_ context.Context, _, _ string) (backend.ChatResponse, error) {
	return backend.ChatResponse{
		Message:  "Let me check your eligibility.",
		Stage:    session.StageEligibility,
		UserData: map[string]any{"loan_amount": float64(500000)},
	}, nil
}

func (happyBackend) CheckEligibility(context.Context, string) (session.EligibilityResult, error) {
	return session.EligibilityResult{Eligible: true, ApprovedAmount: 500000, InterestRate: 10.5}, nil
}

func (happyBackend) UploadDocument(_ context.Context, _, docType, _ string, _ io.Reader) (session.DocumentRecord, error) {
	return session.DocumentRecord{Type: docType, Verified: true, Message: docType + " verified"}, nil
}

func (happyBackend) RequestDecision(context.Context, string) (session.Decision, error) {
	return session.Decision{Status: session.DecisionApproved, Narrative: "Approved."}, nil
}

func (happyBackend) GenerateLetter(context.Context, int64, float64) ([]byte, error) {
	return []byte("%PDF-1.4\nletter\n%%EOF\n"), nil
}

func newTestDeps(t *testing.T) Deps {
	t.Helper()
	o := orchestrator.New(orchestrator.Config{
		Backend:   happyBackend{},
		LetterDir: t.TempDir(),
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go o.Run(ctx)

	// Tool baselines are message counts, so the greeting must land first.
	for len(o.Current().Messages) == 0 {
		time.Sleep(time.Millisecond)
	}
	return Deps{Orchestrator: o}
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

// pngFile writes a file with a PNG signature so local validation passes.
func pngFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	data := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func decodeStatus(t *testing.T, deps Deps) map[string]any {
	t.Helper()
	handler := mcpApplicationStatus(deps)
	result, err := handler(context.Background(), makeCallToolRequest("application_status", nil))
	if err != nil {
		t.Fatalf("application_status: %v", err)
	}
	var status map[string]any
	if err := json.Unmarshal([]byte(toolText(t, result)), &status); err != nil {
		t.Fatalf("decoding status: %v", err)
	}
	return status
}

func sendMessage(t *testing.T, deps Deps, text string) *mcp.CallToolResult {
	t.Helper()
	handler := mcpSendMessage(deps)
	result, err := handler(context.Background(), makeCallToolRequest("send_message", map[string]interface{}{
		"message": text,
	}))
	if err != nil {
		t.Fatalf("send_message: %v", err)
	}
	return result
}

func TestMCPTool_ApplicationStatus_Initial(t *testing.T) {
	deps := newTestDeps(t)

	status := decodeStatus(t, deps)
	if status["stage"] != "greeting" {
		t.Errorf("stage = %v", status["stage"])
	}
	if status["documents_required"] != float64(3) {
		t.Errorf("documents_required = %v", status["documents_required"])
	}
	if _, ok := status["decision"]; ok {
		t.Error("decision present before any turn")
	}
}

func TestMCPTool_SendMessage_RunsEligibilityChain(t *testing.T) {
	deps := newTestDeps(t)

	result := sendMessage(t, deps, "I need 5 lakh")
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}
	text := toolText(t, result)
	if !strings.Contains(text, "eligible for") {
		t.Errorf("reply missing eligibility outcome: %q", text)
	}

	status := decodeStatus(t, deps)
	if status["stage"] != "documents" {
		t.Errorf("stage = %v, want documents", status["stage"])
	}
}

func TestMCPTool_SendMessage_MissingArgument(t *testing.T) {
	deps := newTestDeps(t)

	handler := mcpSendMessage(deps)
	result, err := handler(context.Background(), makeCallToolRequest("send_message", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("missing message argument accepted")
	}
}

func TestMCPTool_UploadDocument_RejectsOutsideDocumentsStage(t *testing.T) {
	deps := newTestDeps(t)

	handler := mcpUploadDocument(deps)
	result, err := handler(context.Background(), makeCallToolRequest("upload_document", map[string]interface{}{
		"type": "aadhaar",
		"path": pngFile(t, "aadhaar.png"),
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("upload accepted in the greeting stage")
	}
}

func TestMCPTool_UploadDocument_InvalidType(t *testing.T) {
	deps := newTestDeps(t)
	sendMessage(t, deps, "I need 5 lakh")

	handler := mcpUploadDocument(deps)
	result, err := handler(context.Background(), makeCallToolRequest("upload_document", map[string]interface{}{
		"type": "passport",
		"path": pngFile(t, "passport.png"),
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("unknown document type accepted")
	}
}

func TestMCPTool_DownloadLetter_RequiresApproval(t *testing.T) {
	deps := newTestDeps(t)

	handler := mcpDownloadLetter(deps)
	result, err := handler(context.Background(), makeCallToolRequest("download_letter", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("letter available before approval")
	}
}

func TestMCPTools_FullApplication(t *testing.T) {
	deps := newTestDeps(t)

	sendMessage(t, deps, "I need 5 lakh")

	upload := mcpUploadDocument(deps)
	for _, docType := range []string{"aadhaar", "pan", "salary"} {
		result, err := upload(context.Background(), makeCallToolRequest("upload_document", map[string]interface{}{
			"type": docType,
			"path": pngFile(t, docType+".png"),
		}))
		if err != nil {
			t.Fatalf("upload %s: %v", docType, err)
		}
		if result.IsError {
			t.Fatalf("upload %s: %s", docType, toolText(t, result))
		}
	}

	status := decodeStatus(t, deps)
	if status["stage"] != "complete" {
		t.Fatalf("stage = %v, want complete", status["stage"])
	}
	if status["documents_verified"] != float64(3) {
		t.Errorf("documents_verified = %v", status["documents_verified"])
	}

	letter := mcpDownloadLetter(deps)
	result, err := letter(context.Background(), makeCallToolRequest("download_letter", nil))
	if err != nil {
		t.Fatalf("download_letter: %v", err)
	}
	if result.IsError {
		t.Fatalf("download_letter: %s", toolText(t, result))
	}
	path := toolText(t, result)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("saved letter missing at %q: %v", path, err)
	}
}
