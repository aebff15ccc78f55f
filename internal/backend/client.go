// Package backend is the transport adapter for the remote loan
// decisioning service. It issues the five remote operations with bounded
// timeouts and normalizes failures into the Error taxonomy. The client
// holds no session state and is safe to share across goroutines.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/nmehta/loanassist/internal/session"
)

// requestTimeout bounds the chat, eligibility, and decision calls. Upload
// and letter generation move payloads and rely on the caller's context.
const requestTimeout = 10 * time.Second

// Client communicates with the decisioning backend over HTTP.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// New creates a Client targeting the given backend base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: requestTimeout,
		httpClient: &http.Client{
			Timeout: 0,
		},
	}
}

// ChatResponse is the structured result of one chat turn.
type ChatResponse struct {
	Message  string
	Stage    session.Stage
	UserData map[string]any
}

// chatRequest is the JSON body for POST /api/chat.
type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

// chatResponse mirrors the JSON returned by POST /api/chat.
type chatResponse struct {
	Message  string         `json:"message"`
	Stage    string         `json:"stage"`
	UserData map[string]any `json:"user_data"`
}

// Chat sends one user message and returns the assistant reply, the stage
// reported by the backend, and the full replacement set of collected
// application fields.
func (c *Client) Chat(ctx context.Context, sessionID, message string) (ChatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var out chatResponse
	if err := c.postJSON(ctx, "chat", "/api/chat", chatRequest{Message: message, SessionID: sessionID}, &out); err != nil {
		return ChatResponse{}, err
	}
	return ChatResponse{
		Message:  out.Message,
		Stage:    session.Stage(out.Stage),
		UserData: out.UserData,
	}, nil
}

// sessionRequest is the JSON body for the session-scoped operations.
type sessionRequest struct {
	SessionID string `json:"session_id"`
}

// CheckEligibility asks the backend to score the collected application
// fields for this session.
func (c *Client) CheckEligibility(ctx context.Context, sessionID string) (session.EligibilityResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var out session.EligibilityResult
	if err := c.postJSON(ctx, "eligibility", "/api/eligibility", sessionRequest{SessionID: sessionID}, &out); err != nil {
		return session.EligibilityResult{}, err
	}
	return out, nil
}

// uploadResponse mirrors the JSON returned by POST /api/upload, including
// the error field set on rejection.
type uploadResponse struct {
	Type     string `json:"type"`
	Verified bool   `json:"verified"`
	Message  string `json:"message"`
	ErrorMsg string `json:"error"`
}

// UploadDocument streams one document as a multipart form. A response
// without verified=true is surfaced as a KindVerification error carrying
// the backend's reason; the caller must not record the document.
func (c *Client) UploadDocument(ctx context.Context, sessionID, docType, filename string, r io.Reader) (session.DocumentRecord, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return session.DocumentRecord{}, &Error{Kind: KindProtocol, Op: "upload", Err: err}
	}
	if _, err := io.Copy(part, r); err != nil {
		return session.DocumentRecord{}, &Error{Kind: KindProtocol, Op: "upload", Err: err}
	}
	mw.WriteField("type", docType)
	mw.WriteField("session_id", sessionID)
	if err := mw.Close(); err != nil {
		return session.DocumentRecord{}, &Error{Kind: KindProtocol, Op: "upload", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload", &buf)
	if err != nil {
		return session.DocumentRecord{}, &Error{Kind: KindProtocol, Op: "upload", Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return session.DocumentRecord{}, classifyDoError("upload", err)
	}
	defer resp.Body.Close()

	// The upload endpoint reports rejection as a JSON body on 4xx/5xx, so
	// decode before checking the status.
	var out uploadResponse
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return session.DocumentRecord{}, &Error{Kind: KindNetwork, Op: "upload", Err: readErr}
	}
	if err := json.Unmarshal(body, &out); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return session.DocumentRecord{}, &Error{Kind: KindNetwork, Op: "upload", Message: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
		}
		return session.DocumentRecord{}, &Error{Kind: KindProtocol, Op: "upload", Err: err}
	}

	if !out.Verified {
		reason := out.ErrorMsg
		if reason == "" {
			reason = out.Message
		}
		if reason == "" {
			reason = "document could not be verified"
		}
		return session.DocumentRecord{}, &Error{Kind: KindVerification, Op: "upload", Message: reason}
	}

	return session.DocumentRecord{
		Type:     out.Type,
		Verified: out.Verified,
		Message:  out.Message,
	}, nil
}

// decisionResponse mirrors the JSON returned by POST /api/decision. The
// backend uses decision and message interchangeably; resolution into a
// primary narrative happens here, once, at ingestion.
type decisionResponse struct {
	Status          string `json:"status"`
	Decision        string `json:"decision"`
	Message         string `json:"message"`
	ProcessingTime  string `json:"processing_time"`
	TraditionalTime string `json:"traditional_time"`
}

// RequestDecision asks the backend for the final verdict on this session.
func (c *Client) RequestDecision(ctx context.Context, sessionID string) (session.Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var out decisionResponse
	if err := c.postJSON(ctx, "decision", "/api/decision", sessionRequest{SessionID: sessionID}, &out); err != nil {
		return session.Decision{}, err
	}

	narrative, note := out.Decision, out.Message
	if narrative == "" {
		narrative, note = out.Message, ""
	}
	if narrative == note {
		note = ""
	}
	return session.Decision{
		Status:          session.DecisionStatus(out.Status),
		Narrative:       narrative,
		Note:            note,
		ProcessingTime:  out.ProcessingTime,
		TraditionalTime: out.TraditionalTime,
	}, nil
}

// letterRequest is the JSON body for POST /api/generate-letter.
type letterRequest struct {
	ApprovedAmount int64   `json:"approved_amount"`
	InterestRate   float64 `json:"interest_rate"`
}

// GenerateLetter fetches the sanction letter as raw document bytes. The
// payload is binary; no decoding is attempted.
func (c *Client) GenerateLetter(ctx context.Context, approvedAmount int64, interestRate float64) ([]byte, error) {
	body, err := json.Marshal(letterRequest{ApprovedAmount: approvedAmount, InterestRate: interestRate})
	if err != nil {
		return nil, &Error{Kind: KindProtocol, Op: "letter", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate-letter", bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindProtocol, Op: "letter", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyDoError("letter", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{Kind: KindNetwork, Op: "letter", Message: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Op: "letter", Err: err}
	}
	return data, nil
}

// postJSON issues a JSON POST and decodes the response into out,
// classifying every failure mode into the Error taxonomy.
func (c *Client) postJSON(ctx context.Context, op, path string, reqBody, out any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return &Error{Kind: KindProtocol, Op: op, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return &Error{Kind: KindProtocol, Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyDoError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &Error{Kind: KindNetwork, Op: op, Message: fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Kind: KindProtocol, Op: op, Err: err}
	}
	return nil
}

// classifyDoError maps an http.Client.Do failure to timeout or network.
func classifyDoError(op string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Op: op, Err: err}
	}
	return &Error{Kind: KindNetwork, Op: op, Err: err}
}
