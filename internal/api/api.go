// Package api implements the loan service HTTP surface: the guided chat,
// eligibility scoring, document verification, the final decision, and
// sanction letter generation. The wire shapes are what the client in
// internal/backend consumes.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"

	"github.com/nmehta/loanassist/internal/decisioning"
	"github.com/nmehta/loanassist/internal/document"
	"github.com/nmehta/loanassist/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Uploads carry one document plus multipart overhead.
const maxUploadBodySize = document.MaxFileSize + 1<<20

// Deps wires the API handler.
type Deps struct {
	Store *storage.Store
}

// NewHandler returns the loan service router.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Post("/api/chat", handleChat(deps))
	r.Post("/api/eligibility", handleEligibility(deps))
	r.Post("/api/upload", handleUpload(deps))
	r.Post("/api/decision", handleDecision(deps))
	r.Post("/api/generate-letter", handleGenerateLetter())

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

type chatResponse struct {
	Message  string             `json:"message"`
	Stage    string             `json:"stage"`
	UserData decisioning.Fields `json:"user_data"`
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		if req.SessionID == "" {
			req.SessionID = "default"
		}

		app, err := deps.Store.EnsureApplication(req.SessionID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to load session: %v", err)
			return
		}

		var fields decisioning.Fields
		if err := json.Unmarshal([]byte(app.FieldsJSON), &fields); err != nil {
			httpError(w, http.StatusInternalServerError, "corrupt session fields: %v", err)
			return
		}

		if err := deps.Store.AppendMessage(req.SessionID, "user", req.Message); err != nil {
			httpError(w, http.StatusInternalServerError, "failed to record message: %v", err)
			return
		}

		// Fields stick once collected; later turns only fill gaps.
		fields.Merge(decisioning.ExtractFields(req.Message))
		reply := decisioning.Respond(fields)
		stage := fields.NextStage()

		fieldsJSON, err := json.Marshal(fields)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to marshal fields: %v", err)
			return
		}
		if err := deps.Store.UpdateApplication(req.SessionID, stage, string(fieldsJSON)); err != nil {
			httpError(w, http.StatusInternalServerError, "failed to update session: %v", err)
			return
		}
		if err := deps.Store.AppendMessage(req.SessionID, "assistant", reply); err != nil {
			httpError(w, http.StatusInternalServerError, "failed to record message: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatResponse{
			Message:  reply,
			Stage:    stage,
			UserData: fields,
		})
	}
}

type sessionRequest struct {
	SessionID string `json:"session_id"`
}

func handleEligibility(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req sessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}

		app, err := deps.Store.GetApplication(req.SessionID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "session not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to load session: %v", err)
			return
		}

		var fields decisioning.Fields
		if err := json.Unmarshal([]byte(app.FieldsJSON), &fields); err != nil {
			httpError(w, http.StatusInternalServerError, "corrupt session fields: %v", err)
			return
		}

		result := decisioning.Evaluate(fields)

		resultJSON, err := json.Marshal(result)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to marshal result: %v", err)
			return
		}
		if err := deps.Store.SetEligibility(req.SessionID, string(resultJSON)); err != nil {
			httpError(w, http.StatusInternalServerError, "failed to record result: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	}
}

func handleUpload(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBodySize)
		defer r.Body.Close()

		file, _, err := r.FormFile("file")
		if err != nil {
			uploadError(w, http.StatusBadRequest, "no file uploaded")
			return
		}
		defer file.Close()

		docType := r.FormValue("type")
		sessionID := r.FormValue("session_id")
		if sessionID == "" {
			sessionID = "default"
		}

		data, err := io.ReadAll(io.LimitReader(file, document.MaxFileSize+1))
		if err != nil {
			uploadError(w, http.StatusBadRequest, "failed to read file: %v", err)
			return
		}
		if len(data) == 0 {
			uploadError(w, http.StatusBadRequest, "no file selected")
			return
		}
		if len(data) > document.MaxFileSize {
			uploadError(w, http.StatusBadRequest, "file exceeds the 5MB limit")
			return
		}
		if mtype := mimetype.Detect(data); !acceptedUploadType(mtype) {
			uploadError(w, http.StatusBadRequest, "unsupported file type %s, expected JPEG, PNG, or PDF", mtype.String())
			return
		}

		if _, err := deps.Store.EnsureApplication(sessionID); err != nil {
			httpError(w, http.StatusInternalServerError, "failed to load session: %v", err)
			return
		}

		// Verification outcome is recorded either way; the decision stage
		// reads the full upload history.
		v := decisioning.VerifyDocument(docType)
		if err := deps.Store.AddDocument(sessionID, docType, v.Verified, v.Message); err != nil {
			httpError(w, http.StatusInternalServerError, "failed to record document: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(v)
	}
}

func acceptedUploadType(mtype *mimetype.MIME) bool {
	for _, accepted := range []string{"image/jpeg", "image/png", "application/pdf"} {
		if mtype.Is(accepted) {
			return true
		}
	}
	return false
}

func handleDecision(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req sessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}

		app, err := deps.Store.GetApplication(req.SessionID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "session not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to load session: %v", err)
			return
		}

		// An application with no recorded eligibility decides as ineligible.
		var elig decisioning.Eligibility
		if app.EligibilityJSON != "" {
			if err := json.Unmarshal([]byte(app.EligibilityJSON), &elig); err != nil {
				httpError(w, http.StatusInternalServerError, "corrupt eligibility record: %v", err)
				return
			}
		}

		docs, err := deps.Store.Documents(req.SessionID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to load documents: %v", err)
			return
		}

		outcome := decisioning.Decide(elig, len(docs))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(outcome)
	}
}

type letterRequest struct {
	ApprovedAmount int64   `json:"approved_amount"`
	InterestRate   float64 `json:"interest_rate"`
}

func handleGenerateLetter() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req letterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}

		pdf := buildSanctionLetter(req.ApprovedAmount, req.InterestRate)

		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="sanction_letter.pdf"`)
		w.Write(pdf)
	}
}

func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"error": fmt.Sprintf(format, args...),
	})
}

// uploadError matches the upload wire shape, which carries verified=false
// alongside the error so clients can treat it as a verification failure.
func uploadError(w http.ResponseWriter, code int, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"error":    fmt.Sprintf(format, args...),
		"verified": false,
	})
}
