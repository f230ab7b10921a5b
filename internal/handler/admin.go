package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/pavelanni/evalstore/internal/i18n"
	"github.com/pavelanni/evalstore/internal/model"
)

const maxUploadSize = 10 << 20

type importResult struct {
	ID        int64  `json:"id"`
	Questions int    `json:"questions"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Message   string `json:"message"`
}

func (h *Handler) handleImportEvaluation(w http.ResponseWriter, r *http.Request) {
	var doc model.EvaluationImport
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadSize)).Decode(&doc); err != nil {
		writeMessage(w, r, http.StatusBadRequest, "ErrInvalidBody")
		return
	}
	h.importDocument(w, r, doc)
}

// handleUploadEvaluation imports an evaluation document sent as a multipart
// file. A file whose name and content were already imported is skipped; a
// file imported before under the same name with other content is refused.
func (h *Handler) handleUploadEvaluation(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeMessage(w, r, http.StatusBadRequest, "ErrInvalidBody")
		return
	}

	file, header, err := r.FormFile("evaluation_file")
	if err != nil {
		writeMessage(w, r, http.StatusBadRequest, "ErrNoFile")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeMessage(w, r, http.StatusBadRequest, "ErrInvalidBody")
		return
	}

	hashBytes := sha256.Sum256(data)
	hash := hex.EncodeToString(hashBytes[:])

	storedHash, err := h.store.ImportedFileHash(r.Context(), header.Filename)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if storedHash == hash {
		writeJSON(w, http.StatusOK, importResult{Duplicate: true, Message: i18n.T(r.Context(), "ImportDuplicate")})
		return
	}
	if storedHash != "" {
		slog.Warn("evaluation file changed since last import, skipping", "file", header.Filename)
		writeMessage(w, r, http.StatusConflict, "ImportChanged")
		return
	}

	var doc model.EvaluationImport
	if err := json.Unmarshal(data, &doc); err != nil {
		writeMessage(w, r, http.StatusBadRequest, "ErrInvalidBody")
		return
	}
	if !h.importDocument(w, r, doc) {
		return
	}

	if err := h.store.SetImportedFileHash(r.Context(), header.Filename, hash); err != nil {
		slog.Error("failed to record import", "file", header.Filename, "error", err)
	}
}

func (h *Handler) importDocument(w http.ResponseWriter, r *http.Request, doc model.EvaluationImport) bool {
	id, err := h.store.ImportEvaluation(r.Context(), doc)
	if err != nil {
		writeError(w, r, err)
		return false
	}
	writeJSON(w, http.StatusCreated, importResult{
		ID:        id,
		Questions: len(doc.Questions),
		Message:   i18n.Tp(r.Context(), "ImportedQuestions", len(doc.Questions)),
	})
	return true
}

func (h *Handler) handleSetPublished(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "evaluationID")
	if !ok {
		return
	}
	var body struct {
		Published *bool `json:"published"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Published == nil {
		writeMessage(w, r, http.StatusBadRequest, "ErrInvalidBody")
		return
	}
	if err := h.store.Evaluations().SetPublished(r.Context(), id, *body.Published); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleReorder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "evaluationID")
	if !ok {
		return
	}
	var body struct {
		QuestionIDs []int64 `json:"question_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeMessage(w, r, http.StatusBadRequest, "ErrInvalidBody")
		return
	}
	if err := h.store.Questions().Reorder(r.Context(), id, body.QuestionIDs); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeleteEvaluation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "evaluationID")
	if !ok {
		return
	}
	if err := h.store.DeleteEvaluation(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
