package handlers

import (
	"encoding/json"
	"net/http"
	"sort"

	"notehub/internal/directory"
	"notehub/internal/store"
	"notehub/middleware"
	"notehub/pkg/logger"
)

type DocumentHandler struct {
	Service *directory.Service
}

type UpdateDocRequest struct {
	Title string `json:"title"`
}

type SaveDocRequest struct {
	DocID    string  `json:"document_id"`
	Title    *string `json:"title,omitempty"`
	Content  *string `json:"content,omitempty"`
	ClientTs int64   `json:"clientTs,omitempty"`
}

func (h *DocumentHandler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	user := middleware.UserFrom(r.Context())
	doc, err := h.Service.Create(user.ID)
	if err != nil {
		logger.Sugar.Errorf("Failed to create document: %v", err)
		http.Error(w, "Failed to create document", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}

func (h *DocumentHandler) GetDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	docs := h.Service.List()
	// Most recently updated first, like the sidebar shows them.
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].UpdatedAt > docs[j].UpdatedAt })
	if docs == nil {
		docs = []store.Document{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(docs)
}

func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	docID := r.URL.Query().Get("docId")
	if docID == "" {
		http.Error(w, "Missing docId parameter", http.StatusBadRequest)
		return
	}

	doc, ok := h.Service.GetByID(docID)
	if !ok {
		http.Error(w, "Document not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}

// UpdateDocument renames a document. A stale id is a silent no-op; callers
// re-fetch the list and fall back.
func (h *DocumentHandler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	docID := r.URL.Query().Get("docId")
	if docID == "" {
		http.Error(w, "Missing docId parameter", http.StatusBadRequest)
		return
	}

	var req UpdateDocRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Title == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.Service.Rename(docID, req.Title); err != nil {
		logger.Sugar.Errorf("Failed to rename document %s: %v", docID, err)
		http.Error(w, "Failed to rename document", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Document updated successfully"))
}

func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	docID := r.URL.Query().Get("docId")
	if docID == "" {
		http.Error(w, "Missing docId parameter", http.StatusBadRequest)
		return
	}

	if err := h.Service.Remove(docID); err != nil {
		logger.Sugar.Errorf("Failed to delete document %s: %v", docID, err)
		http.Error(w, "Failed to delete document", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Document deleted successfully"))
}

func (h *DocumentHandler) ToggleVisibility(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	docID := r.URL.Query().Get("docId")
	if docID == "" {
		http.Error(w, "Missing docId parameter", http.StatusBadRequest)
		return
	}

	if err := h.Service.TogglePublic(docID); err != nil {
		logger.Sugar.Errorf("Failed to toggle visibility of %s: %v", docID, err)
		http.Error(w, "Failed to toggle visibility", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Visibility updated"))
}

func (h *DocumentHandler) SaveDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SaveDocRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DocID == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Title == nil && req.Content == nil {
		http.Error(w, "Nothing to save", http.StatusBadRequest)
		return
	}

	user := middleware.UserFrom(r.Context())
	patch := directory.Patch{Title: req.Title, Content: req.Content, ClientTs: req.ClientTs, UserID: user.ID}
	if err := h.Service.Save(req.DocID, patch); err != nil {
		logger.Sugar.Errorf("Failed to save document %s: %v", req.DocID, err)
		http.Error(w, "Failed to save document", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Document saved successfully"))
}
