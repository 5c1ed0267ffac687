package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/SarcasticNickname/AudioNotes-sub000/internal/content"
	"github.com/SarcasticNickname/AudioNotes-sub000/internal/domain"
	"github.com/SarcasticNickname/AudioNotes-sub000/internal/store"
)

// Server handles HTTP requests for the notes API
type Server struct {
	store  *store.Store
	addr   string
	logger *slog.Logger
}

// New creates a new API server
func New(s *store.Store, addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{store: s, addr: addr, logger: logger}
}

// Run starts the HTTP server
func (s *Server) Run() error {
	s.logger.Info("starting server", "addr", s.addr)
	return http.ListenAndServe(s.addr, s.Handler())
}

// Handler builds the route table. Split from Run so tests can drive it
// through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Notes
	mux.HandleFunc("GET /notes", s.listNotes)
	mux.HandleFunc("POST /notes", s.saveNote)
	mux.HandleFunc("GET /notes/{id}", s.getNote)
	mux.HandleFunc("POST /notes/{id}/archive", s.archiveNote)
	mux.HandleFunc("DELETE /notes/{id}", s.deleteNote)

	// Audio
	mux.HandleFunc("GET /notes/{id}/blocks/{blockID}/audio", s.serveAudio)

	// Health check
	mux.HandleFunc("GET /health", s.health)

	return withCORS(mux)
}

// withCORS adds CORS headers for frontend development
func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		h.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ListFilter{
		Query:   q.Get("q"),
		SortBy:  q.Get("sort"),
		SortAsc: q.Get("order") == "asc",
	}

	// Archived notes stay out of the listing unless asked for.
	archived := q.Get("archived") == "true"
	filter.Archived = &archived

	if c := q.Get("category"); c != "" {
		cat := domain.CategoryFromName(strings.ToUpper(c))
		filter.Category = &cat
	}
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			filter.Limit = n
		}
	}

	notes, err := s.store.ListNotes(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"notes": notes,
		"count": len(notes),
	})
}

// SegmentView is one rendered span of a note body
type SegmentView struct {
	Kind  string             `json:"kind"`
	Text  string             `json:"text,omitempty"`
	Block *domain.AudioBlock `json:"block,omitempty"`
}

// NoteResponse is a note with its blocks and rendered segments
type NoteResponse struct {
	Note     *domain.Note        `json:"note"`
	Blocks   []domain.AudioBlock `json:"blocks"`
	Segments []SegmentView       `json:"segments"`
}

func (s *Server) getNote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	note, blocks, ok := s.loadNote(r.Context(), w, id)
	if !ok {
		return
	}

	segs := content.Segments(note.Content, blocks)
	views := make([]SegmentView, 0, len(segs))
	for _, seg := range segs {
		if seg.Kind == content.SegmentAudio {
			b := seg.Block
			views = append(views, SegmentView{Kind: "audio", Block: &b})
		} else {
			views = append(views, SegmentView{Kind: "text", Text: seg.Text})
		}
	}

	writeJSON(w, http.StatusOK, NoteResponse{Note: note, Blocks: blocks, Segments: views})
}

// SaveNoteRequest is the request body for creating or updating a note
type SaveNoteRequest struct {
	ID       int64               `json:"id,omitempty"`
	Title    string              `json:"title"`
	Content  string              `json:"content"`
	Category string              `json:"category,omitempty"`
	Blocks   []domain.AudioBlock `json:"blocks,omitempty"`
}

func (s *Server) saveNote(w http.ResponseWriter, r *http.Request) {
	var req SaveNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Title) == "" && strings.TrimSpace(req.Content) == "" && len(req.Blocks) == 0 {
		writeError(w, http.StatusBadRequest, "empty note")
		return
	}

	draft := &domain.Note{
		ID:       req.ID,
		Title:    req.Title,
		Content:  req.Content,
		Category: domain.CategoryFromName(strings.ToUpper(req.Category)),
	}

	// The request body does not carry the archive flag or the reminder, but
	// the gateway writes every column. Merge them from the stored row so a
	// text edit cannot silently unarchive a note or drop its reminder.
	if req.ID != 0 {
		existing, err := s.store.GetNote(r.Context(), req.ID)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "note not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		draft.IsArchived = existing.IsArchived
		draft.ReminderAt = existing.ReminderAt
	}

	id, err := s.store.SaveNote(r.Context(), draft, req.Blocks)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "note not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	note, blocks, ok := s.loadNote(r.Context(), w, id)
	if !ok {
		return
	}
	status := http.StatusOK
	if req.ID == 0 {
		status = http.StatusCreated
	}
	writeJSON(w, status, NoteResponse{Note: note, Blocks: blocks})
}

func (s *Server) archiveNote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	archived := r.URL.Query().Get("undo") != "true"
	err := s.store.SetArchived(r.Context(), id, archived)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "note not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "archived": archived})
}

func (s *Server) deleteNote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	paths, err := s.store.DeleteNote(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "note not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("remove clip file", "path", p, "err", err)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) serveAudio(w http.ResponseWriter, r *http.Request) {
	noteID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	blockID, ok := pathID(w, r, "blockID")
	if !ok {
		return
	}

	blocks, err := s.store.GetAudioBlocks(r.Context(), noteID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for _, b := range blocks {
		if b.ID == blockID {
			http.ServeFile(w, r, b.FilePath)
			return
		}
	}
	writeError(w, http.StatusNotFound, "audio block not found")
}

// loadNote fetches a note and its blocks, writing the error response itself.
func (s *Server) loadNote(ctx context.Context, w http.ResponseWriter, id int64) (*domain.Note, []domain.AudioBlock, bool) {
	note, err := s.store.GetNote(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "note not found")
		return nil, nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, nil, false
	}

	blocks, err := s.store.GetAudioBlocks(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, nil, false
	}
	return note, blocks, true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
