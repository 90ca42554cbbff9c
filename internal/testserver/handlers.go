package testserver

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/maumercado/miri-go/internal/logger"
)

const maxUploadSize = 32 << 20

type handler struct {
	store *Store
	hub   *Hub
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// respondError writes the service's {"error": "..."} body.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

type promptRequest struct {
	Prompt    string `json:"prompt"`
	SessionID string `json:"session_id,omitempty"`
	Model     string `json:"model,omitempty"`
}

// Prompt handles POST /api/v1/prompt
func (h *handler) Prompt(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Prompt == "" {
		respondError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	answer := Answer(req.Prompt)
	h.store.Record(req.SessionID, req.Prompt, answer)
	respondJSON(w, http.StatusOK, map[string]string{"response": answer})
}

// PromptStream handles GET /api/v1/prompt/stream as server-sent events,
// framed the way gin's SSEvent writes them: no space after the colon.
func (h *handler) PromptStream(w http.ResponseWriter, r *http.Request) {
	prompt := r.URL.Query().Get("prompt")
	if prompt == "" {
		respondError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	answer := Answer(prompt)
	for _, chunk := range Chunks(answer) {
		if r.Context().Err() != nil {
			return
		}
		fmt.Fprintf(w, "event:message\ndata:%s\n\n", strings.ReplaceAll(chunk, "\n", "\ndata:"))
		flusher.Flush()
	}
	h.store.Record(r.URL.Query().Get("session_id"), prompt, answer)
}

// Chunks splits an answer the way the stub streams it: one word per chunk,
// each but the first with its leading space.
func Chunks(answer string) []string {
	words := strings.Fields(answer)
	out := make([]string, len(words))
	for i, w := range words {
		if i > 0 {
			w = " " + w
		}
		out[i] = w
	}
	return out
}

type interactionRequest struct {
	Action   string `json:"action"`
	ClientID string `json:"client_id"`
}

// Interaction handles POST /api/v1/interaction
func (h *handler) Interaction(w http.ResponseWriter, r *http.Request) {
	var req interactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch req.Action {
	case "new":
		if req.ClientID == "" {
			respondError(w, http.StatusBadRequest, "client_id is required")
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"session_id": h.store.CreateSession(req.ClientID)})
	case "status":
		respondJSON(w, http.StatusOK, map[string]any{
			"primary_model": "stub/echo",
			"num_subagents": 0,
			"sessions":      h.store.SessionIDs(),
			"channels":      []string{"irc", "whatsapp"},
		})
	default:
		respondError(w, http.StatusBadRequest, "unknown action")
	}
}

// UploadFile handles POST /api/v1/files/upload
func (h *handler) UploadFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	name := path.Base(header.Filename)
	stored := path.Join("uploads", name)
	h.store.PutFile(stored, data)

	respondJSON(w, http.StatusOK, map[string]string{
		"status":   "uploaded",
		"filename": name,
		"path":     stored,
		"download": "/api/v1/files/" + stored,
	})
}

// DownloadFile handles GET /api/v1/files/*
func (h *handler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "*")
	data, ok := h.store.File(name)
	if !ok {
		respondError(w, http.StatusNotFound, "file not found")
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Health handles GET /api/admin/v1/health
func (h *handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "Admin API is healthy",
	})
}

func (h *handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.store.Config())
}

func (h *handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var cfg json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil || len(cfg) == 0 || cfg[0] != '{' {
		respondError(w, http.StatusBadRequest, "invalid config")
		return
	}
	h.store.SetConfig(cfg)
	respondJSON(w, http.StatusOK, map[string]string{"status": "config updated"})
}

func (h *handler) ListHumans(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.store.Humans())
}

func (h *handler) SaveHuman(w http.ResponseWriter, r *http.Request) {
	var info HumanInfo
	if err := json.NewDecoder(r.Body).Decode(&info); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.store.AddHuman(info)
	respondJSON(w, http.StatusOK, map[string]string{"status": "human info saved"})
}

func (h *handler) ListSkills(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.store.Skills())
}

func (h *handler) GetSkill(w http.ResponseWriter, r *http.Request) {
	sk, ok := h.store.Skill(chi.URLParam(r, "name"))
	if !ok {
		respondError(w, http.StatusNotFound, "skill not found")
		return
	}
	respondJSON(w, http.StatusOK, sk)
}

func (h *handler) RemoveSkill(w http.ResponseWriter, r *http.Request) {
	if !h.store.RemoveSkill(chi.URLParam(r, "name")) {
		respondError(w, http.StatusNotFound, "skill not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "skill removed"})
}

type channelRequest struct {
	Channel string `json:"channel"`
	Action  string `json:"action"`
	Device  string `json:"device"`
	Message string `json:"message"`
	Prompt  string `json:"prompt"`
}

// ChannelAction handles POST /api/admin/v1/channels
func (h *handler) ChannelAction(w http.ResponseWriter, r *http.Request) {
	var req channelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Channel != "whatsapp" && req.Channel != "irc" {
		respondError(w, http.StatusBadRequest, "unknown channel")
		return
	}

	switch req.Action {
	case "status":
		respondJSON(w, http.StatusOK, map[string]string{"status": "connected"})
	case "enroll":
		respondJSON(w, http.StatusOK, map[string]string{"status": "enrollment started"})
	case "devices":
		respondJSON(w, http.StatusOK, map[string][]string{"devices": {"device-1"}})
	case "send":
		if req.Device == "" || req.Message == "" {
			respondError(w, http.StatusBadRequest, "device and message are required")
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "sent"})
	case "chat":
		if req.Device == "" || req.Prompt == "" {
			respondError(w, http.StatusBadRequest, "device and prompt are required")
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"response": Answer(req.Prompt)})
	default:
		respondError(w, http.StatusBadRequest, "unknown action")
	}
}

func (h *handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.store.SessionIDs())
}

func (h *handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.store.Session(chi.URLParam(r, "id"))
	if !ok {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (h *handler) SessionHistory(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.store.Session(chi.URLParam(r, "id"))
	if !ok {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"messages":     sess.Messages,
		"total_tokens": sess.TotalTokens,
	})
}

func (h *handler) SessionStats(w http.ResponseWriter, r *http.Request) {
	stats, ok := h.store.sessionStats(chi.URLParam(r, "id"))
	if !ok {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (h *handler) SessionSkills(w http.ResponseWriter, r *http.Request) {
	skills, ok := h.store.sessionSkills(chi.URLParam(r, "id"))
	if !ok {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	respondJSON(w, http.StatusOK, skills)
}

func (h *handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.store.Tasks())
}

func (h *handler) GetTask(w http.ResponseWriter, r *http.Request) {
	t, ok := h.store.Task(chi.URLParam(r, "id"))
	if !ok {
		respondError(w, http.StatusNotFound, "task not found")
		return
	}
	respondJSON(w, http.StatusOK, t)
}
