package bot

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rites-dev/perplexity-tele-bot/internal/fsstore"
	"github.com/rites-dev/perplexity-tele-bot/internal/telegram"
)

// Server is the HTTP surface in front of the dispatcher: the webhook
// endpoint Telegram delivers updates to, plus health and save endpoints.
type Server struct {
	logger       *slog.Logger
	handler      *Handler
	webhookToken string
	dataDir      string
}

func NewServer(logger *slog.Logger, handler *Handler, webhookToken, dataDir string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	dataDir = strings.TrimSpace(dataDir)
	if dataDir == "" {
		dataDir = "data"
	}
	return &Server{
		logger:       logger,
		handler:      handler,
		webhookToken: webhookToken,
		dataDir:      dataDir,
	}
}

func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", s.handleWebhook)
	mux.HandleFunc("/webhook/", s.handleWebhook)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/save", s.handleSave)
	mux.HandleFunc("/", s.handleRoot)
	return mux
}

// handleWebhook acknowledges every handled update with a 200, even when the
// handling itself degraded into an apology reply. Anything else would make
// Telegram redeliver the update and repeat the failure.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("webhook_panic", "panic", rec)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}()

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	suffix := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/webhook"), "/")
	if suffix != "" && subtle.ConstantTimeCompare([]byte(suffix), []byte(s.webhookToken)) != 1 {
		http.NotFound(w, r)
		return
	}

	var upd telegram.Update
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		// A body we cannot decode carries nothing to act on or reply to;
		// acknowledge it so the platform does not redeliver.
		s.logger.Warn("webhook_decode_error", "error", err.Error())
		w.WriteHeader(http.StatusOK)
		return
	}
	s.logger.Info("webhook_received", "trace_id", uuid.NewString(), "update_id", upd.UpdateID)

	s.handler.HandleUpdate(r.Context(), upd)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Telegram + Perplexity bot is running"))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type saveRequest struct {
	Filename string `json:"filename"`
	Data     string `json:"data"`
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req saveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json body"})
		return
	}
	name := strings.TrimSpace(req.Filename)
	if name == "" {
		name = uuid.NewString() + ".txt"
	} else {
		name = telegram.SanitizeFilename(name)
	}
	path := filepath.Join(s.dataDir, name)
	if err := fsstore.WriteTextAtomic(path, req.Data, fsstore.FileOptions{}); err != nil {
		s.logger.Warn("save_write_error", "path", path, "error", err.Error())
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	s.logger.Info("save_ok", "path", path, "bytes", len(req.Data))
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "path": path})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
