// Package bot dispatches inbound Telegram updates. Each update is classified
// by shape (command, document, photo, text, empty) and handled with exactly
// one outbound reply; every failure past that point degrades into a fixed
// user-facing message rather than a failed webhook acknowledgment.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rites-dev/perplexity-tele-bot/internal/classify"
	"github.com/rites-dev/perplexity-tele-bot/internal/fsstore"
	"github.com/rites-dev/perplexity-tele-bot/internal/telegram"
	"github.com/rites-dev/perplexity-tele-bot/llm"
	"github.com/rites-dev/perplexity-tele-bot/memory"
	"github.com/rites-dev/perplexity-tele-bot/providers/perplexity"
	"github.com/rites-dev/perplexity-tele-bot/storage"
)

const (
	greetingReply   = "Hi! Send me a question and I'll ask Perplexity for you."
	capabilityReply = "Send me a question and I'll ask Perplexity for you. You can also send a document or photo and I'll save it."
	mkdirUsageReply = "Usage: /mkdir <folder name>"

	apologyUpstream  = "Sorry, I had an issue talking to the AI. Try again later."
	apologyTransport = "Sorry, something went wrong while contacting the AI."
	emptyAnswerReply = "I couldn't generate a response."
	apologySaveFile  = "Sorry, I couldn't save that file. Try again later."
)

const defaultSystemPrompt = "You are a helpful Telegram assistant."

type Handler struct {
	logger       *slog.Logger
	api          *telegram.API
	client       llm.Client
	logbook      *memory.Logbook
	uploader     storage.Uploader
	dataDir      string
	model        string
	systemPrompt string
}

type HandlerConfig struct {
	Logger  *slog.Logger
	API     *telegram.API
	LLM     llm.Client
	Logbook *memory.Logbook
	// Uploader is the optional remote mirror; nil disables mirroring and
	// makes /mkdir report that storage is not configured.
	Uploader     storage.Uploader
	DataDir      string
	Model        string
	SystemPrompt string
}

func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "sonar"
	}
	prompt := strings.TrimSpace(cfg.SystemPrompt)
	if prompt == "" {
		prompt = defaultSystemPrompt
	}
	dataDir := strings.TrimSpace(cfg.DataDir)
	if dataDir == "" {
		dataDir = "data"
	}
	return &Handler{
		logger:       logger,
		api:          cfg.API,
		client:       cfg.LLM,
		logbook:      cfg.Logbook,
		uploader:     cfg.Uploader,
		dataDir:      dataDir,
		model:        model,
		systemPrompt: prompt,
	}
}

// HandleUpdate classifies one inbound update and produces its single reply.
// It never returns an error: every failure is either converted into a
// fallback reply or logged and swallowed, so the webhook acknowledgment
// stays a 200 regardless.
func (h *Handler) HandleUpdate(ctx context.Context, upd telegram.Update) {
	msg := upd.Message
	if msg == nil || msg.Chat == nil {
		h.logger.Info("update_without_message", "update_id", upd.UpdateID)
		return
	}
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	switch {
	case commandToken(text) != "":
		h.handleCommand(ctx, chatID, text)
	case msg.HasDocument():
		h.handleDocument(ctx, chatID, msg.Document)
	case msg.HasPhoto():
		h.handlePhoto(ctx, chatID, msg)
	case text != "":
		h.handleText(ctx, chatID, text)
	default:
		h.reply(ctx, chatID, capabilityReply)
	}
}

// commandToken returns the recognized command at the start of text, or "".
// Unrecognized slash-prefixed text is treated as plain text and goes to the
// model like anything else.
func commandToken(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	cmd, _, _ := strings.Cut(fields[0], "@")
	switch cmd {
	case "/start", "/mkdir":
		return cmd
	}
	return ""
}

func (h *Handler) handleCommand(ctx context.Context, chatID int64, text string) {
	fields := strings.Fields(text)
	switch commandToken(text) {
	case "/start":
		h.reply(ctx, chatID, greetingReply)
	case "/mkdir":
		h.handleMkdir(ctx, chatID, fields[1:])
	}
}

func (h *Handler) handleMkdir(ctx context.Context, chatID int64, args []string) {
	name := SanitizeFolderName(args)
	if name == "" {
		h.reply(ctx, chatID, mkdirUsageReply)
		return
	}
	if h.uploader == nil {
		h.reply(ctx, chatID, "Sorry, remote storage isn't configured.")
		return
	}
	if err := h.uploader.EnsureFolder(ctx, name); err != nil {
		h.logger.Warn("storage_mkdir_error", "folder", name, "error", err.Error())
		h.reply(ctx, chatID, "Sorry, I couldn't create that folder. Try again later.")
		return
	}
	h.reply(ctx, chatID, fmt.Sprintf("Created folder %s.", name))
}

var folderCharPattern = regexp.MustCompile(`[^\w.-]`)

// SanitizeFolderName joins the /mkdir arguments with underscores and strips
// everything outside word characters, dots and dashes. An empty result means
// the caller had no usable arguments.
func SanitizeFolderName(args []string) string {
	joined := strings.Join(args, "_")
	joined = folderCharPattern.ReplaceAllString(joined, "")
	return strings.Trim(joined, "._-")
}

var teacherNamePattern = regexp.MustCompile(`^(whats|what's|what is) my teacher'?s name$`)

// isTeacherNameQuestion matches the handful of spellings of the one recall
// query the bot answers from its log instead of the model.
func isTeacherNameQuestion(text string) bool {
	text = strings.ToLower(strings.TrimSpace(text))
	text = strings.TrimRight(text, "?!. ")
	return teacherNamePattern.MatchString(text)
}

func (h *Handler) handleTeacherName(ctx context.Context, chatID int64) {
	name, ok, err := h.logbook.Recall("teacher", string(classify.People))
	if err != nil {
		h.logger.Warn("recall_error", "error", err.Error())
	}
	if !ok {
		h.reply(ctx, chatID, "I don't know your teacher's name yet.")
		return
	}
	h.reply(ctx, chatID, fmt.Sprintf("Your teacher's name is %s.", name))
}

func (h *Handler) handleText(ctx context.Context, chatID int64, text string) {
	if isTeacherNameQuestion(text) {
		h.handleTeacherName(ctx, chatID)
		return
	}

	h.bestEffort("telegram_chat_action_error", func() error {
		return h.api.SendChatAction(ctx, chatID, "typing")
	})

	h.reply(ctx, chatID, h.askModel(ctx, text))

	category := classify.Classify(text)
	if err := h.logbook.Append(chatID, string(category), text); err != nil {
		h.logger.Warn("logbook_append_error", "error", err.Error())
		return
	}
	h.mirrorLogbook(ctx)
}

// askModel turns any model failure into one of the fixed apology strings so
// the chat user always gets a reply.
func (h *Handler) askModel(ctx context.Context, prompt string) string {
	res, err := h.client.Chat(ctx, llm.Request{
		Model: h.model,
		Messages: []llm.Message{
			{Role: "system", Content: h.systemPrompt},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		var se *perplexity.StatusError
		if errors.As(err, &se) {
			h.logger.Warn("llm_status_error", "status", se.Code, "error", err.Error())
			return apologyUpstream
		}
		h.logger.Warn("llm_transport_error", "error", err.Error())
		return apologyTransport
	}
	answer := strings.TrimSpace(res.Text)
	if answer == "" {
		return emptyAnswerReply
	}
	return answer
}

func (h *Handler) handleDocument(ctx context.Context, chatID int64, doc *telegram.Document) {
	name := telegram.SanitizeFilename(doc.FileName)
	h.saveAttachment(ctx, chatID, doc.FileID, name)
}

func (h *Handler) handlePhoto(ctx context.Context, chatID int64, msg *telegram.Message) {
	photo, ok := msg.BestPhoto()
	if !ok {
		h.reply(ctx, chatID, capabilityReply)
		return
	}
	name := fmt.Sprintf("photo_%d.jpg", msg.MessageID)
	h.saveAttachment(ctx, chatID, photo.FileID, name)
}

// saveAttachment resolves the file id, downloads the bytes, persists them
// under the data dir and mirrors them best-effort. Resolve and persist
// failures produce the apology and deliberately skip the log.
func (h *Handler) saveAttachment(ctx context.Context, chatID int64, fileID, name string) {
	file, err := h.api.GetFile(ctx, fileID)
	if err != nil {
		h.logger.Warn("telegram_get_file_error", "error", err.Error())
		h.reply(ctx, chatID, apologySaveFile)
		return
	}
	data, err := h.api.DownloadFile(ctx, file.FilePath, 0)
	if err != nil {
		h.logger.Warn("telegram_download_error", "file_path", file.FilePath, "error", err.Error())
		h.reply(ctx, chatID, apologySaveFile)
		return
	}

	localPath := filepath.Join(h.dataDir, name)
	if err := fsstore.WriteFileAtomic(localPath, data, fsstore.FileOptions{}); err != nil {
		h.logger.Warn("attachment_write_error", "path", localPath, "error", err.Error())
		h.reply(ctx, chatID, apologySaveFile)
		return
	}
	h.logger.Info("attachment_saved", "chat_id", chatID, "path", localPath, "bytes", len(data))

	if h.uploader != nil {
		h.bestEffort("storage_upload_error", func() error {
			return h.uploader.Upload(ctx, name, data)
		})
	}
	h.reply(ctx, chatID, fmt.Sprintf("Saved %s.", name))
}

// mirrorLogbook pushes the whole message log to the remote mirror after each
// append. Entries are tiny, so re-uploading the file beats tracking deltas.
func (h *Handler) mirrorLogbook(ctx context.Context) {
	if h.uploader == nil {
		return
	}
	h.bestEffort("storage_log_mirror_error", func() error {
		data, err := os.ReadFile(h.logbook.Path())
		if err != nil {
			return err
		}
		return h.uploader.Upload(ctx, filepath.Base(h.logbook.Path()), data)
	})
}

// reply sends the single outbound message for this update. Send failures are
// logged and swallowed so they never abort request handling.
func (h *Handler) reply(ctx context.Context, chatID int64, text string) {
	h.bestEffort("telegram_send_error", func() error {
		return h.api.SendMessage(ctx, chatID, text)
	})
}
