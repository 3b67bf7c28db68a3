package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rites-dev/perplexity-tele-bot/internal/telegram"
	"github.com/rites-dev/perplexity-tele-bot/llm"
	"github.com/rites-dev/perplexity-tele-bot/memory"
	"github.com/rites-dev/perplexity-tele-bot/providers/perplexity"
	"github.com/rites-dev/perplexity-tele-bot/storage"
)

type fakeLLM struct {
	mu    sync.Mutex
	calls int
	text  string
	err   error
}

func (f *fakeLLM) Chat(ctx context.Context, req llm.Request) (llm.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return llm.Result{}, f.err
	}
	return llm.Result{Text: f.text}, nil
}

type fakeUploader struct {
	mu      sync.Mutex
	uploads []string
	folders []string
	err     error
}

func (f *fakeUploader) Upload(ctx context.Context, remoteName string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.uploads = append(f.uploads, remoteName)
	return nil
}

func (f *fakeUploader) EnsureFolder(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.folders = append(f.folders, name)
	return nil
}

// telegramFake is an httptest stand-in for the Bot API host.
type telegramFake struct {
	srv *httptest.Server

	mu          sync.Mutex
	sent        []string
	actions     []string
	fileIDs     []string
	failGetFile bool
}

func newTelegramFake(t *testing.T) *telegramFake {
	t.Helper()
	f := &telegramFake{}

	mux := http.NewServeMux()
	mux.HandleFunc("/bottest-token/sendMessage", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Text string `json:"text"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.sent = append(f.sent, body.Text)
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	mux.HandleFunc("/bottest-token/sendChatAction", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Action string `json:"action"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.actions = append(f.actions, body.Action)
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	mux.HandleFunc("/bottest-token/getFile", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.fileIDs = append(f.fileIDs, r.URL.Query().Get("file_id"))
		fail := f.failGetFile
		f.mu.Unlock()
		if fail {
			http.Error(w, "bad gateway", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{"file_id":"f1","file_path":"documents/file_1.bin"}}`))
	})
	mux.HandleFunc("/file/bottest-token/documents/file_1.bin", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("file-bytes"))
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *telegramFake) api() *telegram.API {
	return telegram.NewAPI(nil, f.srv.URL, "test-token")
}

func (f *telegramFake) sentMessages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func newTestHandler(t *testing.T, client llm.Client, up storage.Uploader) (*Handler, *telegramFake, string) {
	t.Helper()
	tg := newTelegramFake(t)
	dir := t.TempDir()
	h := NewHandler(HandlerConfig{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		API:      tg.api(),
		LLM:      client,
		Logbook:  memory.NewLogbook(filepath.Join(dir, "messages.log")),
		Uploader: up,
		DataDir:  dir,
	})
	return h, tg, dir
}

func textUpdate(text string) telegram.Update {
	return telegram.Update{
		UpdateID: 1,
		Message: &telegram.Message{
			MessageID: 42,
			Chat:      &telegram.Chat{ID: 7},
			Text:      text,
		},
	}
}

func lastSent(t *testing.T, tg *telegramFake) string {
	t.Helper()
	sent := tg.sentMessages()
	if len(sent) == 0 {
		t.Fatalf("no message was sent")
	}
	return sent[len(sent)-1]
}

func TestEmptyMessageRepliesCapability(t *testing.T) {
	t.Parallel()

	h, tg, _ := newTestHandler(t, &fakeLLM{}, nil)
	for _, text := range []string{"", "   "} {
		h.HandleUpdate(context.Background(), textUpdate(text))
	}
	sent := tg.sentMessages()
	if len(sent) != 2 {
		t.Fatalf("sent count mismatch: got %d want 2", len(sent))
	}
	for _, got := range sent {
		if got != capabilityReply {
			t.Fatalf("reply mismatch: got %q want %q", got, capabilityReply)
		}
	}
}

func TestUpdateWithoutMessageIsIgnored(t *testing.T) {
	t.Parallel()

	h, tg, _ := newTestHandler(t, &fakeLLM{}, nil)
	h.HandleUpdate(context.Background(), telegram.Update{UpdateID: 9})
	if got := tg.sentMessages(); len(got) != 0 {
		t.Fatalf("expected no outbound messages, got %v", got)
	}
}

func TestStartCommand(t *testing.T) {
	t.Parallel()

	h, tg, _ := newTestHandler(t, &fakeLLM{}, nil)
	h.HandleUpdate(context.Background(), textUpdate("/start"))
	if got := lastSent(t, tg); got != greetingReply {
		t.Fatalf("reply mismatch: got %q want %q", got, greetingReply)
	}
}

func TestMkdirWithoutArgsRepliesUsage(t *testing.T) {
	t.Parallel()

	up := &fakeUploader{}
	h, tg, _ := newTestHandler(t, &fakeLLM{}, up)
	h.HandleUpdate(context.Background(), textUpdate("/mkdir"))
	if got := lastSent(t, tg); got != mkdirUsageReply {
		t.Fatalf("reply mismatch: got %q want %q", got, mkdirUsageReply)
	}
	if len(up.folders) != 0 {
		t.Fatalf("expected no remote call, got %v", up.folders)
	}
}

func TestMkdirSanitizesName(t *testing.T) {
	t.Parallel()

	up := &fakeUploader{}
	h, tg, _ := newTestHandler(t, &fakeLLM{}, up)
	h.HandleUpdate(context.Background(), textUpdate("/mkdir my folder"))
	if len(up.folders) != 1 || up.folders[0] != "my_folder" {
		t.Fatalf("folder mismatch: got %v want [my_folder]", up.folders)
	}
	if got := lastSent(t, tg); got != "Created folder my_folder." {
		t.Fatalf("reply mismatch: got %q", got)
	}
}

func TestMkdirWithoutStorageConfigured(t *testing.T) {
	t.Parallel()

	h, tg, _ := newTestHandler(t, &fakeLLM{}, nil)
	h.HandleUpdate(context.Background(), textUpdate("/mkdir docs"))
	if got := lastSent(t, tg); got != "Sorry, remote storage isn't configured." {
		t.Fatalf("reply mismatch: got %q", got)
	}
}

func TestSanitizeFolderName(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		args []string
		want string
	}{
		{"none", nil, ""},
		{"spaces", []string{"my", "folder"}, "my_folder"},
		{"special_chars", []string{"a/b", "c:d"}, "ab_cd"},
		{"dots_and_dashes", []string{"v1.2-rc"}, "v1.2-rc"},
		{"only_junk", []string{"///"}, ""},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := SanitizeFolderName(tc.args); got != tc.want {
				t.Fatalf("SanitizeFolderName(%v) = %q, want %q", tc.args, got, tc.want)
			}
		})
	}
}

func TestTextRepliesWithModelAnswerAndLogs(t *testing.T) {
	t.Parallel()

	h, tg, dir := newTestHandler(t, &fakeLLM{text: "Hi there"}, nil)
	h.HandleUpdate(context.Background(), textUpdate("hello"))

	if got := lastSent(t, tg); got != "Hi there" {
		t.Fatalf("reply mismatch: got %q want %q", got, "Hi there")
	}
	tg.mu.Lock()
	actions := append([]string(nil), tg.actions...)
	tg.mu.Unlock()
	if len(actions) != 1 || actions[0] != "typing" {
		t.Fatalf("chat action mismatch: got %v", actions)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "messages.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	line := strings.TrimSpace(string(raw))
	if !strings.Contains(line, "chat:7") || !strings.Contains(line, `category:other text:"hello"`) {
		t.Fatalf("log line mismatch: %q", line)
	}
}

func TestTextLogMirroredToStorage(t *testing.T) {
	t.Parallel()

	up := &fakeUploader{}
	h, _, _ := newTestHandler(t, &fakeLLM{text: "ok"}, up)
	h.HandleUpdate(context.Background(), textUpdate("I like tea"))
	if len(up.uploads) != 1 || up.uploads[0] != "messages.log" {
		t.Fatalf("mirror mismatch: got %v want [messages.log]", up.uploads)
	}
}

func TestTextUpstreamRejectionRepliesApology(t *testing.T) {
	t.Parallel()

	client := &fakeLLM{err: &perplexity.StatusError{Code: http.StatusServiceUnavailable, Body: "down"}}
	h, tg, _ := newTestHandler(t, client, nil)
	h.HandleUpdate(context.Background(), textUpdate("hello"))
	if got := lastSent(t, tg); got != apologyUpstream {
		t.Fatalf("reply mismatch: got %q want %q", got, apologyUpstream)
	}
}

func TestTextTransportFailureRepliesApology(t *testing.T) {
	t.Parallel()

	h, tg, _ := newTestHandler(t, &fakeLLM{err: errors.New("connection refused")}, nil)
	h.HandleUpdate(context.Background(), textUpdate("hello"))
	if got := lastSent(t, tg); got != apologyTransport {
		t.Fatalf("reply mismatch: got %q want %q", got, apologyTransport)
	}
}

func TestTextEmptyAnswerRepliesFallback(t *testing.T) {
	t.Parallel()

	h, tg, _ := newTestHandler(t, &fakeLLM{text: "   "}, nil)
	h.HandleUpdate(context.Background(), textUpdate("hello"))
	if got := lastSent(t, tg); got != emptyAnswerReply {
		t.Fatalf("reply mismatch: got %q want %q", got, emptyAnswerReply)
	}
}

func TestTeacherNameRecallBypassesModel(t *testing.T) {
	t.Parallel()

	client := &fakeLLM{text: "should not be used"}
	h, tg, dir := newTestHandler(t, client, nil)

	lb := memory.NewLogbook(filepath.Join(dir, "messages.log"))
	for _, text := range []string{"my teacher is Smith", "my teacher is Jones"} {
		if err := lb.Append(7, "people", text); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	h.HandleUpdate(context.Background(), textUpdate("What's my teacher's name?"))
	if got := lastSent(t, tg); got != "Your teacher's name is Jones." {
		t.Fatalf("reply mismatch: got %q", got)
	}
	client.mu.Lock()
	calls := client.calls
	client.mu.Unlock()
	if calls != 0 {
		t.Fatalf("model call count mismatch: got %d want 0", calls)
	}
}

func TestTeacherNameUnknown(t *testing.T) {
	t.Parallel()

	h, tg, _ := newTestHandler(t, &fakeLLM{}, nil)
	h.HandleUpdate(context.Background(), textUpdate("what is my teacher's name"))
	if got := lastSent(t, tg); got != "I don't know your teacher's name yet." {
		t.Fatalf("reply mismatch: got %q", got)
	}
}

func TestIsTeacherNameQuestion(t *testing.T) {
	t.Parallel()

	cases := []struct {
		text string
		want bool
	}{
		{"what's my teacher's name?", true},
		{"Whats my teachers name", true},
		{"WHAT IS MY TEACHER'S NAME?!", true},
		{"who is my teacher", false},
		{"my teacher is Smith", false},
	}
	for _, tc := range cases {
		if got := isTeacherNameQuestion(tc.text); got != tc.want {
			t.Fatalf("isTeacherNameQuestion(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestDocumentSavedAndMirrored(t *testing.T) {
	t.Parallel()

	up := &fakeUploader{}
	h, tg, dir := newTestHandler(t, &fakeLLM{}, up)
	upd := telegram.Update{
		UpdateID: 1,
		Message: &telegram.Message{
			MessageID: 42,
			Chat:      &telegram.Chat{ID: 7},
			Document:  &telegram.Document{FileID: "doc-1", FileName: "notes.txt"},
		},
	}
	h.HandleUpdate(context.Background(), upd)

	raw, err := os.ReadFile(filepath.Join(dir, "notes.txt"))
	if err != nil {
		t.Fatalf("read saved file: %v", err)
	}
	if string(raw) != "file-bytes" {
		t.Fatalf("content mismatch: got %q", raw)
	}
	if got := lastSent(t, tg); got != "Saved notes.txt." {
		t.Fatalf("reply mismatch: got %q", got)
	}
	if len(up.uploads) != 1 || up.uploads[0] != "notes.txt" {
		t.Fatalf("mirror mismatch: got %v", up.uploads)
	}
}

func TestDocumentResolveFailureRepliesApologyWithoutLog(t *testing.T) {
	t.Parallel()

	up := &fakeUploader{}
	tg := newTelegramFake(t)
	tg.failGetFile = true
	dir := t.TempDir()
	h := NewHandler(HandlerConfig{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		API:      tg.api(),
		LLM:      &fakeLLM{},
		Logbook:  memory.NewLogbook(filepath.Join(dir, "messages.log")),
		Uploader: up,
		DataDir:  dir,
	})

	upd := telegram.Update{
		UpdateID: 1,
		Message: &telegram.Message{
			MessageID: 42,
			Chat:      &telegram.Chat{ID: 7},
			Document:  &telegram.Document{FileID: "doc-1", FileName: "notes.txt"},
		},
	}
	h.HandleUpdate(context.Background(), upd)

	if got := lastSent(t, tg); got != apologySaveFile {
		t.Fatalf("reply mismatch: got %q want %q", got, apologySaveFile)
	}
	if _, err := os.Stat(filepath.Join(dir, "messages.log")); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected no log file, stat err = %v", err)
	}
	if len(up.uploads) != 0 {
		t.Fatalf("expected no mirror uploads, got %v", up.uploads)
	}
}

func TestPhotoSavesLargestVariant(t *testing.T) {
	t.Parallel()

	h, tg, dir := newTestHandler(t, &fakeLLM{}, nil)
	upd := telegram.Update{
		UpdateID: 1,
		Message: &telegram.Message{
			MessageID: 42,
			Chat:      &telegram.Chat{ID: 7},
			Photo: []telegram.PhotoSize{
				{FileID: "small", Width: 90},
				{FileID: "large", Width: 800},
			},
		},
	}
	h.HandleUpdate(context.Background(), upd)

	tg.mu.Lock()
	fileIDs := append([]string(nil), tg.fileIDs...)
	tg.mu.Unlock()
	if len(fileIDs) != 1 || fileIDs[0] != "large" {
		t.Fatalf("resolved file id mismatch: got %v want [large]", fileIDs)
	}
	want := fmt.Sprintf("photo_%d.jpg", upd.Message.MessageID)
	if _, err := os.Stat(filepath.Join(dir, want)); err != nil {
		t.Fatalf("stat saved photo: %v", err)
	}
	if got := lastSent(t, tg); got != "Saved "+want+"." {
		t.Fatalf("reply mismatch: got %q", got)
	}
}
