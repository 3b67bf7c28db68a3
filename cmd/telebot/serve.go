package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/rites-dev/perplexity-tele-bot/bot"
	"github.com/rites-dev/perplexity-tele-bot/internal/fsstore"
	"github.com/rites-dev/perplexity-tele-bot/internal/logutil"
	"github.com/rites-dev/perplexity-tele-bot/internal/telegram"
	"github.com/rites-dev/perplexity-tele-bot/memory"
	"github.com/rites-dev/perplexity-tele-bot/providers/perplexity"
	"github.com/rites-dev/perplexity-tele-bot/storage"
	"github.com/rites-dev/perplexity-tele-bot/storage/graph"
	"github.com/rites-dev/perplexity-tele-bot/storage/s3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram webhook server",
		RunE: func(cmd *cobra.Command, args []string) error {
			token := strings.TrimSpace(flagOrViperString(cmd, "telegram-bot-token", "telegram.bot_token"))
			if token == "" {
				return fmt.Errorf("missing telegram.bot_token (set via --telegram-bot-token or TELEBOT_TELEGRAM_BOT_TOKEN)")
			}
			apiKey := strings.TrimSpace(flagOrViperString(cmd, "llm-api-key", "llm.api_key"))
			if apiKey == "" {
				return fmt.Errorf("missing llm.api_key (set via --llm-api-key or TELEBOT_LLM_API_KEY)")
			}
			serverURL := strings.TrimSpace(flagOrViperString(cmd, "server-url", "server.url"))
			if serverURL == "" {
				return fmt.Errorf("missing server.url (set via --server-url or TELEBOT_SERVER_URL)")
			}
			serverURL = strings.TrimRight(serverURL, "/")

			bind := strings.TrimSpace(flagOrViperString(cmd, "server-bind", "server.bind"))
			if bind == "" {
				bind = "0.0.0.0"
			}
			port := flagOrViperInt(cmd, "server-port", "server.port")
			if port <= 0 {
				port = 3000
			}

			logger, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			logger.Info("config_loaded",
				"bot_token_present", token != "",
				"llm_api_key_present", apiKey != "",
				"server_url", serverURL,
			)

			dataDir := strings.TrimSpace(flagOrViperString(cmd, "data-dir", "data_dir"))
			if dataDir == "" {
				dataDir = "./data"
			}
			if err := fsstore.EnsureDir(dataDir, 0); err != nil {
				return fmt.Errorf("data dir: %w", err)
			}

			client := perplexity.New(flagOrViperString(cmd, "llm-endpoint", "llm.endpoint"), apiKey)
			if timeout := flagOrViperDuration(cmd, "llm-request-timeout", "llm.request_timeout"); timeout > 0 {
				client.HTTP.Timeout = timeout
			}

			api := telegram.NewAPI(nil, "", token)

			uploader, err := uploaderFromViper()
			if err != nil {
				return err
			}

			handler := bot.NewHandler(bot.HandlerConfig{
				Logger:       logger,
				API:          api,
				LLM:          client,
				Logbook:      memory.NewLogbook(filepath.Join(dataDir, "messages.log")),
				Uploader:     uploader,
				DataDir:      dataDir,
				Model:        flagOrViperString(cmd, "llm-model", "llm.model"),
				SystemPrompt: viper.GetString("llm.system_prompt"),
			})
			srv := bot.NewServer(logger, handler, token, dataDir)

			startupCtx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if me, err := api.GetMe(startupCtx); err != nil {
				logger.Warn("telegram_get_me_error", "error", err.Error())
			} else {
				logger.Info("telegram_identity", "username", me.Username, "bot_id", me.ID)
			}
			webhookURL := serverURL + "/webhook/" + token
			if err := api.SetWebhook(startupCtx, webhookURL); err != nil {
				logger.Warn("telegram_set_webhook_error", "error", err.Error())
			} else {
				logger.Info("telegram_webhook_set", "url", serverURL+"/webhook/<token>")
			}

			addr := fmt.Sprintf("%s:%d", bind, port)
			logger.Info("server_listening", "addr", addr)
			httpSrv := &http.Server{
				Addr:              addr,
				Handler:           srv.Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			return httpSrv.ListenAndServe()
		},
	}

	cmd.Flags().String("server-bind", "", "Bind address (default 0.0.0.0).")
	cmd.Flags().Int("server-port", 0, "Listen port (default 3000).")
	cmd.Flags().String("server-url", "", "Public base URL the webhook is registered under.")
	cmd.Flags().String("telegram-bot-token", "", "Telegram bot token.")
	cmd.Flags().String("llm-endpoint", "", "Completion API endpoint.")
	cmd.Flags().String("llm-api-key", "", "Completion API key.")
	cmd.Flags().String("llm-model", "", "Completion model (default sonar).")
	cmd.Flags().Duration("llm-request-timeout", 0, "Completion request timeout.")
	cmd.Flags().String("data-dir", "", "Directory for saved files and the message log.")

	return cmd
}

// uploaderFromViper builds the optional remote mirror. An empty backend means
// mirroring is off and the handler runs with a nil uploader.
func uploaderFromViper() (storage.Uploader, error) {
	backend := strings.ToLower(strings.TrimSpace(viper.GetString("storage.backend")))
	folder := viper.GetString("storage.folder")
	switch backend {
	case "":
		return nil, nil
	case "graph":
		return graph.New(graph.Config{
			TenantID:     viper.GetString("storage.graph.tenant_id"),
			ClientID:     viper.GetString("storage.graph.client_id"),
			ClientSecret: viper.GetString("storage.graph.client_secret"),
			UserID:       viper.GetString("storage.graph.user_id"),
			Folder:       folder,
		})
	case "s3":
		return s3.New(s3.Config{
			Endpoint:        viper.GetString("storage.s3.endpoint"),
			AccessKeyID:     viper.GetString("storage.s3.access_key_id"),
			SecretAccessKey: viper.GetString("storage.s3.secret_access_key"),
			Bucket:          viper.GetString("storage.s3.bucket"),
			Folder:          folder,
			UseSSL:          viper.GetBool("storage.s3.use_ssl"),
		})
	default:
		return nil, fmt.Errorf("unknown storage.backend: %s", backend)
	}
}
