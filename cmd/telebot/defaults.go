package main

import (
	"time"

	"github.com/spf13/viper"
)

func initViperDefaults() {
	// LLM defaults (Perplexity chat completions).
	viper.SetDefault("llm.endpoint", "https://api.perplexity.ai")
	viper.SetDefault("llm.model", "sonar")
	viper.SetDefault("llm.api_key", "")
	viper.SetDefault("llm.system_prompt", "You are a helpful Telegram assistant.")
	viper.SetDefault("llm.request_timeout", 90*time.Second)

	// Webhook server
	viper.SetDefault("server.bind", "0.0.0.0")
	viper.SetDefault("server.port", 3000)
	viper.SetDefault("server.url", "")

	// Telegram
	viper.SetDefault("telegram.bot_token", "")
	viper.SetDefault("telegram.max_file_bytes", int64(20*1024*1024))

	// Local persistence
	viper.SetDefault("data_dir", "./data")

	// Remote mirror: empty backend disables mirroring entirely.
	viper.SetDefault("storage.backend", "")
	viper.SetDefault("storage.folder", "telebot")
	viper.SetDefault("storage.graph.tenant_id", "")
	viper.SetDefault("storage.graph.client_id", "")
	viper.SetDefault("storage.graph.client_secret", "")
	viper.SetDefault("storage.graph.user_id", "")
	viper.SetDefault("storage.s3.endpoint", "")
	viper.SetDefault("storage.s3.access_key_id", "")
	viper.SetDefault("storage.s3.secret_access_key", "")
	viper.SetDefault("storage.s3.bucket", "")
	viper.SetDefault("storage.s3.use_ssl", true)
}
