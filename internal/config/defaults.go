package config

import "time"

// DefaultFallbackModels ranks listed models by provider when ai.fallbacks is empty.
var DefaultFallbackModels = map[string][]string{
	"openai": {"gpt-4o-mini", "gpt-4o", "gpt-4", "gpt-3.5-turbo", "gpt-3.5-turbo-16k"},
	"gemini": {"gemini-2.0-flash", "gemini-1.5-flash", "gemini-1.5-pro"},
}

// DefaultStaticModels is tried in order by provider when the model listing is
// unavailable and ai.fallbacks is empty.
var DefaultStaticModels = map[string][]string{
	"openai": {"gpt-4o-mini", "gpt-4o", "gpt-4", "gpt-3.5-turbo"},
	"gemini": {"gemini-2.0-flash", "gemini-1.5-flash", "gemini-1.5-pro"},
}

const (
	DefaultInstructions = "Open Telegram and send the code `%s` to the Nexa bot. " +
		"Once the bot receives it, your Telegram account will be linked to your Nexa account."
	DefaultConfirmation = "NEXA: Your account has been linked. You can now receive replies from Nexa."
)

var defaults = map[string]any{
	"logger.level":  "info",
	"logger.format": "json",

	"http.addr":             ":8000",
	"http.admin_token":      "",
	"http.cors_origins":     []string{},
	"http.read_timeout":     15 * time.Second,
	"http.write_timeout":    30 * time.Second,
	"http.shutdown_timeout": 10 * time.Second,

	"database.dsn":            "sqlite://nexa.db",
	"database.max_open_conns": 10,

	"queue.driver":         "redis",
	"queue.url":            "redis://localhost:6379/0",
	"queue.name":           "nexa_default",
	"queue.pop_timeout":    5 * time.Second,
	"queue.max_deliveries": 3,

	"worker.concurrency": 4,
	"worker.embedded":    false,

	"telegram.bot_token":      "",
	"telegram.webhook_url":    "",
	"telegram.webhook_secret": "",
	"telegram.send_rate":      25.0,

	"ai.provider":       "openai",
	"ai.api_key":        "",
	"ai.base_url":       "https://api.openai.com/v1",
	"ai.model":          "",
	"ai.fallbacks":      []string{},
	"ai.attempts":       3,
	"ai.backoff":        time.Second,
	"ai.jitter":         time.Second,
	"ai.timeout":        30 * time.Second,
	"ai.max_tokens":     200,
	"ai.max_candidates": 0,

	"linking.code_length":  6,
	"linking.code_ttl":     15 * time.Minute,
	"linking.instructions": DefaultInstructions,
	"linking.confirmation": DefaultConfirmation,

	"personal.api_id":          0,
	"personal.api_hash":        "",
	"personal.phone":           "",
	"personal.password":        "",
	"personal.session_path":    "nexa.session",
	"personal.backend_webhook": "http://127.0.0.1:8000/connectors/personal/webhook",
	"personal.backend_secret":  "",
	"personal.http_addr":       "127.0.0.1:9000",
	"personal.secret":          "",
	"personal.listener_url":    "",
	"personal.forward_timeout": 10 * time.Second,
	"personal.forward_step":    1500 * time.Millisecond,
	"personal.forward_tries":   3,
	"personal.queue_size":      256,

	"scheduler.redispatch_after": 10 * time.Minute,
	"scheduler.redispatch_batch": 100,
	"scheduler.tasks": map[string]any{
		"redispatch_unprocessed": map[string]any{"enabled": true, "schedule": "0 */5 * * * *"},
		"sql_maintenance":        map[string]any{"enabled": true, "schedule": "0 0 3 * * *"},
	},
}
