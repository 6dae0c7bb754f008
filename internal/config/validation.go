package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate checks struct constraints that apply to every process.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if !strings.HasPrefix(c.Database.DSN, "sqlite://") && !strings.HasPrefix(c.Database.DSN, "postgres://") &&
		!strings.HasPrefix(c.Database.DSN, "postgresql://") {
		return fmt.Errorf("%w: database.dsn must start with sqlite:// or postgres://", ErrValidation)
	}

	for name, task := range c.Scheduler.Tasks {
		if task.Enabled && task.Schedule == "" {
			return fmt.Errorf("%w: scheduler task %q is enabled without a schedule", ErrValidation, name)
		}
	}

	return nil
}

// RequireServe checks the settings the backend API needs.
func (c *Config) RequireServe() error {
	if c.Telegram.WebhookURL != "" && c.Telegram.BotToken == "" {
		return fmt.Errorf("%w: telegram.webhook_url requires telegram.bot_token", ErrValidation)
	}
	if c.Queue.Driver == "memory" && !c.Worker.Embedded {
		return fmt.Errorf("%w: queue.driver memory requires worker.embedded", ErrValidation)
	}
	return nil
}

// RequireWorker checks the settings a standalone worker needs.
func (c *Config) RequireWorker() error {
	if c.Queue.Driver != "redis" {
		return fmt.Errorf("%w: a standalone worker requires queue.driver redis", ErrValidation)
	}
	return nil
}

// RequireListener checks the settings the personal-account listener needs.
func (c *Config) RequireListener() error {
	var missing []string
	if c.Personal.APIID <= 0 {
		missing = append(missing, "personal.api_id")
	}
	if c.Personal.APIHash == "" {
		missing = append(missing, "personal.api_hash")
	}
	if c.Personal.Phone == "" {
		missing = append(missing, "personal.phone")
	}
	if c.Personal.Secret == "" {
		missing = append(missing, "personal.secret")
	}
	if c.Personal.BackendWebhook == "" {
		missing = append(missing, "personal.backend_webhook")
	}
	if c.Personal.HTTPAddr == "" {
		missing = append(missing, "personal.http_addr")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: listener requires %s", ErrValidation, strings.Join(missing, ", "))
	}
	return nil
}
