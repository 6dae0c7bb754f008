package main

import (
	"context"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/edgard/nexa/internal/api"
	"github.com/edgard/nexa/internal/app"
	"github.com/edgard/nexa/internal/personal"
)

func listenerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "listener",
		Short: "Run the personal-account listener",
		Long:  "Logs in as a Telegram user, forwards incoming messages to the backend personal webhook and serves /send_reply for operator replies.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runListener(cmd.Context())
		},
	}
}

func runListener(ctx context.Context) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	if err := cfg.RequireListener(); err != nil {
		return err
	}
	pc := cfg.Personal

	forwarder := personal.NewForwarder(personal.ForwarderConfig{
		URL:       pc.BackendWebhook,
		Secret:    pc.BackendSecret,
		Timeout:   pc.ForwardTimeout,
		Step:      pc.ForwardStep,
		Attempts:  pc.ForwardTries,
		QueueSize: pc.QueueSize,
	}, log, nil)

	listener := personal.NewListener(personal.ListenerConfig{
		APIID:       pc.APIID,
		APIHash:     pc.APIHash,
		Phone:       pc.Phone,
		Password:    pc.Password,
		SessionPath: pc.SessionPath,
	}, forwarder.Enqueue, log)

	srv := &http.Server{
		Addr:         pc.HTTPAddr,
		Handler:      personal.NewRouter(listener, pc.Secret, log),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return app.Run(ctx, log,
		app.Component{Name: "session", Run: listener.Run},
		app.Component{Name: "forwarder", Run: forwarder.Run},
		app.Component{Name: "http", Run: func(ctx context.Context) error {
			return api.ListenAndServe(ctx, srv, cfg.HTTP.ShutdownTimeout, log)
		}},
	)
}
