package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"studycal/internal/api"
	"studycal/internal/config"
	"studycal/internal/credstore"
	applog "studycal/internal/log"
	"studycal/internal/planner"
	"studycal/internal/session"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "studycal",
		Short:         "Student planner client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "Path to config file")

	root.AddCommand(newLoginCmd(&configPath))
	root.AddCommand(newRegisterCmd(&configPath))
	root.AddCommand(newLogoutCmd(&configPath))
	root.AddCommand(newProfileCmd(&configPath))
	root.AddCommand(newCalendarCmd(&configPath))
	root.AddCommand(newSyncCmd(&configPath))
	root.AddCommand(newExportCmd(&configPath))
	root.AddCommand(newServeCmd(&configPath))
	return root
}

func defaultConfigPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".studycal", "config.yaml")
	}
	return filepath.Join(base, "studycal", "config.yaml")
}

// app bundles the explicitly constructed services the commands share.
// Everything is wired here and passed down; nothing is looked up globally.
type app struct {
	cfg      *config.Config
	sessions *session.Manager
	gateway  *api.Client
	planner  *planner.Planner
}

func loadApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	applog.SetLevel(cfg.LogLevel)

	sessions := session.NewManager(credstore.New(cfg.CredentialsFile))
	sessions.Subscribe(stderrNotifier{})

	gateway := api.NewClient(cfg.BaseURL, cfg.RequestTimeout(), sessions)

	return &app{
		cfg:      cfg,
		sessions: sessions,
		gateway:  gateway,
		planner:  planner.New(gateway, sessions),
	}, nil
}

// currentUser returns the signed-in user's ID or an actionable error.
func (a *app) currentUser() (string, error) {
	creds, ok := a.sessions.Credentials()
	if !ok {
		return "", errors.New("not signed in; run 'studycal login' first")
	}
	return creds.UserID, nil
}

// stderrNotifier surfaces session events on stderr. It is the CLI stand-in
// for the web client's toast notifications.
type stderrNotifier struct{}

func (stderrNotifier) Notify(ev session.Event) {
	switch ev.Kind {
	case session.EventSessionInvalid:
		fmt.Fprintf(os.Stderr, "session invalid: %s — please sign in again\n", ev.Message)
	default:
		applog.Debug("session event", "kind", string(ev.Kind), "message", ev.Message)
	}
}
