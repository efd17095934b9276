package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"studycal/internal/cache"
	"studycal/internal/calendar"
	"studycal/internal/daemon"
	"studycal/internal/export"
	applog "studycal/internal/log"
	"studycal/internal/model"
	"studycal/internal/render"
)

func newLoginCmd(configPath *string) *cobra.Command {
	var email, password string
	var remember bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the planner API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("remember") {
				remember = a.cfg.RememberDefault
			}
			if email == "" {
				return errors.New("--email is required")
			}
			if password == "" {
				password, err = promptPassword("Password: ")
				if err != nil {
					return err
				}
			}

			res := a.gateway.Login(cmd.Context(), email, password, remember)
			if !res.OK() {
				printFieldErrors(res.FieldErrors)
				return fmt.Errorf("login failed: %s", res.Message)
			}

			user, _ := a.currentUser()
			fmt.Printf("Signed in as %s\n", user)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password (prompted when omitted)")
	cmd.Flags().BoolVar(&remember, "remember", false, "Persist the session across restarts")
	return cmd
}

func newRegisterCmd(configPath *string) *cobra.Command {
	var reg model.Registration
	var remember bool

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("remember") {
				remember = a.cfg.RememberDefault
			}
			if reg.Email == "" {
				return errors.New("--email is required")
			}
			if reg.Password == "" {
				reg.Password, err = promptPassword("Password: ")
				if err != nil {
					return err
				}
				confirm, err := promptPassword("Confirm password: ")
				if err != nil {
					return err
				}
				if reg.Password != confirm {
					return errors.New("passwords do not match")
				}
			}

			res := a.gateway.Register(cmd.Context(), reg, remember)
			if !res.OK() {
				printFieldErrors(res.FieldErrors)
				return fmt.Errorf("registration failed: %s", res.Message)
			}

			user, _ := a.currentUser()
			fmt.Printf("Registered and signed in as %s\n", user)
			return nil
		},
	}
	cmd.Flags().StringVar(&reg.Email, "email", "", "Account email")
	cmd.Flags().StringVar(&reg.Password, "password", "", "Account password (prompted when omitted)")
	cmd.Flags().StringVar(&reg.FirstName, "first-name", "", "First name")
	cmd.Flags().StringVar(&reg.LastName, "last-name", "", "Last name")
	cmd.Flags().StringVar(&reg.PhoneNumber, "phone", "", "Phone number")
	cmd.Flags().StringVar(&reg.StudyLevel, "study-level", "", "Study level")
	cmd.Flags().BoolVar(&remember, "remember", false, "Persist the session across restarts")
	return cmd
}

func newLogoutCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Drop the session and the remembered credentials",
		RunE: func(_ *cobra.Command, _ []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			a.sessions.Clear()
			fmt.Println("Signed out")
			return nil
		},
	}
}

func newProfileCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Show the signed-in user's profile",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			user, err := a.currentUser()
			if err != nil {
				return err
			}

			profile, err := a.planner.Profile(cmd.Context(), user)
			if err != nil {
				return err
			}

			fmt.Printf("%s %s <%s>\n", profile.FirstName, profile.LastName, profile.Email)
			fmt.Printf("Study level: %s\n", profile.StudyLevel)
			fmt.Printf("Phone:       %s\n", profile.PhoneNumber)
			fmt.Printf("Registered:  %s\n", profile.RegisterDate)
			return nil
		},
	}
}

func newCalendarCmd(configPath *string) *cobra.Command {
	var monthFlag string
	var offline bool

	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Render the month grid with scheduled activities",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			user, err := a.currentUser()
			if err != nil {
				return err
			}

			loc := a.cfg.Location()
			ref := time.Now().In(loc)
			if monthFlag != "" {
				parsed, err := time.ParseInLocation("2006-01", monthFlag, loc)
				if err != nil {
					return fmt.Errorf("bad --month %q, want YYYY-MM", monthFlag)
				}
				ref = parsed
			}

			entries, err := loadActivities(cmd.Context(), a, user, offline)
			if err != nil {
				return err
			}

			grid := calendar.BuildGrid(ref, a.cfg.WeekStartDay(), flatten(entries), loc)
			fmt.Print(render.Month(grid))
			return nil
		},
	}
	cmd.Flags().StringVar(&monthFlag, "month", "", "Month to display as YYYY-MM (default: current)")
	cmd.Flags().BoolVar(&offline, "offline", false, "Use the local cache instead of the network")
	return cmd
}

func newSyncCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Refresh the session and mirror activities into the local cache",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			user, err := a.currentUser()
			if err != nil {
				return err
			}
			return syncOnce(cmd.Context(), a, user)
		},
	}
}

func newExportCmd(configPath *string) *cobra.Command {
	var out string
	var offline bool

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export activities as an iCalendar file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			user, err := a.currentUser()
			if err != nil {
				return err
			}

			entries, err := loadActivities(cmd.Context(), a, user, offline)
			if err != nil {
				return err
			}

			w := os.Stdout
			if out != "" {
				f, err := os.OpenFile(out, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return export.WriteICS(w, flatten(entries), a.cfg.Location())
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "Write to file instead of stdout")
	cmd.Flags().BoolVar(&offline, "offline", false, "Use the local cache instead of the network")
	return cmd
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Keep the session fresh and the cache synced on a schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			user, err := a.currentUser()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runServe(ctx, a, user)
		},
	}
}

// syncOnce runs one refresh-and-mirror cycle.
func syncOnce(ctx context.Context, a *app, user string) error {
	entries, err := a.planner.Activities(ctx, user)
	if err != nil {
		return err
	}

	db, err := cache.Open(a.cfg.CacheDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.ReplaceActivities(ctx, user, entries); err != nil {
		return err
	}
	applog.Info("cache synced", "user_id", user, "activities", len(entries))
	return nil
}

// loadActivities fetches from the network (mirroring into the cache as a
// side effect) or reads the cache when offline is requested.
func loadActivities(ctx context.Context, a *app, user string, offline bool) ([]model.ActivityWithTasks, error) {
	db, err := cache.Open(a.cfg.CacheDSN)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	if offline {
		entries, err := db.Activities(ctx, user)
		if err != nil {
			return nil, err
		}
		if synced, ok, _ := db.LastSync(ctx, user); ok {
			applog.Info("using offline cache", "last_sync", synced.Format(time.RFC3339))
		} else {
			applog.Warn("offline cache has never been synced", "user_id", user)
		}
		return entries, nil
	}

	entries, err := a.planner.Activities(ctx, user)
	if err != nil {
		return nil, err
	}
	if err := db.ReplaceActivities(ctx, user, entries); err != nil {
		// The mirror is a convenience; the fetched data is still good.
		applog.Warn("cache update failed", "err", err)
	}
	return entries, nil
}

func runServe(ctx context.Context, a *app, user string) error {
	return daemon.Run(ctx, a.cfg.SyncCron, func(ctx context.Context) {
		if err := syncOnce(ctx, a, user); err != nil {
			applog.Error("sync cycle failed", err, "user_id", user)
		}
	})
}

func flatten(entries []model.ActivityWithTasks) []model.Activity {
	out := make([]model.Activity, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Activity)
	}
	return out
}

func printFieldErrors(fields map[string]string) {
	for field, msg := range fields {
		fmt.Fprintf(os.Stderr, "  %s: %s\n", field, msg)
	}
}

func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	pw := strings.TrimSpace(string(raw))
	if pw == "" {
		return "", errors.New("password must not be empty")
	}
	return pw, nil
}
