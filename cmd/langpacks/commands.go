package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"langpacks/config"
	"langpacks/internal/app"
	"langpacks/internal/logging"
	"langpacks/internal/project"
	"langpacks/internal/version"
)

type rootOptions struct {
	configFile string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "langpacks",
		Short: "Translation package updater for plugins and themes",
		Long: `langpacks fetches translation catalogs from a CDN, works out which locales
need refreshing compared with what is installed, and downloads and unpacks the
translation packages.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate("{{.Version}}\n")

	root.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "Path to configuration file (default config.yaml when present, or LANGPACKS_CONFIG_FILE)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override log.level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "Override log.format (auto, text, json)")

	root.AddCommand(
		newCheckCmd(opts),
		newInstallCmd(opts),
		newRefreshCmd(opts),
		newServeCmd(opts),
		newVersionCmd(),
	)
	return root
}

// load reads configuration, installs the default logger and builds the app.
func (o *rootOptions) load(ctx context.Context) (*app.App, error) {
	path := o.configFile
	if path == "" {
		path = os.Getenv("LANGPACKS_CONFIG_FILE")
	}
	result, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	cfg := result.Config
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}
	logger := logging.New(os.Stderr, cfg.Log.Format, cfg.Log.Level)
	slog.SetDefault(logger)

	return app.New(ctx, app.Config{AppConfig: result, Logger: logger})
}

func shutdown(a *app.App) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		slog.Error("shutdown failed", "error", err)
	}
}

func newCheckCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "List translation packages that need installing or updating",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}
			defer shutdown(a)

			updates := a.Updater().CheckUpdates(cmd.Context())
			return writeJSON(cmd.OutOrStdout(), map[string]any{"translations": updates})
		},
	}
}

func newInstallCmd(opts *rootOptions) *cobra.Command {
	var locale string
	cmd := &cobra.Command{
		Use:   "install [type/slug...]",
		Short: "Install translations for the named projects, or all registered projects",
		Example: `  langpacks install
  langpacks install plugin/acme-forms --locale de_DE`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}
			defer shutdown(a)

			ids, err := projectIDs(a, args)
			if err != nil {
				return err
			}
			var failed []string
			for _, id := range ids {
				ok, err := a.Updater().Install(cmd.Context(), id, locale)
				if err != nil {
					return err
				}
				status := "installed"
				if !ok {
					status = "failed"
					failed = append(failed, id)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", id, status)
			}
			if len(failed) > 0 {
				return fmt.Errorf("install failed for %s", strings.Join(failed, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&locale, "locale", "l", "", "Locale to install (default: the site locale)")
	return cmd
}

func newRefreshCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh [type/slug...]",
		Short: "Drop cached catalogs and fetch them again",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}
			defer shutdown(a)

			ids, err := projectIDs(a, args)
			if err != nil {
				return err
			}
			var failed []string
			for _, id := range ids {
				ok, err := a.Updater().Refresh(cmd.Context(), id)
				if err != nil {
					return err
				}
				status := "refreshed"
				if !ok {
					status = "empty"
					failed = append(failed, id)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", id, status)
			}
			if len(failed) > 0 {
				return fmt.Errorf("catalog fetch returned no data for %s", strings.Join(failed, ", "))
			}
			return nil
		},
	}
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP admin API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := opts.load(ctx)
			if err != nil {
				return err
			}
			slog.Info("starting langpacks",
				"version", version.Version,
				"commit", version.Commit,
				"build_date", version.Date,
			)

			go func() {
				<-ctx.Done()
				shutdown(a)
			}()

			if port == "" {
				port = a.Config().Server.Port
			}
			return a.Start(":" + port)
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", "Listen port (default: server.port)")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Info())
		},
	}
}

// projectIDs turns "type/slug" arguments into registry ids; no arguments means
// every registered project.
func projectIDs(a *app.App, args []string) ([]string, error) {
	if len(args) == 0 {
		var ids []string
		for _, p := range a.Updater().Projects() {
			ids = append(ids, p.ID())
		}
		return ids, nil
	}
	ids := make([]string, 0, len(args))
	for _, arg := range args {
		typ, slug, ok := strings.Cut(arg, "/")
		if !ok || typ == "" || slug == "" {
			return nil, fmt.Errorf("invalid project %q, expected type/slug", arg)
		}
		ids = append(ids, project.ID(typ, slug))
	}
	return ids, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
