package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/authgate-io/authgate/internal/api"
	"github.com/authgate-io/authgate/internal/auth"
	"github.com/authgate-io/authgate/internal/domain"
	"github.com/authgate-io/authgate/internal/identity"
	"github.com/authgate-io/authgate/internal/metrics"
	"github.com/authgate-io/authgate/internal/storage/gormstore"
	"github.com/authgate-io/authgate/internal/sweeper"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type config struct {
	httpAddr      string
	dbDriver      string
	dbDSN         string
	logLevel      string
	sweepInterval time.Duration

	globus providerFlags
	google providerFlags
}

// providerFlags is the static configuration of one identity provider as
// given on the command line. A provider with an empty client id is not
// registered.
type providerFlags struct {
	clientID      string
	clientSecret  string
	loginURL      string
	apiURL        string
	imageURL      string
	loginRedirect string
	linkRedirect  string
	custom        []string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config{}

	root := &cobra.Command{
		Use:   "authgate",
		Short: "AuthGate authentication and identity-linking server",
		Long: `AuthGate issues and validates opaque bearer tokens for accounts that
authenticate either by password or through 3rd party OAuth2 identity
providers. Accounts may link multiple provider identities, and
administrators manage roles, tokens and server policy over the REST API.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.AddCommand(newVersionCmd())
	root.AddCommand(newCreateRootCmd(cfg))
	root.AddCommand(newImportUserCmd(cfg))

	fl := root.PersistentFlags()
	fl.StringVar(&cfg.httpAddr, "http-addr", envOrDefault("AUTHGATE_HTTP_ADDR", ":8080"), "HTTP API listen address")
	fl.StringVar(&cfg.dbDriver, "db-driver", envOrDefault("AUTHGATE_DB_DRIVER", "sqlite"), "Database driver (sqlite or postgres)")
	fl.StringVar(&cfg.dbDSN, "db-dsn", envOrDefault("AUTHGATE_DB_DSN", "./authgate.db"), "Database DSN or file path for SQLite")
	fl.StringVar(&cfg.logLevel, "log-level", envOrDefault("AUTHGATE_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	fl.DurationVar(&cfg.sweepInterval, "sweep-interval", 0, "Interval between expired token sweeps (default 5m)")

	addProviderFlags(root, "globus", &cfg.globus, providerFlags{
		loginURL: "https://auth.globus.org",
		apiURL:   "https://auth.globus.org",
		imageURL: "/images/globus.png",
	})
	addProviderFlags(root, "google", &cfg.google, providerFlags{
		loginURL: "https://accounts.google.com",
		apiURL:   "https://www.googleapis.com/oauth2",
		imageURL: "/images/google.png",
	})

	return root
}

func addProviderFlags(root *cobra.Command, name string, dst *providerFlags, defaults providerFlags) {
	env := "AUTHGATE_" + strings.ToUpper(name) + "_"
	fl := root.PersistentFlags()
	fl.StringVar(&dst.clientID, name+"-client-id", envOrDefault(env+"CLIENT_ID", ""), "OAuth2 client id for "+name+" (empty disables the provider)")
	fl.StringVar(&dst.clientSecret, name+"-client-secret", envOrDefault(env+"CLIENT_SECRET", ""), "OAuth2 client secret for "+name)
	fl.StringVar(&dst.loginURL, name+"-login-url", envOrDefault(env+"LOGIN_URL", defaults.loginURL), "Base URL of the "+name+" interactive endpoints")
	fl.StringVar(&dst.apiURL, name+"-api-url", envOrDefault(env+"API_URL", defaults.apiURL), "Base URL of the "+name+" API endpoints")
	fl.StringVar(&dst.imageURL, name+"-image-url", envOrDefault(env+"IMAGE_URL", defaults.imageURL), "URI of the "+name+" display image")
	fl.StringVar(&dst.loginRedirect, name+"-login-redirect-url", envOrDefault(env+"LOGIN_REDIRECT_URL", ""), "Redirect URL for "+name+" login authorizations")
	fl.StringVar(&dst.linkRedirect, name+"-link-redirect-url", envOrDefault(env+"LINK_REDIRECT_URL", ""), "Redirect URL for "+name+" link authorizations")
	fl.StringSliceVar(&dst.custom, name+"-custom", nil, "Custom key=value settings for "+name)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("authgate %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

// newCreateRootCmd creates or resets the root account. The password is read
// from AUTHGATE_ROOT_PASSWORD or, failing that, from stdin.
func newCreateRootCmd(cfg *config) *cobra.Command {
	return &cobra.Command{
		Use:   "create-root",
		Short: "Create the root account or reset its password",
		RunE: func(cmd *cobra.Command, args []string) error {
			pwd := os.Getenv("AUTHGATE_ROOT_PASSWORD")
			if pwd == "" {
				fmt.Fprint(os.Stderr, "root password: ")
				line, err := bufio.NewReader(os.Stdin).ReadString('\n')
				if err != nil {
					return fmt.Errorf("failed to read password: %w", err)
				}
				pwd = strings.TrimRight(line, "\r\n")
			}
			if pwd == "" {
				return fmt.Errorf("a root password is required")
			}
			return withEngine(cmd.Context(), cfg, func(ctx context.Context, a *auth.Authentication) error {
				if err := a.CreateRoot(ctx, []byte(pwd)); err != nil {
					return err
				}
				fmt.Println("root account ready")
				return nil
			})
		},
	}
}

// newImportUserCmd creates an account pre-linked to a provider identity
// without going through the OAuth2 flow, for bulk migration from another
// auth system.
func newImportUserCmd(cfg *config) *cobra.Command {
	var provider, remoteID, username, fullname, email string
	c := &cobra.Command{
		Use:   "import-user <name>",
		Short: "Import an account linked to an existing provider identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := domain.NewUserName(args[0])
			if err != nil {
				return err
			}
			ri, err := domain.NewRemoteIdentity(
				domain.RemoteIdentityID{Provider: provider, ID: remoteID},
				domain.RemoteIdentityDetails{
					Username: username,
					Fullname: fullname,
					Email:    email,
				})
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), cfg, func(ctx context.Context, a *auth.Authentication) error {
				if err := a.ImportUser(ctx, name, ri); err != nil {
					return err
				}
				fmt.Printf("imported %s\n", name.Name())
				return nil
			})
		},
	}
	c.Flags().StringVar(&provider, "provider", "", "Identity provider name")
	c.Flags().StringVar(&remoteID, "remote-id", "", "Provider-local account id")
	c.Flags().StringVar(&username, "username", "", "Provider account user name")
	c.Flags().StringVar(&fullname, "fullname", "", "Provider account full name")
	c.Flags().StringVar(&email, "email", "", "Provider account email")
	_ = c.MarkFlagRequired("provider")
	_ = c.MarkFlagRequired("remote-id")
	return c
}

func run(ctx context.Context, cfg *config) error {
	logger, err := buildLogger(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("starting authgate",
		zap.String("version", version),
		zap.String("http_addr", cfg.httpAddr),
		zap.String("db_driver", cfg.dbDriver),
		zap.String("log_level", cfg.logLevel),
	)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := gormstore.Open(gormstore.Config{
		Driver:   cfg.dbDriver,
		DSN:      cfg.dbDSN,
		Logger:   logger,
		LogLevel: gormLogLevel(cfg.logLevel),
	})
	if err != nil {
		return err
	}
	store := gormstore.New(db)

	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	engine, err := auth.New(ctx, auth.Deps{
		Storage:   store,
		Providers: registry,
		Logger:    logger,
		Metrics:   m,
	})
	if err != nil {
		return err
	}

	sw, err := sweeper.New(store, m, cfg.sweepInterval, logger)
	if err != nil {
		return err
	}
	if err := sw.Start(); err != nil {
		return err
	}
	defer sw.Stop() //nolint:errcheck

	router := api.NewRouter(api.RouterConfig{
		Auth:     engine,
		Logger:   logger,
		Gatherer: prometheus.DefaultGatherer,
	})
	srv := &http.Server{
		Addr:              cfg.httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down authgate")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

// withEngine runs an administrative function against a fully wired engine
// and quiet logging, for the one-shot subcommands.
func withEngine(ctx context.Context, cfg *config,
	fn func(context.Context, *auth.Authentication) error) error {
	logger, err := buildLogger("error")
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := gormstore.Open(gormstore.Config{
		Driver:   cfg.dbDriver,
		DSN:      cfg.dbDSN,
		Logger:   logger,
		LogLevel: gormLogLevel("error"),
	})
	if err != nil {
		return err
	}
	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}
	engine, err := auth.New(ctx, auth.Deps{
		Storage:   gormstore.New(db),
		Providers: registry,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	return fn(ctx, engine)
}

// buildRegistry creates the identity provider registry from the provider
// flags. Providers without a client id are skipped.
func buildRegistry(cfg *config) (*identity.Registry, error) {
	var providers []identity.Provider

	if cfg.globus.clientID != "" {
		pc, err := providerConfig(identity.GlobusName, cfg.globus)
		if err != nil {
			return nil, err
		}
		p, err := identity.NewGlobus(pc)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	if cfg.google.clientID != "" {
		pc, err := providerConfig(identity.GoogleName, cfg.google)
		if err != nil {
			return nil, err
		}
		p, err := identity.NewGoogle(pc)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return identity.NewRegistry(providers...)
}

func providerConfig(name string, fl providerFlags) (identity.Config, error) {
	pc := identity.Config{
		Name:         name,
		ClientID:     fl.clientID,
		ClientSecret: fl.clientSecret,
	}
	for _, u := range []struct {
		dst  **url.URL
		raw  string
		what string
	}{
		{&pc.LoginBaseURL, fl.loginURL, "login url"},
		{&pc.APIBaseURL, fl.apiURL, "api url"},
		{&pc.ImageURI, fl.imageURL, "image url"},
		{&pc.LoginRedirectURL, fl.loginRedirect, "login redirect url"},
		{&pc.LinkRedirectURL, fl.linkRedirect, "link redirect url"},
	} {
		if u.raw == "" {
			return identity.Config{}, fmt.Errorf("%s: %s is required", name, u.what)
		}
		parsed, err := url.Parse(u.raw)
		if err != nil {
			return identity.Config{}, fmt.Errorf("%s: invalid %s: %w", name, u.what, err)
		}
		*u.dst = parsed
	}
	for _, kv := range fl.custom {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return identity.Config{}, fmt.Errorf("%s: invalid custom setting %q, want key=value", name, kv)
		}
		if pc.Custom == nil {
			pc.Custom = map[string]string{}
		}
		pc.Custom[k] = v
	}
	return pc, nil
}

func gormLogLevel(level string) gormlogger.LogLevel {
	if level == "debug" {
		return gormlogger.Info
	}
	return gormlogger.Warn
}

func buildLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config

	switch level {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
