package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"cipherchat/internal/app"
	"cipherchat/internal/domain"
)

var (
	cfgPath    string
	home       string
	apiURL     string
	wsURL      string
	token      string
	userID     int64
	passphrase string
	logLevel   string
	storeKind  string

	appCtx *app.Wire
)

// Execute runs the cipherchat command line.
func Execute() error {
	return run(context.Background(), newRootCmd())
}

// run executes root and closes whatever graph the command built, including
// when the command failed.
func run(ctx context.Context, root *cobra.Command) error {
	appCtx = nil
	err := root.ExecuteContext(ctx)
	if appCtx != nil {
		err = errors.Join(err, appCtx.Close())
		appCtx = nil
	}
	return err
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "cipherchat",
		Short:        "End-to-end encrypted chat client",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if home == "" {
				dir, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				home = filepath.Join(dir, ".cipherchat")
			}
			if err := os.MkdirAll(home, 0o700); err != nil {
				return err
			}
			if cfgPath == "" {
				cfgPath = filepath.Join(home, "config.yaml")
			}

			cfg, err := app.Load(cfgPath)
			if err != nil {
				return err
			}
			cfg.Home = home
			applyFlags(cmd, &cfg)

			appCtx, err = app.NewWire(cfg)
			return err
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfgPath, "config", "", "config file (default <home>/config.yaml)")
	pf.StringVar(&home, "home", "", "config dir (default ~/.cipherchat)")
	pf.StringVar(&apiURL, "api", "", "REST base URL (e.g. http://127.0.0.1:8080)")
	pf.StringVar(&wsURL, "ws", "", "WebSocket base URL (e.g. ws://127.0.0.1:8080)")
	pf.StringVar(&token, "token", "", "bearer token")
	pf.Int64Var(&userID, "user", 0, "your user id")
	pf.StringVarP(&passphrase, "passphrase", "p", "", "passphrase sealing the local store")
	pf.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&storeKind, "store", "", "local store driver (file, sqlite or memory)")

	root.AddCommand(
		loginCmd(),
		whoamiCmd(),
		keysCmd(),
		sendCmd(),
		listenCmd(),
		chatCmd(),
		recallCmd(),
		logoutCmd(),
	)
	return root
}

// applyFlags overrides config values with the flags the user set.
func applyFlags(cmd *cobra.Command, cfg *app.Config) {
	flags := cmd.Flags()
	if flags.Changed("api") {
		cfg.Server.API = apiURL
	}
	if flags.Changed("ws") {
		cfg.Server.WS = wsURL
	}
	if flags.Changed("token") {
		cfg.Account.Token = token
	}
	if flags.Changed("user") {
		cfg.Account.UserID = userID
	}
	if flags.Changed("passphrase") {
		cfg.Storage.Passphrase = passphrase
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("store") {
		cfg.Storage.Driver = storeKind
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func parsePeer(s string) (domain.UserID, error) {
	id, err := domain.ParseUserID(s)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid peer id %q", s)
	}
	return id, nil
}
