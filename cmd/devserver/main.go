package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"cipherchat/internal/devserver"
	"cipherchat/internal/domain"
	"cipherchat/internal/logging"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		addr      string
		logLevel  string
		logFormat string
		users     map[string]string
	)
	cmd := &cobra.Command{
		Use:          "devserver",
		Short:        "Run the in-memory chat backend",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New(logLevel, logFormat)
			if err != nil {
				return err
			}
			log := logging.Component(logger, "devserver")

			srv := devserver.New(log, nil)
			for id, name := range users {
				uid, err := domain.ParseUserID(id)
				if err != nil {
					return err
				}
				srv.AddUser(uid, name)
			}

			hs := &http.Server{
				Addr:              addr,
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Close()
				_ = hs.Shutdown(shutdown)
			}()

			log.WithField("addr", addr).Info("listening")
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&logFormat, "log-format", "text", "log format (text or json)")
	cmd.Flags().StringToStringVar(&users, "user", nil, "pre-register users as id=name (repeatable)")
	return cmd
}
