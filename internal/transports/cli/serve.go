package cli

import (
	"github.com/spf13/cobra"

	"hellmfmt/internal/app"
)

func newServeCmd(e *env) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Запустить HTTP API форматирования (и watch, если заданы каталоги)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen != "" {
				e.cfg.Web.ListenAddr = listen
			}
			ctx := cmd.Context()
			a, err := e.newApp(ctx, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()
			e.logger.Info("hellmfmt serving", "version", e.version, "listen", e.cfg.Web.ListenAddr)
			return a.Serve(ctx)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default from config)")
	return cmd
}
