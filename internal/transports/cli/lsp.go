package cli

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"hellmfmt/internal/app"
	"hellmfmt/internal/formatter"
	"hellmfmt/internal/transports/lsp"
)

func newLSPCmd(e *env) *cobra.Command {
	var executable string
	cmd := &cobra.Command{
		Use:   "lsp",
		Short: "Запустить language server (stdio) с textDocument/formatting",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cwd, err := os.Getwd()
			if err != nil {
				return err
			}
			a, err := e.newApp(ctx, app.Options{StartDir: cwd, Executable: executable})
			if err != nil {
				return err
			}
			defer a.Close()

			svc := a.LocalService("lsp")
			srv := lsp.NewServer(cmd.InOrStdin(), cmd.OutOrStdout(), lsp.ServerOptions{
				Format: func(ctx context.Context, req formatter.FormatRequest) formatter.Result {
					return svc.Format(ctx, "", req)
				},
				Executable: executable,
				Version:    e.version,
				Logger:     e.logger.With("transport", "lsp"),
			})
			err = srv.Run(ctx)
			if errors.Is(err, lsp.ErrExit) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&executable, "executable", "", "formatter executable until the client sends hellm.hellmPath")
	return cmd
}
