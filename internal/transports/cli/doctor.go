package cli

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"hellmfmt/internal/app"
	"hellmfmt/internal/modules/hellm"
)

type doctorOutput struct {
	hellm.Report
	Providers []string `json:"providers"`
}

func newDoctorCmd(e *env) *cobra.Command {
	var executable string
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Проверить форматтер и окружение",
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

			rep, err := a.Module.Doctor(ctx)
			if err != nil {
				e.logger.Warn("doctor incomplete", "err", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(doctorOutput{Report: rep, Providers: a.Registry.Providers()})
		},
	}
	cmd.Flags().StringVar(&executable, "executable", "", "formatter executable")
	return cmd
}
