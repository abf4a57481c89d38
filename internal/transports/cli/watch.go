package cli

import (
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"hellmfmt/internal/app"
)

func newWatchCmd(e *env) *cobra.Command {
	var (
		interval   time.Duration
		executable string
		timeout    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch [dirs...]",
		Short: "Переформатировать измененные файлы при опросе каталогов",
		RunE: func(cmd *cobra.Command, args []string) error {
			dirs := args
			if len(dirs) == 0 {
				dirs = e.cfg.Watch.Dirs
			}
			if len(dirs) == 0 {
				dirs = []string{"."}
			}
			for i, dir := range dirs {
				abs, err := filepath.Abs(dir)
				if err != nil {
					return err
				}
				dirs[i] = abs
			}
			if interval <= 0 {
				interval = e.cfg.WatchInterval()
			}

			ctx := cmd.Context()
			a, err := e.newApp(ctx, app.Options{StartDir: dirs[0], Executable: executable, Timeout: timeout})
			if err != nil {
				return err
			}
			defer a.Close()
			w := app.NewWatcher(a.LocalService("watch"), a.Registry, dirs, interval, e.logger)
			return w.Run(ctx)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "poll interval (0 = config)")
	cmd.Flags().StringVar(&executable, "executable", "", "formatter executable")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "per-file timeout (0 = config)")
	return cmd
}
