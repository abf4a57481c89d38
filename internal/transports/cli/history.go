package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"hellmfmt/internal/app"
	"hellmfmt/internal/storage"
)

func newHistoryCmd(e *env) *cobra.Command {
	var (
		limit  int
		path   string
		since  time.Duration
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Показать историю запросов форматирования",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !e.cfg.SQLite.Enabled {
				return errors.New("history is disabled: set sqlite.enabled in config")
			}
			ctx := cmd.Context()
			a, err := e.newApp(ctx, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			q := storage.HistoryQuery{Limit: limit}
			if path != "" {
				abs, err := filepath.Abs(path)
				if err != nil {
					return err
				}
				q.Path = abs
			}
			if since > 0 {
				q.From = time.Now().Add(-since)
			}
			items, err := queryHistory(ctx, a.Store, q)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(items)
			}
			return printHistory(e, cmd, items)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max records")
	cmd.Flags().StringVar(&path, "path", "", "only records for this file")
	cmd.Flags().DurationVar(&since, "since", 0, "only records newer than this")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

// queryHistory выбирает записи; последняя запись по файлу берется по индексу
// напрямую.
func queryHistory(ctx context.Context, st storage.Store, q storage.HistoryQuery) ([]storage.HistoryRecord, error) {
	if q.Path == "" || q.Limit != 1 || !q.From.IsZero() {
		return st.QueryHistory(ctx, q)
	}
	rec, err := st.LatestForPath(ctx, q.Path)
	if errors.Is(err, storage.ErrNotFound) {
		return []storage.HistoryRecord{}, nil
	}
	if err != nil {
		return nil, err
	}
	return []storage.HistoryRecord{rec}, nil
}

func printHistory(e *env, cmd *cobra.Command, items []storage.HistoryRecord) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSOURCE\tSTATUS\tKIND\tDURATION\tPATH")
	okColor := e.paint(color.FgGreen)
	errColor := e.paint(color.FgRed)
	for _, rec := range items {
		status := rec.Status
		if rec.Status == "ok" {
			status = okColor.Sprint(status)
		} else {
			status = errColor.Sprint(status)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.TS.Local().Format(time.DateTime),
			rec.Source,
			status,
			orDash(rec.ErrorKind),
			rec.Duration.Round(time.Millisecond),
			rec.Path,
		)
	}
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
