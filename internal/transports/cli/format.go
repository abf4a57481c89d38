package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"hellmfmt/internal/app"
	"hellmfmt/internal/core"
	"hellmfmt/internal/formatter"
)

type formatOptions struct {
	write      bool
	check      bool
	jobs       int
	timeout    time.Duration
	executable string
	workdir    string
	provider   string
}

func newFormatCmd(e *env) *cobra.Command {
	var o formatOptions
	cmd := &cobra.Command{
		Use:   "format <paths...>",
		Short: "Отформатировать файлы или каталоги",
		Long: "Запускает `hellm parse <file>` для каждого файла. Один файл без флагов\n" +
			"печатается в stdout; каталоги обходятся рекурсивно.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFormat(cmd, e, o, args)
		},
	}
	f := cmd.Flags()
	f.BoolVarP(&o.write, "write", "w", false, "rewrite files whose formatting differs")
	f.BoolVar(&o.check, "check", false, "list unformatted files and exit non-zero")
	f.IntVarP(&o.jobs, "jobs", "j", 0, "formatter processes in parallel (0 = config or GOMAXPROCS)")
	f.DurationVar(&o.timeout, "timeout", 0, "per-file timeout (0 = config or hellm.toml)")
	f.StringVar(&o.executable, "executable", "", "formatter executable (default from config or hellm.toml)")
	f.StringVar(&o.workdir, "workdir", "", "working directory for the formatter (default: hellm.toml root)")
	f.StringVar(&o.provider, "provider", "", "format explicit files with this module regardless of extension")
	cmd.MarkFlagsMutuallyExclusive("write", "check")
	return cmd
}

func runFormat(cmd *cobra.Command, e *env, o formatOptions, args []string) error {
	ctx := cmd.Context()
	startDir := o.workdir
	if startDir == "" {
		abs, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		startDir = abs
		if info, err := os.Stat(abs); err != nil || !info.IsDir() {
			startDir = filepath.Dir(abs)
		}
	}

	a, err := e.newApp(ctx, app.Options{StartDir: startDir, Executable: o.executable, Timeout: o.timeout})
	if err != nil {
		return err
	}
	defer a.Close()

	files, err := expandPaths(args, a.Registry)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.New("no HeLLM files found")
	}
	workDir := o.workdir
	if workDir == "" {
		workDir = a.WorkingDir()
	}
	reqs := make([]formatter.FormatRequest, 0, len(files))
	for _, path := range files {
		reqs = append(reqs, formatter.FormatRequest{FilePath: path, WorkingDir: workDir})
	}
	svc := a.LocalService("cli")
	if o.provider != "" {
		if !slices.Contains(a.Registry.Providers(), o.provider) {
			return fmt.Errorf("unknown provider %q (available: %s)", o.provider, strings.Join(a.Registry.Providers(), ", "))
		}
		svc.Formatter = pinnedFormatter{registry: a.Registry, name: o.provider}
	}
	errColor := e.paint(color.FgRed, color.Bold)

	if !o.write && !o.check {
		if len(reqs) > 1 {
			return errors.New("formatting several files requires --write or --check")
		}
		res := svc.Format(ctx, "", reqs[0])
		if !res.OK() {
			errColor.Fprint(cmd.ErrOrStderr(), "error")
			fmt.Fprintf(cmd.ErrOrStderr(), ": %s: %s\n", reqs[0].FilePath, formatter.UserMessage(res.Err))
			return fmt.Errorf("%w: %w", ErrReported, res.Err)
		}
		_, err := fmt.Fprint(cmd.OutOrStdout(), res.Text)
		return err
	}

	jobs := o.jobs
	if jobs <= 0 {
		jobs = e.cfg.Formatter.Jobs
	}
	outcomes, batchErr := svc.FormatAll(ctx, "", reqs, jobs)

	okColor := e.paint(color.FgGreen)
	warnColor := e.paint(color.FgYellow)
	var changed, failed int
	for _, oc := range outcomes {
		if !oc.Result.OK() {
			failed++
			errColor.Fprint(cmd.ErrOrStderr(), "error")
			fmt.Fprintf(cmd.ErrOrStderr(), ": %s: %s\n", oc.Path, formatter.UserMessage(oc.Result.Err))
			continue
		}
		original, err := os.ReadFile(oc.Path) // #nosec G304 -- путь передан пользователем.
		if err != nil {
			failed++
			errColor.Fprint(cmd.ErrOrStderr(), "error")
			fmt.Fprintf(cmd.ErrOrStderr(), ": %s: %v\n", oc.Path, err)
			continue
		}
		if string(original) == oc.Result.Text {
			continue
		}
		changed++
		if o.check {
			warnColor.Fprint(cmd.OutOrStdout(), "unformatted")
			fmt.Fprintf(cmd.OutOrStdout(), " %s\n", oc.Path)
			continue
		}
		if err := app.WriteFormatted(oc.Path, oc.Result.Text); err != nil {
			failed++
			errColor.Fprint(cmd.ErrOrStderr(), "error")
			fmt.Fprintf(cmd.ErrOrStderr(), ": %s: %v\n", oc.Path, err)
			continue
		}
		okColor.Fprint(cmd.OutOrStdout(), "formatted")
		fmt.Fprintf(cmd.OutOrStdout(), " %s\n", oc.Path)
	}
	e.logger.Debug("format batch done", "files", len(outcomes), "changed", changed, "failed", failed)

	if batchErr != nil {
		return batchErr
	}
	if o.check && (changed > 0 || failed > 0) {
		return ErrCheckFailed
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d files failed", ErrReported, failed, len(outcomes))
	}
	return nil
}

// pinnedFormatter форматирует файлы заданным модулем без подбора по пути.
type pinnedFormatter struct {
	registry *core.Registry
	name     string
}

func (p pinnedFormatter) Format(ctx context.Context, req formatter.FormatRequest) (string, string, error) {
	text, err := p.registry.FormatWith(ctx, p.name, req)
	return text, p.name, err
}

// expandPaths раскрывает каталоги в файлы, для которых есть провайдер.
// Явно указанные файлы передаются как есть.
func expandPaths(args []string, resolver app.Resolver) ([]string, error) {
	seen := make(map[string]struct{})
	var files []string
	add := func(path string) {
		if _, ok := seen[path]; ok {
			return
		}
		seen[path] = struct{}{}
		files = append(files, path)
	}
	for _, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			add(abs)
			continue
		}
		err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != abs && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if _, err := resolver.Resolve(path); err == nil && d.Type().IsRegular() {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}
