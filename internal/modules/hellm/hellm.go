package hellm

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"

	"hellmfmt/internal/formatter"
)

// Extension — расширение исходников HeLLM.
const Extension = ".hl"

// Module форматирует файлы .hl внешней командой `hellm parse`.
type Module struct {
	adapter *formatter.Adapter
	timeout time.Duration
	logger  *slog.Logger
}

// New создает модуль. executable пустой — берется hellm из PATH.
func New(executable string, timeout, grace time.Duration, lg *slog.Logger) *Module {
	if lg == nil {
		lg = slog.Default()
	}
	return &Module{
		adapter: formatter.New(executable, grace, lg),
		timeout: timeout,
		logger:  lg,
	}
}

func (m *Module) Name() string { return "hellm" }

// Init проверяет, что форматтер находится; отсутствие не фатально —
// каждый запрос сам вернет SpawnError.
func (m *Module) Init(ctx context.Context) error {
	if _, err := exec.LookPath(m.executable()); err != nil {
		m.logger.Warn("hellm executable not found", "executable", m.executable(), "err", err)
	}
	return nil
}

func (m *Module) Handles(path string) bool {
	return strings.EqualFold(filepath.Ext(path), Extension)
}

// Format запускает форматтер с бюджетом времени модуля или запроса.
func (m *Module) Format(ctx context.Context, req formatter.FormatRequest) (string, error) {
	if req.Executable == "" {
		req.Executable = m.executable()
	}
	timeout := m.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	return m.adapter.Format(ctx, req, timeout)
}

func (m *Module) executable() string {
	if m.adapter.Executable == "" {
		return formatter.DefaultExecutable
	}
	return m.adapter.Executable
}

// Report — результат самодиагностики.
type Report struct {
	Executable    string  `json:"executable"`
	ResolvedPath  string  `json:"resolved_path,omitempty"`
	LookupError   string  `json:"lookup_error,omitempty"`
	TimeoutMS     int64   `json:"timeout_ms"`
	Hostname      string  `json:"hostname"`
	Platform      string  `json:"platform"`
	PlatformVer   string  `json:"platform_version"`
	Kernel        string  `json:"kernel"`
	Load1         float64 `json:"load1"`
	Load5         float64 `json:"load5"`
	ProcessGroups bool    `json:"process_groups"`
}

// Doctor собирает сведения о форматтере и узле.
func (m *Module) Doctor(ctx context.Context) (Report, error) {
	rep := Report{
		Executable:    m.executable(),
		TimeoutMS:     m.timeout.Milliseconds(),
		ProcessGroups: processGroups,
	}
	if resolved, err := exec.LookPath(rep.Executable); err != nil {
		rep.LookupError = err.Error()
	} else {
		rep.ResolvedPath = resolved
	}
	hInfo, err := host.InfoWithContext(ctx)
	if err != nil {
		return rep, fmt.Errorf("host info: %w", err)
	}
	rep.Hostname = hInfo.Hostname
	rep.Platform = hInfo.Platform
	rep.PlatformVer = hInfo.PlatformVersion
	rep.Kernel = hInfo.KernelVersion
	ld, err := load.AvgWithContext(ctx)
	if err != nil {
		// На части платформ load average недоступен.
		m.logger.Debug("load average unavailable", "err", err)
		return rep, nil
	}
	rep.Load1 = ld.Load1
	rep.Load5 = ld.Load5
	return rep, nil
}
