package common

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"hellmfmt/internal/core"
	"hellmfmt/internal/formatter"
	"hellmfmt/internal/storage"
)

var (
	// ErrRateLimited возвращается, когда субъект превысил лимит запросов.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrAccessDenied оборачивает отказ authorizer.
	ErrAccessDenied = errors.New("access denied")
)

// Formatter — часть core.Registry, нужная пайплайну.
type Formatter interface {
	Format(ctx context.Context, req formatter.FormatRequest) (text, provider string, err error)
}

// Service объединяет общий пайплайн authz -> ratelimit -> format -> history.
type Service struct {
	Source      string
	Formatter   Formatter
	Authorizer  core.Authorizer
	RateLimiter *RateLimiter
	History     storage.HistoryWriter
	Logger      *slog.Logger
}

// Format проверяет доступ и лимиты, форматирует файл и пишет ровно одну
// запись истории.
func (s *Service) Format(ctx context.Context, subjectID string, req formatter.FormatRequest) formatter.Result {
	res, _ := s.format(ctx, subjectID, req)
	return res
}

// FormatAll прогоняет пакет файлов через Format, не больше jobs одновременно.
// Результаты идут в порядке reqs. Файлы, не запущенные из-за отмены ctx,
// тоже получают запись истории со статусом canceled.
func (s *Service) FormatAll(ctx context.Context, subjectID string, reqs []formatter.FormatRequest, jobs int) ([]core.Outcome, error) {
	out, err := core.Batch(ctx, reqs, jobs, func(ctx context.Context, req formatter.FormatRequest) core.Outcome {
		res, provider := s.format(ctx, subjectID, req)
		return core.Outcome{Path: req.FilePath, Provider: provider, Result: res}
	})
	for _, o := range out {
		if !o.Skipped {
			continue
		}
		s.writeHistory(ctx, storage.HistoryRecord{
			RequestID: NewRequestID(),
			Source:    s.Source,
			Subject:   subjectID,
			Path:      o.Path,
			Status:    StatusOf(o.Result.Err),
		})
	}
	return out, err
}

func (s *Service) format(ctx context.Context, subjectID string, req formatter.FormatRequest) (formatter.Result, string) {
	rec := storage.HistoryRecord{
		RequestID: NewRequestID(),
		Source:    s.Source,
		Subject:   subjectID,
		Path:      req.FilePath,
	}
	started := time.Now()
	result := s.run(ctx, subjectID, req, &rec)
	rec.Duration = time.Since(started)
	s.writeHistory(ctx, rec)
	return result, rec.Provider
}

func (s *Service) run(ctx context.Context, subjectID string, req formatter.FormatRequest, rec *storage.HistoryRecord) formatter.Result {
	if s.Authorizer != nil {
		if err := s.Authorizer.Authorize(core.Subject{Source: s.Source, ID: subjectID}, req.FilePath); err != nil {
			rec.Status = "denied"
			return formatter.Result{Err: fmt.Errorf("%w: %w", ErrAccessDenied, err)}
		}
	}
	if s.RateLimiter != nil && !s.RateLimiter.Allow(fmt.Sprintf("%s:%s", s.Source, subjectID), time.Now()) {
		rec.Status = "rate_limited"
		return formatter.Result{Err: ErrRateLimited}
	}

	text, provider, err := s.Formatter.Format(ctx, req)
	rec.Provider = provider
	rec.Status = StatusOf(err)
	var fe *formatter.Error
	if errors.As(err, &fe) {
		rec.ErrorKind = fe.Kind.String()
		rec.ExitCode = fe.ExitCode
	}
	if err != nil {
		s.logger().Info("format failed", "source", s.Source, "path", req.FilePath, "request_id", rec.RequestID, "err", err)
	}
	return formatter.NewResult(text, err)
}

// StatusOf переводит ошибку пайплайна в статус истории.
func StatusOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, ErrAccessDenied):
		return "denied"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	default:
		return "error"
	}
}

// ErrorCode возвращает стабильный код ошибки для транспортов.
func ErrorCode(err error) string {
	if kind := formatter.KindOf(err); kind != 0 {
		return kind.String()
	}
	switch {
	case err == nil:
		return ""
	case errors.Is(err, core.ErrNoProvider):
		return "no_provider"
	case errors.Is(err, ErrAccessDenied):
		return "access_denied"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}

func (s *Service) writeHistory(ctx context.Context, rec storage.HistoryRecord) {
	if s.History == nil {
		return
	}
	// Отмененный запрос тоже должен попасть в историю.
	if err := s.History.SaveHistory(context.WithoutCancel(ctx), rec); err != nil {
		s.logger().Warn("save history failed", "request_id", rec.RequestID, "err", err)
	}
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}
