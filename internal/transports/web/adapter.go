package web

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"hellmfmt/internal/formatter"
	"hellmfmt/internal/storage"
	"hellmfmt/internal/transports/common"
)

type contextKey string

const (
	ctxRequestID  contextKey = "request_id"
	ctxSubjectID  contextKey = "subject_id"
	ctxAuthMethod contextKey = "auth_method"
)

// TokenEntry описывает web bearer-токен.
type TokenEntry struct {
	ID          string
	TokenSHA256 string
	Subject     string
	Enabled     bool
}

// Config определяет параметры HTTP-транспорта.
type Config struct {
	ListenAddr      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
	MaxRequestBody  int64
	// AllowSubjectHeader разрешает X-Subject-ID без токена (локальная отладка).
	AllowSubjectHeader bool
	Tokens             []TokenEntry
}

// Adapter реализует HTTP-хост форматирования поверх net/http.
type Adapter struct {
	service *common.Service
	history storage.Store
	cfg     Config
	logger  *slog.Logger

	tokensByHash map[string]TokenEntry

	mu     sync.Mutex
	server *http.Server
}

type formatRequest struct {
	Path      string `json:"path"`
	TimeoutMS int    `json:"timeout_ms"`
}

// NewAdapter создает web transport. history может быть nil: тогда
// /v1/history отвечает 503.
func NewAdapter(service *common.Service, history storage.Store, cfg Config, lg *slog.Logger) *Adapter {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:8787"
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 2 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 15 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 12 * time.Second
	}
	if cfg.MaxRequestBody <= 0 {
		cfg.MaxRequestBody = 1 << 16
	}
	if lg == nil {
		lg = slog.Default()
	}

	tokensByHash := make(map[string]TokenEntry, len(cfg.Tokens))
	for _, token := range cfg.Tokens {
		h := strings.ToLower(strings.TrimSpace(token.TokenSHA256))
		if len(h) != sha256.Size*2 {
			lg.Warn("skip web token with malformed digest", "token_id", token.ID)
			continue
		}
		tokensByHash[h] = token
	}

	return &Adapter{
		service:      service,
		history:      history,
		cfg:          cfg,
		logger:       lg,
		tokensByHash: tokensByHash,
	}
}

func (a *Adapter) Name() string { return "web" }

// Start запускает HTTP server и останавливает его при отмене контекста.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.server != nil {
		a.mu.Unlock()
		return errors.New("web transport already started")
	}
	srv := &http.Server{
		Addr:         a.cfg.ListenAddr,
		Handler:      a.routes(),
		ReadTimeout:  a.cfg.ReadTimeout,
		WriteTimeout: a.cfg.WriteTimeout,
	}
	a.server = srv
	a.mu.Unlock()

	go func() {
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		_ = a.Stop(stopCtx)
	}()

	go func() {
		a.logger.Info("web transport listening", "addr", a.cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("web transport stopped", "err", err)
		}
	}()
	return nil
}

// Stop завершает HTTP server.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	srv := a.server
	a.server = nil
	a.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

type middleware func(http.Handler) http.Handler

func chain(h http.Handler, mws ...middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func (a *Adapter) routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /v1/health", http.HandlerFunc(a.handleHealth))

	mux.Handle("POST /v1/format", chain(http.HandlerFunc(a.handleFormat),
		a.timeoutMiddleware(),
		a.authSubjectMiddleware(),
		a.maxBodyMiddleware(),
	))

	mux.Handle("GET /v1/history", chain(http.HandlerFunc(a.handleHistory),
		a.timeoutMiddleware(),
		a.authSubjectMiddleware(),
	))

	return chain(mux, a.requestIDMiddleware())
}

func (a *Adapter) requestIDMiddleware() middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := sanitizeRequestID(r.Header.Get("X-Request-ID"))
			if requestID == "" {
				requestID = common.NewRequestID()
			}
			w.Header().Set("X-Request-ID", requestID)
			ctx := context.WithValue(r.Context(), ctxRequestID, requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (a *Adapter) timeoutMiddleware() middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), a.cfg.RequestTimeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (a *Adapter) authSubjectMiddleware() middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subjectID, authMethod, code := a.resolveSubject(r)
			if code != "" {
				writeError(w, r, http.StatusUnauthorized, code, "")
				return
			}
			ctx := context.WithValue(r.Context(), ctxSubjectID, subjectID)
			ctx = context.WithValue(ctx, ctxAuthMethod, authMethod)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (a *Adapter) resolveSubject(r *http.Request) (subjectID, authMethod, code string) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		token := strings.TrimSpace(authHeader[7:])
		if token == "" {
			return "", "", "invalid_token"
		}
		sum := sha256.Sum256([]byte(token))
		entry, ok := a.tokensByHash[hex.EncodeToString(sum[:])]
		if !ok || !entry.Enabled || entry.Subject == "" {
			return "", "", "invalid_token"
		}
		return entry.Subject, "bearer", ""
	}

	if a.cfg.AllowSubjectHeader {
		if subjectID := strings.TrimSpace(r.Header.Get("X-Subject-ID")); subjectID != "" {
			return subjectID, "subject_header", ""
		}
	}
	return "", "", "auth_required"
}

func (a *Adapter) maxBodyMiddleware() middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, a.cfg.MaxRequestBody)
			next.ServeHTTP(w, r)
		})
	}
}

func decodeFormatRequest(r *http.Request) (formatRequest, string, int) {
	var req formatRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		if isBodyTooLargeErr(err) {
			return formatRequest{}, "payload_too_large", http.StatusRequestEntityTooLarge
		}
		return formatRequest{}, "invalid_json", http.StatusBadRequest
	}
	if dec.More() {
		return formatRequest{}, "invalid_json", http.StatusBadRequest
	}
	if strings.TrimSpace(req.Path) == "" {
		return formatRequest{}, "path_required", http.StatusBadRequest
	}
	if req.TimeoutMS < 0 {
		return formatRequest{}, "bad_timeout", http.StatusBadRequest
	}
	return req, "", 0
}

func isBodyTooLargeErr(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func sanitizeRequestID(v string) string {
	id := strings.TrimSpace(v)
	if id == "" || len(id) > 64 {
		return ""
	}
	for _, ch := range id {
		if (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') {
			continue
		}
		switch ch {
		case '-', '_', '.', ':':
			continue
		default:
			return ""
		}
	}
	return id
}

func (a *Adapter) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *Adapter) handleFormat(w http.ResponseWriter, r *http.Request) {
	req, code, status := decodeFormatRequest(r)
	if code != "" {
		writeError(w, r, status, code, "")
		return
	}

	fr := formatter.FormatRequest{FilePath: req.Path}
	if req.TimeoutMS > 0 {
		fr.Timeout = time.Duration(req.TimeoutMS) * time.Millisecond
	}
	res := a.service.Format(r.Context(), subjectIDFromContext(r.Context()), fr)
	if res.OK() {
		writeJSON(w, r, http.StatusOK, map[string]interface{}{
			"request_id": requestIDFromContext(r.Context()),
			"status":     "ok",
			"data":       map[string]string{"text": res.Text},
		})
		return
	}

	errCode := common.ErrorCode(res.Err)
	a.logger.Info("web format failed",
		"request_id", requestIDFromContext(r.Context()),
		"subject", subjectIDFromContext(r.Context()),
		"auth_method", authMethodFromContext(r.Context()),
		"path", req.Path,
		"error_code", errCode,
	)
	writeError(w, r, statusForError(r.Context(), errCode), errCode, formatter.UserMessage(res.Err))
}

// statusForError отображает код ошибки пайплайна на HTTP-статус.
func statusForError(ctx context.Context, code string) int {
	switch code {
	case "non_zero_exit", "spawn_error", "no_provider":
		return http.StatusUnprocessableEntity
	case "timeout":
		return http.StatusGatewayTimeout
	case "access_denied":
		return http.StatusForbidden
	case "rate_limited":
		return http.StatusTooManyRequests
	case "canceled":
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		// Клиент ушел, ответ никто не прочитает.
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func (a *Adapter) handleHistory(w http.ResponseWriter, r *http.Request) {
	if a.history == nil {
		writeError(w, r, http.StatusServiceUnavailable, "history_disabled", "")
		return
	}
	q := storage.HistoryQuery{
		Path:  r.URL.Query().Get("path"),
		Limit: parseLimit(r.URL.Query().Get("limit")),
	}
	if v := r.URL.Query().Get("from"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "bad_from", "")
			return
		}
		q.From = ts
	}
	if v := r.URL.Query().Get("to"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "bad_to", "")
			return
		}
		q.To = ts
	}

	items, err := a.history.QueryHistory(r.Context(), q)
	if err != nil {
		if errors.Is(r.Context().Err(), context.DeadlineExceeded) {
			writeError(w, r, http.StatusGatewayTimeout, "request_timeout", "")
			return
		}
		a.logger.Error("query history failed", "request_id", requestIDFromContext(r.Context()), "err", err)
		writeError(w, r, http.StatusInternalServerError, "storage_error", "")
		return
	}
	if items == nil {
		items = []storage.HistoryRecord{}
	}
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"request_id": requestIDFromContext(r.Context()),
		"items":      items,
	})
}

func requestIDFromContext(ctx context.Context) string {
	v, ok := ctx.Value(ctxRequestID).(string)
	if !ok || v == "" {
		return common.NewRequestID()
	}
	return v
}

func subjectIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxSubjectID).(string)
	return v
}

func authMethodFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxAuthMethod).(string)
	return v
}

func parseLimit(v string) int {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 50
	}
	return n
}

func writeError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	if message == "" {
		message = errorMessage(code)
	}
	writeJSON(w, r, statusCode, map[string]string{
		"request_id": requestIDFromContext(r.Context()),
		"status":     "error",
		"error_code": code,
		"error":      message,
	})
}

func errorMessage(code string) string {
	switch code {
	case "auth_required":
		return "authentication is required"
	case "invalid_token":
		return "token is invalid"
	case "payload_too_large":
		return "request payload is too large"
	case "request_timeout":
		return "request timeout"
	case "history_disabled":
		return "format history is disabled"
	default:
		return code
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestIDFromContext(r.Context()))
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}
