package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"os"

	"hellmfmt/internal/formatter"
)

// handleFormatting запускает форматирование вне цикла чтения, чтобы
// $/cancelRequest и didClose успели отменить его.
func (s *Server) handleFormatting(msg *rpcMessage) error {
	var params documentFormattingParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return s.sendError(msg.ID, codeInvalidParams, "invalid params")
	}
	uri := canonicalURI(params.TextDocument.URI)
	path := uriToPath(uri)
	if path == "" || s.format == nil {
		return s.sendResponse(msg.ID, []textEdit{})
	}

	id := append(json.RawMessage(nil), msg.ID...)
	ctx, cancel := context.WithCancel(s.baseCtx)
	s.mu.Lock()
	s.inflight[string(id)] = inflight{uri: uri, cancel: cancel}
	req := formatter.FormatRequest{
		FilePath:   path,
		WorkingDir: s.workspaceRoot,
		Executable: s.executable,
		Timeout:    s.timeout,
	}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			cancel()
			s.mu.Lock()
			delete(s.inflight, string(id))
			s.mu.Unlock()
		}()
		res := s.format(ctx, req)
		if err := s.replyFormatting(id, uri, path, res); err != nil {
			s.logger.Warn("failed to send formatting reply", "uri", uri, "err", err)
		}
	}()
	return nil
}

// unsavedMessage показывается, когда буфер редактора расходится с файлом:
// форматтер читает диск, и правка затерла бы несохраненный текст.
const unsavedMessage = "HeLLM format: save the document before formatting"

func (s *Server) replyFormatting(id json.RawMessage, uri, path string, res formatter.Result) error {
	if res.OK() {
		disk, err := os.ReadFile(path) // #nosec G304 -- путь пришел от редактора.
		if err != nil {
			s.logger.Warn("formatted file is unreadable", "uri", uri, "err", err)
			return s.sendResponse(id, []textEdit{})
		}
		current := string(disk)
		if buffer, open := s.openText(uri); open && buffer != current {
			if err := s.sendNotification("window/showMessage", showMessageParams{
				Type:    messageTypeWarning,
				Message: unsavedMessage,
			}); err != nil {
				return err
			}
			return s.sendResponse(id, []textEdit{})
		}
		if current == res.Text {
			return s.sendResponse(id, []textEdit{})
		}
		return s.sendResponse(id, []textEdit{{Range: fullRange(current), NewText: res.Text}})
	}
	if errors.Is(res.Err, context.Canceled) {
		return s.sendError(id, codeRequestCancelled, "request cancelled")
	}
	s.logger.Warn("format failed", "uri", uri, "err", res.Err)
	if err := s.sendNotification("window/showMessage", showMessageParams{
		Type:    messageTypeError,
		Message: "HeLLM format error: " + formatter.UserMessage(res.Err),
	}); err != nil {
		return err
	}
	return s.sendResponse(id, []textEdit{})
}

func (s *Server) openText(uri string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.openDocs[uri]
	return text, ok
}
