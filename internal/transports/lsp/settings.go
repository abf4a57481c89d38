package lsp

import (
	"encoding/json"
	"time"
)

func (s *Server) handleDidChangeConfiguration(msg *rpcMessage) error {
	if len(msg.Params) == 0 {
		return nil
	}
	var params didChangeConfigurationParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return nil
	}
	s.applySettings(params.Settings)
	return nil
}

func (s *Server) applySettings(raw json.RawMessage) {
	if len(raw) == 0 {
		return
	}
	var settings lspSettings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if settings.Hellm.HellmPath != nil {
		s.executable = *settings.Hellm.HellmPath
		s.logger.Info("formatter executable changed", "executable", s.executable)
	}
	if settings.Hellm.TimeoutMS != nil {
		if ms := *settings.Hellm.TimeoutMS; ms > 0 {
			s.timeout = time.Duration(ms) * time.Millisecond
		} else {
			s.timeout = 0
		}
	}
}
