package server

import (
	"encoding/json"
	"net/http"
)

// HandleAdminConfig 提供房间配置的读取与更新（热更新移动速度）
// GET /admin/config   返回当前配置与生效参数
// POST /admin/config  以 JSON 载荷 {"moveSpeed": 6.5} 更新，下一 Tick 生效
func (s *Server) HandleAdminConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{
			"config": s.cfg,
			"tuning": s.room.Tuning(),
		})
	case http.MethodPost:
		var body Tuning
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if err := s.room.UpdateTuning(body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.log.Infow("tuning update queued", "move_speed", body.MoveSpeed, "remote", r.RemoteAddr)
		writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleMetrics 输出运行指标
// GET /metrics
func (s *Server) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"protocol_id": s.cfg.ProtocolID,
		"tick_hz":     s.cfg.TickHz,
		"metrics":     s.metrics.Snapshot(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
