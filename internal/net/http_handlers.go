package net

import (
	"encoding/json"
	"log"
	nethttp "net/http"
	"time"

	server "rollsync/server"
	"rollsync/server/internal/net/proto"
	"rollsync/server/internal/net/ws"
)

type HTTPHandlerConfig struct {
	Logger *log.Logger
}

// NewHTTPHandler assembles the server's HTTP surface: health and diagnostics
// probes, the join endpoint, and the websocket upgrade.
func NewHTTPHandler(hub *server.Hub, cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		payload := struct {
			Status     string `json:"status"`
			ServerTime int64  `json:"serverTime"`
			Frame      uint64 `json:"frame"`
			Peers      any    `json:"peers"`
			TickRate   int    `json:"tickRate"`
			Heartbeat  int64  `json:"heartbeatMillis"`
			Telemetry  any    `json:"telemetry"`
		}{
			Status:     "ok",
			ServerTime: time.Now().UnixMilli(),
			Frame:      hub.CurrentFrame(),
			Peers:      hub.DiagnosticsSnapshot(),
			TickRate:   hub.CurrentConfig().TickRate,
			Heartbeat:  hub.CurrentConfig().HeartbeatInterval.Milliseconds(),
			Telemetry:  hub.TelemetrySnapshot(),
		}

		data, err := json.Marshal(payload)
		if err != nil {
			httpError(w, "failed to encode", nethttp.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	mux.HandleFunc("/join", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}

		join, err := hub.Join()
		if err != nil {
			logger.Printf("join failed: %v", err)
			httpError(w, "failed to join", nethttp.StatusInternalServerError)
			return
		}
		data, err := proto.EncodeJoinResponse(join)
		if err != nil {
			httpError(w, "failed to encode", nethttp.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	wsHandler := ws.NewHandler(hub, ws.HandlerConfig{Logger: logger})
	mux.HandleFunc("/ws", wsHandler.Handle)

	return mux
}

func httpError(w nethttp.ResponseWriter, message string, status int) {
	nethttp.Error(w, message, status)
}
