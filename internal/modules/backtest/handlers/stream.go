package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/aristath/backtester/internal/utils"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	// requestWait bounds how long a client may take to send the request frame
	requestWait = 30 * time.Second
	// writeWait bounds every frame write
	writeWait = 10 * time.Second
	// progressEvery is the minimum spacing of progress frames
	progressEvery = 250 * time.Millisecond
)

// StreamFrame is one server-to-client message on a simulation stream
type StreamFrame struct {
	Type    string              `json:"type"` // "progress", "result" or "error"
	Current int                 `json:"current,omitempty"`
	Total   int                 `json:"total,omitempty"`
	Message string              `json:"message,omitempty"`
	Status  int                 `json:"status,omitempty"`
	Error   string              `json:"error,omitempty"`
	Result  *SimulationResponse `json:"result,omitempty"`
}

// HandleSimulateStream handles GET /api/backtest/simulate/stream.
// The client sends one SimulationRequest frame; the server answers with
// throttled progress frames and a final result or error frame, then closes.
// Closing the socket early cancels the run.
func (h *Handler) HandleSimulateStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.opts.OriginPatterns,
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to accept simulation stream")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "unexpected shutdown")

	readCtx, cancelRead := context.WithTimeout(r.Context(), requestWait)
	var req SimulationRequest
	err = wsjson.Read(readCtx, conn, &req)
	cancelRead()
	if err != nil {
		h.log.Debug().Err(err).Msg("Simulation stream closed before request")
		conn.Close(websocket.StatusPolicyViolation, "expected a simulation request")
		return
	}
	req.Symbol = utils.NormalizeSymbol(req.Symbol)

	// Control frames are still handled; any data frame or a close cancels the run
	ctx := conn.CloseRead(r.Context())

	var lastSent time.Time
	progress := func(current, total int, message string) {
		if current < total && time.Since(lastSent) < progressEvery {
			return
		}
		lastSent = time.Now()
		_ = h.writeFrame(ctx, conn, StreamFrame{Type: "progress", Current: current, Total: total, Message: message})
	}

	h.log.Info().Str("symbol", req.Symbol).Int("trials", req.Trials).Msg("Simulation stream started")

	resp, err := h.simulate(ctx, req, progress)
	if err != nil {
		if ctx.Err() != nil {
			h.log.Info().Err(err).Msg("Simulation stream cancelled by client")
			return
		}
		status := utils.ErrorStatus(err)
		message := err.Error()
		if status == http.StatusInternalServerError {
			h.log.Error().Err(err).Msg("Simulation stream failed")
			message = "Internal server error"
		}
		if err := h.writeFrame(ctx, conn, StreamFrame{Type: "error", Status: status, Error: message}); err == nil {
			conn.Close(websocket.StatusNormalClosure, "")
		}
		return
	}

	if err := h.writeFrame(ctx, conn, StreamFrame{Type: "result", Result: resp}); err != nil {
		h.log.Warn().Err(err).Msg("Failed to send simulation result")
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

func (h *Handler) writeFrame(ctx context.Context, conn *websocket.Conn, frame StreamFrame) error {
	writeCtx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()
	return wsjson.Write(writeCtx, conn, frame)
}
