package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"busdelay/logging"
	"busdelay/monitoring"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// streamResult 流式预测成功响应
type streamResult struct {
	Seq         int64     `json:"seq"`
	Predictions []float64 `json:"predictions"`
}

// streamError 流式预测错误响应，status 与 /predict 的状态码一致
type streamError struct {
	Seq     int64  `json:"seq"`
	Status  int    `json:"status"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// streamHandler 通过 WebSocket 逐帧预测：每个文本帧是一个 /predict 请求体
type streamHandler struct {
	api      *handlers
	metrics  *monitoring.MetricsCollector
	maxFrame int64
	upgrader websocket.Upgrader
}

func newStreamHandler(api *handlers, metrics *monitoring.MetricsCollector, maxFrame int64, origins []string) *streamHandler {
	return &streamHandler{
		api:      api,
		metrics:  metrics,
		maxFrame: maxFrame,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				for _, allowed := range origins {
					if allowed == "*" || allowed == origin {
						return true
					}
				}
				return false
			},
		},
	}
}

// ServeHTTP 升级连接并处理预测流
// @Summary Streaming predictions over WebSocket
// @Description Each text frame is a /predict body; each reply carries the frame's sequence number.
// @Tags predict
// @Router /ws/predict [get]
func (s *streamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := logging.For(r.Context(), s.api.logger).With(zap.String("component", "stream"))
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Info("websocket upgrade failed", zap.Error(err))
		return
	}
	s.metrics.StreamOpened()
	defer s.metrics.StreamClosed()

	send := make(chan any, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		writePump(conn, send, logger)
	}()

	s.readPump(r.Context(), conn, send, logger)
	close(send)
	<-done
}

// readPump WebSocket读取泵
func (s *streamHandler) readPump(ctx context.Context, conn *websocket.Conn, send chan<- any, logger *zap.Logger) {
	if s.maxFrame > 0 {
		conn.SetReadLimit(s.maxFrame)
	}
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	base := logging.RequestID(ctx)
	var seq int64
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Info("websocket closed", zap.Error(err))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
		seq++
		if msgType != websocket.TextMessage {
			send <- streamError{Seq: seq, Status: http.StatusBadRequest, Error: "Unsupported JSON format", Details: "expected a text frame"}
			continue
		}

		frameCtx := logging.WithRequestID(ctx, fmt.Sprintf("%s-%d", base, seq))
		if _, err := s.api.svc.Ready(); err != nil {
			send <- toStreamError(seq, err)
			continue
		}
		preds, err := s.api.predictBody(frameCtx, data)
		if err != nil {
			send <- toStreamError(seq, err)
			continue
		}
		send <- streamResult{Seq: seq, Predictions: preds}
	}
}

func toStreamError(seq int64, err error) streamError {
	status, resp := predictErrorResponse(err)
	return streamError{Seq: seq, Status: status, Error: resp.Error, Details: resp.Details}
}

// writePump WebSocket写入泵
func writePump(conn *websocket.Conn, send <-chan any, logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(message); err != nil {
				logger.Info("websocket write failed", zap.Error(err))
				// 关闭连接让读取泵退出，并排空 send
				conn.Close()
				for range send {
				}
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				for range send {
				}
				return
			}
		}
	}
}
