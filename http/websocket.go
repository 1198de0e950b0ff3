package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"bandersnatch/ml"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteWait = 10 * time.Second
	wsReadLimit = 64 << 10
)

// handlePredictStream answers every JSON request message on the socket with
// a prediction, or an error message that leaves the connection open.
func (a *API) handlePredictStream(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		a.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsReadLimit)

	requestID := GetRequestID(r.Context())
	a.logger.Debug("websocket connected", zap.String("request_id", requestID))

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				a.logger.Warn("websocket read failed", zap.String("request_id", requestID), zap.Error(err))
			}
			return
		}

		var reply interface{}
		var request ml.Request
		if err := json.Unmarshal(message, &request); err != nil {
			reply = errorResponse{Error: "invalid JSON message"}
		} else if prediction, err := a.predict(request); err != nil {
			reply = errorResponse{Error: streamError(err)}
		} else {
			reply = prediction
		}

		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(reply); err != nil {
			a.logger.Warn("websocket write failed", zap.String("request_id", requestID), zap.Error(err))
			return
		}
	}
}

func streamError(err error) string {
	if errors.Is(err, ml.ErrInvalidRequest) || errors.Is(err, errNoModel) {
		return err.Error()
	}
	return "internal server error"
}
