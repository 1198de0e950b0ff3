package http

import (
	"net/http/httptest"
	"strings"
	"testing"

	"bandersnatch/ml"
	"github.com/gorilla/websocket"
)

func TestPredictStream(t *testing.T) {
	env := newTestEnv(t)
	env.seedAndTrain(t)

	server := httptest.NewServer(env.handler)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/ws/predict"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(validRequest)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var prediction ml.Prediction
	if err := conn.ReadJSON(&prediction); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prediction.Label == "" {
		t.Fatal("expected a label")
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"Level": 1}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var reply errorResponse
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(reply.Error, "missing field") {
		t.Fatalf("expected missing field error, got %q", reply.Error)
	}

	// The connection stays usable after an error.
	if err := conn.WriteMessage(websocket.TextMessage, []byte(validRequest)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var again ml.Prediction
	if err := conn.ReadJSON(&again); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again != prediction {
		t.Fatalf("expected %+v, got %+v", prediction, again)
	}
}
