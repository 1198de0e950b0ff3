package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"bandersnatch/data"
	"bandersnatch/db"
	"bandersnatch/ml"
	"bandersnatch/storage"
)

type testEnv struct {
	api      *API
	handler  http.Handler
	database *db.Database
	store    *storage.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	database, err := db.Open(
		filepath.Join(t.TempDir(), "test.db"),
		"monsters",
		nil,
		db.WithGenerator(data.NewMonsterGenerator(11).WithClock(clock)),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	store := storage.NewMemoryStore()
	api, err := NewAPI(APIConfig{
		Database:     database,
		Store:        store,
		Locator:      "model.json",
		CacheSize:    8,
		TrainOptions: []ml.Option{ml.WithForestOptions(ml.WithEstimators(10))},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return &testEnv{
		api:      api,
		handler:  NewHandler(DefaultServerConfig(), api, nil),
		database: database,
		store:    store,
	}
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func (e *testEnv) seedAndTrain(t *testing.T) {
	t.Helper()
	if err := e.database.Seed(200); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w := e.do(t, http.MethodPost, "/api/model/train", ""); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid json: %v: %s", err, w.Body.String())
	}
	return out
}

const validRequest = `{"Level": 10, "Health": 50, "Energy": 30, "Sanity": 70}`

func TestHealthHandler(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	health := decode[healthResponse](t, w)
	if health.Status != "ok" || health.ModelLoaded {
		t.Fatalf("unexpected health: %+v", health)
	}
}

func TestPredictWithoutModel(t *testing.T) {
	env := newTestEnv(t)
	if w := env.do(t, http.MethodPost, "/api/predict", validRequest); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/model", ""); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestTrainRequiresDocuments(t *testing.T) {
	env := newTestEnv(t)
	if w := env.do(t, http.MethodPost, "/api/model/train", ""); w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}

func TestTrainAndPredict(t *testing.T) {
	env := newTestEnv(t)
	env.seedAndTrain(t)

	w := env.do(t, http.MethodGet, "/api/model", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	model := decode[modelResponse](t, w)
	if model.Name != ml.AlgorithmName || !strings.HasPrefix(model.Info, "Model: Random Forest Classifier, Initialized at: ") {
		t.Fatalf("unexpected model: %+v", model)
	}

	w = env.do(t, http.MethodPost, "/api/predict", validRequest)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	prediction := decode[ml.Prediction](t, w)
	found := false
	for _, class := range model.Classes {
		found = found || class == prediction.Label
	}
	if !found || prediction.Confidence < 0 || prediction.Confidence > 1 {
		t.Fatalf("unexpected prediction %+v for classes %v", prediction, model.Classes)
	}
	if env.api.predictions.Len() != 1 {
		t.Fatalf("expected one cached prediction, got %d", env.api.predictions.Len())
	}

	exists, err := env.store.Exists("model.json")
	if err != nil || !exists {
		t.Fatalf("expected trained model to be saved, got %v %v", exists, err)
	}

	w = env.do(t, http.MethodGet, "/api/model/history", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "accuracy") {
		t.Fatalf("expected no accuracy for a model fitted on every row, got %s", w.Body.String())
	}
	if logs := decode[[]db.TrainingLog](t, w); len(logs) != 1 || logs[0].DataPoints != 200 || logs[0].Accuracy != nil {
		t.Fatalf("unexpected history: %+v", logs)
	}
}

func TestPredictRejectsBadRequests(t *testing.T) {
	env := newTestEnv(t)
	env.seedAndTrain(t)

	cases := map[string]string{
		"invalid json":  `{"Level":`,
		"missing field": `{"Level": 10, "Health": 50, "Energy": 30}`,
		"text field":    `{"Level": "ten", "Health": 50, "Energy": 30, "Sanity": 70}`,
	}
	for name, body := range cases {
		if w := env.do(t, http.MethodPost, "/api/predict", body); w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, w.Code)
		}
	}
}

func TestSwapPurgesPredictionCache(t *testing.T) {
	env := newTestEnv(t)
	env.seedAndTrain(t)
	if w := env.do(t, http.MethodPost, "/api/predict", validRequest); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w := env.do(t, http.MethodPost, "/api/model/reload", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if env.api.predictions.Len() != 0 {
		t.Fatalf("expected empty cache after reload, got %d", env.api.predictions.Len())
	}
}

func TestReloadMissingModel(t *testing.T) {
	env := newTestEnv(t)
	if w := env.do(t, http.MethodPost, "/api/model/reload", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestLoadOrTrain(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.api.LoadOrTrain(); !errors.Is(err, db.ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
	if err := env.database.Seed(200); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	trained, err := env.api.LoadOrTrain()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.api.Machine() != trained {
		t.Fatal("expected trained model to be served")
	}
	saved, err := env.store.Read("model.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	restored, err := env.api.LoadOrTrain()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if restored == trained || env.api.Machine() != restored {
		t.Fatal("expected stored model to be restored and served")
	}
	again, err := env.store.Read("model.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(again) != string(saved) {
		t.Fatal("expected stored model to be left untouched")
	}
	logs, err := env.database.LoadTrainingLog(10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected a single training, got %d", len(logs))
	}
}

func TestDataEndpoints(t *testing.T) {
	env := newTestEnv(t)

	if w := env.do(t, http.MethodGet, "/api/data", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for empty collection, got %d", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/api/data/seed?n=abc", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	w := env.do(t, http.MethodPost, "/api/data/seed?n=12", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	if count := decode[countResponse](t, w); count.Count != 12 {
		t.Fatalf("expected 12 documents, got %d", count.Count)
	}

	w = env.do(t, http.MethodGet, "/api/data/count", "")
	if count := decode[countResponse](t, w); count.Count != 12 {
		t.Fatalf("expected 12 documents, got %d", count.Count)
	}

	w = env.do(t, http.MethodGet, "/api/data", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "<table") {
		t.Fatalf("expected html table, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("unexpected content type %q", ct)
	}

	w = env.do(t, http.MethodGet, "/api/chart?x=Level&y=Sanity&target=Rarity", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Sanity by Level for Rarity") {
		t.Fatalf("expected chart page, got %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/chart?x=Mana", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	w = env.do(t, http.MethodDelete, "/api/data", "")
	if reset := decode[resetResponse](t, w); reset.Removed != 12 {
		t.Fatalf("expected 12 removed, got %d", reset.Removed)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)
	if w := env.do(t, http.MethodGet, "/api/predict", ""); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}
