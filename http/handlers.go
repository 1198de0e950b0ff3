package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"bandersnatch/data"
	"bandersnatch/db"
	"bandersnatch/ml"
	"bandersnatch/storage"
	"github.com/gorilla/websocket"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

const defaultSeedSize = 1000

var errNoModel = errors.New("no model loaded")

type predictionKey [4]float64

type APIConfig struct {
	Database     *db.Database
	Store        storage.BlobStore
	Locator      string
	CacheSize    int
	TrainOptions []ml.Option
	Logger       *zap.Logger
}

// API serves one model at a time. The model is swapped whole on training or
// reload, and cached predictions are dropped with it.
type API struct {
	mu      sync.RWMutex
	machine *ml.Machine

	database     *db.Database
	store        storage.BlobStore
	locator      string
	trainOptions []ml.Option
	predictions  *lru.Cache[predictionKey, ml.Prediction]
	upgrader     websocket.Upgrader
	logger       *zap.Logger
}

func NewAPI(config APIConfig) (*API, error) {
	size := config.CacheSize
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New[predictionKey, ml.Prediction](size)
	if err != nil {
		return nil, err
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{
		database:     config.Database,
		store:        config.Store,
		locator:      config.Locator,
		trainOptions: append([]ml.Option{ml.WithLogger(logger)}, config.TrainOptions...),
		predictions:  cache,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger,
	}, nil
}

func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", a.handleHealth)
	mux.HandleFunc("GET /api/model", a.handleModelInfo)
	mux.HandleFunc("GET /api/model/history", a.handleTrainingHistory)
	mux.HandleFunc("POST /api/model/train", a.handleTrain)
	mux.HandleFunc("POST /api/model/reload", a.handleReload)
	mux.HandleFunc("POST /api/predict", a.handlePredict)
	mux.HandleFunc("GET /api/ws/predict", a.handlePredictStream)
	mux.HandleFunc("GET /api/data", a.handleDataTable)
	mux.HandleFunc("GET /api/data/count", a.handleDataCount)
	mux.HandleFunc("POST /api/data/seed", a.handleDataSeed)
	mux.HandleFunc("DELETE /api/data", a.handleDataReset)
	mux.HandleFunc("GET /api/chart", a.handleChart)
}

// SetMachine replaces the served model and purges cached predictions.
func (a *API) SetMachine(machine *ml.Machine) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.machine = machine
	a.predictions.Purge()
}

func (a *API) Machine() *ml.Machine {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.machine
}

// Reload restores the model from the blob store and serves it.
func (a *API) Reload() (*ml.Machine, error) {
	machine, err := ml.FromStorage(a.store, a.locator, ml.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}
	a.SetMachine(machine)
	return machine, nil
}

// Train fits a model on the whole collection, saves it and serves it. The
// served model is left untouched when any step fails.
func (a *API) Train() (*ml.Machine, error) {
	training, err := a.trainingTable()
	if err != nil {
		return nil, err
	}
	machine, err := ml.FromTrainingData(training, a.trainOptions...)
	if err != nil {
		return nil, err
	}
	if err := a.publish(machine, training); err != nil {
		return nil, err
	}
	return machine, nil
}

// LoadOrTrain serves the stored model when one exists and otherwise trains
// a new one on the collection and saves it.
func (a *API) LoadOrTrain() (*ml.Machine, error) {
	if a.store != nil && a.locator != "" {
		stored, err := a.store.Exists(a.locator)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ml.ErrPersistence, err)
		}
		if stored {
			return a.Reload()
		}
	}
	training, err := a.trainingTable()
	if err != nil {
		return nil, err
	}
	machine, err := ml.LoadOrTrain(a.store, a.locator, training, a.trainOptions...)
	if err != nil {
		return nil, err
	}
	if err := a.publish(machine, training); err != nil {
		return nil, err
	}
	return machine, nil
}

func (a *API) trainingTable() (*data.Table, error) {
	if a.database == nil {
		return nil, fmt.Errorf("%w: no document store configured", ml.ErrConfiguration)
	}
	table, err := a.database.Table()
	if err != nil {
		return nil, err
	}
	training, err := ml.TrainingTable(table)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ml.ErrTraining, err)
	}
	return training, nil
}

// publish saves a freshly trained model, records it and serves it. Accuracy
// stays unset because the whole collection was used for fitting.
func (a *API) publish(machine *ml.Machine, training *data.Table) error {
	if a.store != nil && a.locator != "" {
		if err := machine.Save(a.store, a.locator); err != nil {
			return err
		}
	}
	if err := a.database.SaveTrainingLog(db.TrainingLog{
		ModelName:  machine.Name(),
		TrainedAt:  machine.CreatedAt(),
		DataPoints: training.Len(),
	}); err != nil {
		a.logger.Warn("failed to record training", zap.Error(err))
	}
	a.SetMachine(machine)
	return nil
}

// predict answers from the cache when the same features were seen for the
// current model. The read lock spans the lookup so a swap cannot interleave.
func (a *API) predict(request ml.Request) (ml.Prediction, error) {
	vector, err := ml.FeatureVector(request)
	if err != nil {
		return ml.Prediction{}, err
	}
	var key predictionKey
	copy(key[:], vector)

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.machine == nil {
		return ml.Prediction{}, errNoModel
	}
	if cached, ok := a.predictions.Get(key); ok {
		return cached, nil
	}
	prediction, err := a.machine.Predict(request)
	if err != nil {
		return ml.Prediction{}, err
	}
	a.predictions.Add(key, prediction)
	return prediction, nil
}

type healthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, healthResponse{Status: "ok", ModelLoaded: a.Machine() != nil})
}

type modelResponse struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Info      string    `json:"info"`
	Classes   []string  `json:"classes"`
}

func newModelResponse(machine *ml.Machine) modelResponse {
	return modelResponse{
		Name:      machine.Name(),
		CreatedAt: machine.CreatedAt(),
		Info:      machine.Info(),
		Classes:   machine.Classes(),
	}
}

func (a *API) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	machine := a.Machine()
	if machine == nil {
		respondError(w, http.StatusServiceUnavailable, errNoModel.Error())
		return
	}
	respondJSON(w, http.StatusOK, newModelResponse(machine))
}

func (a *API) handleTrainingHistory(w http.ResponseWriter, r *http.Request) {
	if a.database == nil {
		respondError(w, http.StatusServiceUnavailable, "no document store configured")
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	logs, err := a.database.LoadTrainingLog(limit)
	if err != nil {
		a.respondServerError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, logs)
}

func (a *API) handleTrain(w http.ResponseWriter, r *http.Request) {
	machine, err := a.Train()
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, newModelResponse(machine))
	case errors.Is(err, db.ErrEmpty):
		respondError(w, http.StatusConflict, "collection is empty, seed it first")
	case errors.Is(err, ml.ErrConfiguration):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		a.respondServerError(w, r, err)
	}
}

func (a *API) handleReload(w http.ResponseWriter, r *http.Request) {
	machine, err := a.Reload()
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, newModelResponse(machine))
	case errors.Is(err, ml.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ml.ErrConfiguration):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		a.respondServerError(w, r, err)
	}
}

func (a *API) handlePredict(w http.ResponseWriter, r *http.Request) {
	var request ml.Request
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	prediction, err := a.predict(request)
	if err != nil {
		a.respondPredictError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, prediction)
}

func (a *API) respondPredictError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ml.ErrInvalidRequest):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, errNoModel):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		a.respondServerError(w, r, err)
	}
}

func (a *API) respondServerError(w http.ResponseWriter, r *http.Request, err error) {
	a.logger.Error("request failed",
		zap.String("request_id", GetRequestID(r.Context())),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	respondError(w, http.StatusInternalServerError, "internal server error")
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}
