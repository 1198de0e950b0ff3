package ml

import (
	"errors"
	"fmt"
	"time"

	"bandersnatch/data"
	"bandersnatch/storage"
	"go.uber.org/zap"
)

const infoTimeLayout = "2006-01-02 15:04:05"

// Machine owns one trained classifier. It is either trained from a table or
// restored from a stored artifact, and never changes afterwards, so
// concurrent Predict calls are safe.
type Machine struct {
	name       string
	createdAt  time.Time
	classifier Classifier
	logger     *zap.Logger
}

type options struct {
	newClassifier func() Classifier
	now           func() time.Time
	logger        *zap.Logger
}

type Option func(*options)

// WithClassifier replaces the algorithm used by FromTrainingData.
func WithClassifier(factory func() Classifier) Option {
	return func(o *options) { o.newClassifier = factory }
}

// WithForestOptions configures the default random forest.
func WithForestOptions(opts ...ForestOption) Option {
	return func(o *options) {
		o.newClassifier = func() Classifier { return NewRandomForest(opts...) }
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func buildOptions(opts []Option) *options {
	o := &options{
		newClassifier: func() Classifier { return NewRandomForest() },
		now:           time.Now,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

// FromTrainingData fits a new classifier on the table. The LabelColumn is the
// target and every other column, in order, is a feature.
func FromTrainingData(table *data.Table, opts ...Option) (*Machine, error) {
	o := buildOptions(opts)
	if table == nil {
		return nil, fmt.Errorf("%w: a training table or a model locator is required", ErrConfiguration)
	}

	features, labels, err := BuildTrainingSet(table)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTraining, err)
	}

	classifier := o.newClassifier()
	start := o.now()
	if err := classifier.Fit(features, labels); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTraining, err)
	}
	createdAt := o.now()

	o.logger.Info("model trained",
		zap.String("model", AlgorithmName),
		zap.Int("rows", len(features)),
		zap.Strings("classes", classifier.Classes()),
		zap.Duration("took", createdAt.Sub(start)),
	)
	return &Machine{
		name:       AlgorithmName,
		createdAt:  createdAt,
		classifier: classifier,
		logger:     o.logger,
	}, nil
}

// FromStorage restores a classifier saved with Save. The creation time is the
// artifact's modification time, not the time of the restore.
func FromStorage(store storage.BlobStore, locator string, opts ...Option) (*Machine, error) {
	o := buildOptions(opts)
	if store == nil || locator == "" {
		return nil, fmt.Errorf("%w: a blob store and a model locator are required", ErrConfiguration)
	}

	exists, err := store.Exists(locator)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: no model found at %s", ErrNotFound, locator)
	}

	payload, err := store.Read(locator)
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			return nil, fmt.Errorf("%w: no model found at %s: %w", ErrNotFound, locator, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	modified, err := store.LastModified(locator)
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			return nil, fmt.Errorf("%w: no model found at %s: %w", ErrNotFound, locator, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	classifier, err := LoadModel(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	o.logger.Info("model restored",
		zap.String("model", AlgorithmName),
		zap.String("locator", locator),
		zap.Time("modified", modified),
	)
	return &Machine{
		name:       AlgorithmName,
		createdAt:  modified,
		classifier: classifier,
		logger:     o.logger,
	}, nil
}

// LoadOrTrain restores the model at locator when it exists and otherwise
// trains one from table. Without either it fails with ErrConfiguration, or
// ErrNotFound when only an unresolvable locator was given.
func LoadOrTrain(store storage.BlobStore, locator string, table *data.Table, opts ...Option) (*Machine, error) {
	if store != nil && locator != "" {
		exists, err := store.Exists(locator)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		if exists {
			return FromStorage(store, locator, opts...)
		}
		if table == nil {
			return nil, fmt.Errorf("%w: no model found at %s", ErrNotFound, locator)
		}
	}
	return FromTrainingData(table, opts...)
}

// Predict classifies one record. The confidence is the probability the
// classifier assigns to the predicted label, which is not necessarily the
// largest probability.
func (m *Machine) Predict(request Request) (Prediction, error) {
	if m == nil || m.classifier == nil {
		return Prediction{}, ErrState
	}

	vector, err := FeatureVector(request)
	if err != nil {
		return Prediction{}, err
	}
	basis := [][]float64{vector}

	labels, err := m.classifier.Predict(basis)
	if err != nil {
		return Prediction{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	probabilities, err := m.classifier.PredictProba(basis)
	if err != nil {
		return Prediction{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if len(labels) == 0 || len(probabilities) == 0 {
		return Prediction{}, fmt.Errorf("%w: classifier returned no prediction", ErrState)
	}

	label := labels[0]
	index := -1
	for i, class := range m.classifier.Classes() {
		if class == label {
			index = i
			break
		}
	}
	if index < 0 || index >= len(probabilities[0]) {
		return Prediction{}, fmt.Errorf("%w: predicted label %q is not a known class", ErrState, label)
	}

	return Prediction{Label: label, Confidence: probabilities[0][index]}, nil
}

// Save writes the classifier, and only the classifier, to the store.
func (m *Machine) Save(store storage.BlobStore, locator string) error {
	if m == nil || m.classifier == nil {
		return ErrState
	}
	if store == nil || locator == "" {
		return fmt.Errorf("%w: a blob store and a model locator are required", ErrConfiguration)
	}

	payload, err := EncodeModel(m.classifier)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if err := store.Write(locator, payload); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if m.logger != nil {
		m.logger.Info("model saved", zap.String("locator", locator), zap.Int("bytes", len(payload)))
	}
	return nil
}

// Info describes the model and when it was initialized.
func (m *Machine) Info() string {
	return fmt.Sprintf("Model: %s, Initialized at: %s", m.name, m.createdAt.Local().Format(infoTimeLayout))
}

func (m *Machine) Name() string {
	return m.name
}

func (m *Machine) CreatedAt() time.Time {
	return m.createdAt
}

// Classes lists the labels the classifier can predict.
func (m *Machine) Classes() []string {
	if m == nil || m.classifier == nil {
		return nil
	}
	return m.classifier.Classes()
}
