package ml

import (
	"fmt"

	"bandersnatch/data"
)

// LabelColumn is the training table column holding the class label.
const LabelColumn = "Rarity"

// Request is a single record to classify. Fields other than FeatureNames are
// ignored.
type Request = data.Record

// Prediction is a predicted label with the classifier's probability for it.
type Prediction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// FeatureNames returns the request fields a prediction is made from, in the
// order they are passed to the classifier.
func FeatureNames() []string {
	return []string{
		"Level",
		"Health",
		"Energy",
		"Sanity",
	}
}

// FeatureVector projects a request onto FeatureNames. Every field must be
// present and numeric.
func FeatureVector(request Request) ([]float64, error) {
	names := FeatureNames()
	vector := make([]float64, len(names))
	for i, name := range names {
		value, ok := request[name]
		if !ok || value == nil {
			return nil, fmt.Errorf("%w: missing field %s", ErrInvalidRequest, name)
		}
		f, ok := data.Float(value)
		if !ok {
			return nil, fmt.Errorf("%w: field %s is not numeric", ErrInvalidRequest, name)
		}
		vector[i] = f
	}
	return vector, nil
}

// TrainingTable projects a raw table onto FeatureNames plus LabelColumn, the
// layout FromTrainingData expects from monster documents.
func TrainingTable(table *data.Table) (*data.Table, error) {
	if table == nil {
		return nil, fmt.Errorf("%w: no training table", ErrConfiguration)
	}
	return table.Select(append(FeatureNames(), LabelColumn)...)
}
