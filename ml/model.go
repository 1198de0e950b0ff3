package ml

// Classifier is a trainable multi-class classifier. Implementations must be
// safe for concurrent Predict and PredictProba calls once Fit has returned.
type Classifier interface {
	Fit(features [][]float64, labels []string) error
	Predict(features [][]float64) ([]string, error)
	// PredictProba returns one probability vector per row, aligned with Classes.
	PredictProba(features [][]float64) ([][]float64, error)
	Classes() []string
}

// Predictor serves single-record predictions.
type Predictor interface {
	Predict(request Request) (Prediction, error)
}
