package ml

import (
	"errors"
	"fmt"
	"sort"

	"bandersnatch/data"
)

type ClassMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	Support   int     `json:"support"`
}

type Metrics struct {
	Accuracy float64                 `json:"accuracy"`
	Samples  int                     `json:"samples"`
	Classes  map[string]ClassMetrics `json:"classes"`
}

// Evaluate predicts every row of a labelled table and compares the result
// with its LabelColumn.
func Evaluate(model Predictor, test *data.Table) (Metrics, error) {
	if test == nil || test.Len() == 0 {
		return Metrics{}, errors.New("test table is empty")
	}
	if !test.HasColumn(LabelColumn) {
		return Metrics{}, fmt.Errorf("label column %s is missing", LabelColumn)
	}

	var correct int
	predicted := make(map[string]int)
	actual := make(map[string]int)
	truePositive := make(map[string]int)

	for i := 0; i < test.Len(); i++ {
		row := test.Row(i)
		label := fmt.Sprint(row[LabelColumn])
		result, err := model.Predict(row)
		if err != nil {
			return Metrics{}, fmt.Errorf("row %d: %w", i, err)
		}
		predicted[result.Label]++
		actual[label]++
		if result.Label == label {
			correct++
			truePositive[label]++
		}
	}

	labels := make([]string, 0, len(actual))
	for label := range actual {
		labels = append(labels, label)
	}
	for label := range predicted {
		if _, ok := actual[label]; !ok {
			labels = append(labels, label)
		}
	}
	sort.Strings(labels)

	metrics := Metrics{
		Accuracy: float64(correct) / float64(test.Len()),
		Samples:  test.Len(),
		Classes:  make(map[string]ClassMetrics, len(labels)),
	}
	for _, label := range labels {
		var class ClassMetrics
		class.Support = actual[label]
		if predicted[label] > 0 {
			class.Precision = float64(truePositive[label]) / float64(predicted[label])
		}
		if actual[label] > 0 {
			class.Recall = float64(truePositive[label]) / float64(actual[label])
		}
		metrics.Classes[label] = class
	}
	return metrics, nil
}
