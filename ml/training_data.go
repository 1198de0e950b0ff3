package ml

import (
	"errors"
	"fmt"

	"bandersnatch/data"
)

// BuildTrainingSet splits a table into the label column and a feature matrix
// made of every other column in table order.
func BuildTrainingSet(table *data.Table) (features [][]float64, labels []string, err error) {
	if table == nil {
		return nil, nil, errors.New("table is nil")
	}
	if !table.HasColumn(LabelColumn) {
		return nil, nil, fmt.Errorf("label column %s is missing", LabelColumn)
	}
	if table.Len() == 0 {
		return nil, nil, errors.New("table is empty")
	}

	target, err := table.Column(LabelColumn)
	if err != nil {
		return nil, nil, err
	}
	basis := table.Drop(LabelColumn)
	columns := basis.Columns()
	if len(columns) == 0 {
		return nil, nil, errors.New("no feature columns")
	}

	labels = make([]string, len(target))
	for i, value := range target {
		switch v := value.(type) {
		case nil:
			return nil, nil, fmt.Errorf("row %d has no %s value", i, LabelColumn)
		case string:
			labels[i] = v
		default:
			labels[i] = fmt.Sprint(v)
		}
		if labels[i] == "" {
			return nil, nil, fmt.Errorf("row %d has no %s value", i, LabelColumn)
		}
	}

	features = make([][]float64, basis.Len())
	for i := range features {
		row := basis.Row(i)
		vector := make([]float64, len(columns))
		for j, column := range columns {
			f, ok := data.Float(row[column])
			if !ok {
				return nil, nil, fmt.Errorf("row %d column %s is not numeric", i, column)
			}
			vector[j] = f
		}
		features[i] = vector
	}
	return features, labels, nil
}
