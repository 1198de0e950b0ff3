package ml

import (
	"encoding/json"
	"errors"
	"fmt"
)

// AlgorithmName is the display name of the one supported algorithm family.
const AlgorithmName = "Random Forest Classifier"

const artifactFormat = "random_forest/v1"

type artifact struct {
	Format string          `json:"format"`
	Model  json.RawMessage `json:"model"`
}

// EncodeModel serialises a fitted classifier into an artifact.
func EncodeModel(model Classifier) ([]byte, error) {
	switch m := model.(type) {
	case *RandomForest:
		payload, err := json.Marshal(m)
		if err != nil {
			return nil, err
		}
		return json.Marshal(artifact{Format: artifactFormat, Model: payload})
	default:
		return nil, fmt.Errorf("unsupported model type %T", model)
	}
}

// LoadModel decodes an artifact written by EncodeModel.
func LoadModel(payload []byte) (Classifier, error) {
	var envelope artifact
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	switch envelope.Format {
	case artifactFormat:
		model := &RandomForest{}
		if err := json.Unmarshal(envelope.Model, model); err != nil {
			return nil, fmt.Errorf("decode random forest: %w", err)
		}
		return model, nil
	case "":
		return nil, errors.New("artifact has no format")
	default:
		return nil, fmt.Errorf("unsupported artifact format %q", envelope.Format)
	}
}
