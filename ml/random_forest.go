package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
)

var errNotFitted = errors.New("random forest is not fitted")

// RandomForest is a bagged ensemble of CART trees. Class probabilities are
// the mean of the leaf distributions of all trees.
type RandomForest struct {
	NEstimators     int
	MaxDepth        int
	MinSamplesSplit int
	// MaxFeatures is the number of features tried per split, 0 means sqrt(p).
	MaxFeatures int
	Bootstrap   bool
	RandomState int64

	classes   []string
	nFeatures int
	trees     []*DecisionTree
}

type ForestOption func(*RandomForest)

func WithEstimators(n int) ForestOption { return func(rf *RandomForest) { rf.NEstimators = n } }
func WithMaxDepth(d int) ForestOption { return func(rf *RandomForest) { rf.MaxDepth = d } }
func WithMinSamplesSplit(n int) ForestOption { return func(rf *RandomForest) { rf.MinSamplesSplit = n } }
func WithMaxFeatures(k int) ForestOption { return func(rf *RandomForest) { rf.MaxFeatures = k } }
func WithBootstrap(b bool) ForestOption { return func(rf *RandomForest) { rf.Bootstrap = b } }
func WithRandomState(seed int64) ForestOption { return func(rf *RandomForest) { rf.RandomState = seed } }

func NewRandomForest(opts ...ForestOption) *RandomForest {
	rf := &RandomForest{
		NEstimators:     100,
		MaxDepth:        0,
		MinSamplesSplit: 2,
		MaxFeatures:     0,
		Bootstrap:       true,
		RandomState:     42,
	}
	for _, opt := range opts {
		opt(rf)
	}
	return rf
}

// Fit trains every tree concurrently. Tree i draws from its own source seeded
// with RandomState+i, so the result does not depend on scheduling.
func (rf *RandomForest) Fit(features [][]float64, labels []string) error {
	if len(rf.trees) > 0 {
		return errors.New("random forest is already fitted")
	}
	if len(features) == 0 {
		return errors.New("features are empty")
	}
	if len(features) != len(labels) {
		return fmt.Errorf("features and labels size mismatch: %d rows, %d labels", len(features), len(labels))
	}
	nFeatures := len(features[0])
	if nFeatures == 0 {
		return errors.New("feature set is empty")
	}
	for i, row := range features {
		if len(row) != nFeatures {
			return fmt.Errorf("row %d has %d features, expected %d", i, len(row), nFeatures)
		}
		for _, value := range row {
			if math.IsNaN(value) || math.IsInf(value, 0) {
				return fmt.Errorf("row %d has a non-finite feature", i)
			}
		}
	}
	if rf.NEstimators <= 0 {
		return fmt.Errorf("invalid number of estimators: %d", rf.NEstimators)
	}

	classes, encoded, err := encodeLabels(labels)
	if err != nil {
		return err
	}

	maxFeatures := rf.MaxFeatures
	if maxFeatures <= 0 {
		maxFeatures = int(math.Sqrt(float64(nFeatures)))
	}
	if maxFeatures < 1 {
		maxFeatures = 1
	}

	trees := make([]*DecisionTree, rf.NEstimators)
	errs := make([]error, rf.NEstimators)
	var wg sync.WaitGroup
	for i := 0; i < rf.NEstimators; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			rnd := rand.New(rand.NewSource(rf.RandomState + int64(idx)))

			var samples []int
			if rf.Bootstrap {
				samples = make([]int, len(features))
				for j := range samples {
					samples[j] = rnd.Intn(len(features))
				}
			}

			tree := &DecisionTree{
				MaxDepth:        rf.MaxDepth,
				MinSamplesSplit: rf.MinSamplesSplit,
				MaxFeatures:     maxFeatures,
			}
			if err := tree.Train(features, encoded, len(classes), samples, rnd); err != nil {
				errs[idx] = fmt.Errorf("tree %d: %w", idx, err)
				return
			}
			trees[idx] = tree
		}(i)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return err
	}

	rf.classes = classes
	rf.nFeatures = nFeatures
	rf.trees = trees
	return nil
}

// Predict returns the most probable class per row. Ties go to the class that
// sorts first.
func (rf *RandomForest) Predict(features [][]float64) ([]string, error) {
	probabilities, err := rf.PredictProba(features)
	if err != nil {
		return nil, err
	}
	labels := make([]string, len(probabilities))
	for i, row := range probabilities {
		labels[i] = rf.classes[argmax(row)]
	}
	return labels, nil
}

func (rf *RandomForest) PredictProba(features [][]float64) ([][]float64, error) {
	if len(rf.trees) == 0 {
		return nil, errNotFitted
	}
	out := make([][]float64, len(features))
	for i, row := range features {
		if len(row) != rf.nFeatures {
			return nil, fmt.Errorf("row %d has %d features, expected %d", i, len(row), rf.nFeatures)
		}
		sum := make([]float64, len(rf.classes))
		for _, tree := range rf.trees {
			probabilities, err := tree.Probabilities(row)
			if err != nil {
				return nil, err
			}
			for j, p := range probabilities {
				sum[j] += p
			}
		}
		for j := range sum {
			sum[j] /= float64(len(rf.trees))
		}
		out[i] = sum
	}
	return out, nil
}

func (rf *RandomForest) Classes() []string {
	return append([]string(nil), rf.classes...)
}

type forestState struct {
	NEstimators     int             `json:"n_estimators"`
	MaxDepth        int             `json:"max_depth"`
	MinSamplesSplit int             `json:"min_samples_split"`
	MaxFeatures     int             `json:"max_features"`
	Bootstrap       bool            `json:"bootstrap"`
	RandomState     int64           `json:"random_state"`
	Classes         []string        `json:"classes"`
	NFeatures       int             `json:"n_features"`
	Trees           []*DecisionTree `json:"trees"`
}

func (rf *RandomForest) MarshalJSON() ([]byte, error) {
	if len(rf.trees) == 0 {
		return nil, errNotFitted
	}
	return json.Marshal(forestState{
		NEstimators:     rf.NEstimators,
		MaxDepth:        rf.MaxDepth,
		MinSamplesSplit: rf.MinSamplesSplit,
		MaxFeatures:     rf.MaxFeatures,
		Bootstrap:       rf.Bootstrap,
		RandomState:     rf.RandomState,
		Classes:         rf.classes,
		NFeatures:       rf.nFeatures,
		Trees:           rf.trees,
	})
}

func (rf *RandomForest) UnmarshalJSON(payload []byte) error {
	var state forestState
	if err := json.Unmarshal(payload, &state); err != nil {
		return err
	}
	if len(state.Trees) == 0 {
		return errors.New("forest has no trees")
	}
	if len(state.Classes) == 0 {
		return errors.New("forest has no classes")
	}
	if state.NFeatures <= 0 {
		return errors.New("forest has no features")
	}
	for i, tree := range state.Trees {
		if tree == nil {
			return fmt.Errorf("tree %d is empty", i)
		}
		if tree.classCount() != len(state.Classes) {
			return fmt.Errorf("tree %d does not match %d classes", i, len(state.Classes))
		}
	}

	rf.NEstimators = state.NEstimators
	rf.MaxDepth = state.MaxDepth
	rf.MinSamplesSplit = state.MinSamplesSplit
	rf.MaxFeatures = state.MaxFeatures
	rf.Bootstrap = state.Bootstrap
	rf.RandomState = state.RandomState
	rf.classes = state.Classes
	rf.nFeatures = state.NFeatures
	rf.trees = state.Trees
	return nil
}

// encodeLabels maps labels to indices of the sorted distinct label list.
func encodeLabels(labels []string) ([]string, []int, error) {
	seen := make(map[string]struct{})
	for i, label := range labels {
		if label == "" {
			return nil, nil, fmt.Errorf("row %d has an empty label", i)
		}
		seen[label] = struct{}{}
	}
	classes := make([]string, 0, len(seen))
	for label := range seen {
		classes = append(classes, label)
	}
	sort.Strings(classes)

	index := make(map[string]int, len(classes))
	for i, class := range classes {
		index[class] = i
	}
	encoded := make([]int, len(labels))
	for i, label := range labels {
		encoded[i] = index[label]
	}
	return classes, encoded, nil
}
