package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sort"
)

// DecisionTree is a CART classifier over class indices. Nodes are stored in
// pre-order with absolute child indices, leaves carry class probabilities.
type DecisionTree struct {
	MaxDepth        int
	MinSamplesSplit int
	MaxFeatures     int

	nodes []TreeNode
}

type TreeNode struct {
	FeatureIdx    int       `json:"feature_idx"`
	Threshold     float64   `json:"threshold"`
	LeftChild     int       `json:"left_child"`
	RightChild    int       `json:"right_child"`
	Probabilities []float64 `json:"probabilities,omitempty"`
	IsLeaf        bool      `json:"is_leaf"`
}

// treeBuilder holds the training data shared by every node of one fit.
type treeBuilder struct {
	features [][]float64
	labels   []int
	nClasses int
	rnd      *rand.Rand
}

// Train fits the tree on the rows listed in samples. Repeated indices act as
// sample weights, a nil samples slice uses every row once.
func (dt *DecisionTree) Train(features [][]float64, labels []int, nClasses int, samples []int, rnd *rand.Rand) error {
	if len(features) == 0 || len(labels) == 0 {
		return errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return errors.New("features and labels size mismatch")
	}
	if nClasses <= 0 {
		return errors.New("no classes to learn")
	}
	for _, label := range labels {
		if label < 0 || label >= nClasses {
			return fmt.Errorf("label %d out of range", label)
		}
	}
	if samples == nil {
		samples = make([]int, len(features))
		for i := range samples {
			samples[i] = i
		}
	}
	if len(samples) == 0 {
		return errors.New("no samples to train on")
	}
	if rnd == nil {
		rnd = rand.New(rand.NewSource(0))
	}

	builder := &treeBuilder{
		features: features,
		labels:   labels,
		nClasses: nClasses,
		rnd:      rnd,
	}
	dt.nodes = nil
	dt.buildNode(builder, samples, 0)
	return nil
}

// Probabilities returns the class distribution of the leaf the row falls in.
func (dt *DecisionTree) Probabilities(features []float64) ([]float64, error) {
	if len(dt.nodes) == 0 {
		return nil, errors.New("model not trained")
	}
	idx := 0
	for {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return node.Probabilities, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return nil, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(dt.nodes) {
			return nil, errors.New("invalid tree state")
		}
	}
}

type treeState struct {
	MaxDepth        int        `json:"max_depth"`
	MinSamplesSplit int        `json:"min_samples_split"`
	MaxFeatures     int        `json:"max_features"`
	Nodes           []TreeNode `json:"nodes"`
}

func (dt *DecisionTree) MarshalJSON() ([]byte, error) {
	if len(dt.nodes) == 0 {
		return nil, errors.New("model not trained")
	}
	return json.Marshal(treeState{
		MaxDepth:        dt.MaxDepth,
		MinSamplesSplit: dt.MinSamplesSplit,
		MaxFeatures:     dt.MaxFeatures,
		Nodes:           dt.nodes,
	})
}

func (dt *DecisionTree) UnmarshalJSON(payload []byte) error {
	var state treeState
	if err := json.Unmarshal(payload, &state); err != nil {
		return err
	}
	if err := validateNodes(state.Nodes); err != nil {
		return err
	}
	dt.MaxDepth = state.MaxDepth
	dt.MinSamplesSplit = state.MinSamplesSplit
	dt.MaxFeatures = state.MaxFeatures
	dt.nodes = state.Nodes
	return nil
}

func (dt *DecisionTree) classCount() int {
	for _, node := range dt.nodes {
		if node.IsLeaf {
			return len(node.Probabilities)
		}
	}
	return 0
}

func (dt *DecisionTree) buildNode(b *treeBuilder, samples []int, depth int) int {
	counts := b.classCounts(samples)
	idx := len(dt.nodes)
	dt.nodes = append(dt.nodes, leafNode(counts))

	minSplit := dt.MinSamplesSplit
	if minSplit < 2 {
		minSplit = 2
	}
	if (dt.MaxDepth > 0 && depth >= dt.MaxDepth) || len(samples) < minSplit || isPure(counts) {
		return idx
	}

	feature, threshold, ok := b.bestSplit(samples, counts, dt.MaxFeatures)
	if !ok {
		return idx
	}

	left := make([]int, 0, len(samples))
	right := make([]int, 0, len(samples))
	for _, sample := range samples {
		if b.features[sample][feature] <= threshold {
			left = append(left, sample)
		} else {
			right = append(right, sample)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return idx
	}

	leftChild := dt.buildNode(b, left, depth+1)
	rightChild := dt.buildNode(b, right, depth+1)
	dt.nodes[idx] = TreeNode{
		FeatureIdx: feature,
		Threshold:  threshold,
		LeftChild:  leftChild,
		RightChild: rightChild,
		IsLeaf:     false,
	}
	return idx
}

func (b *treeBuilder) classCounts(samples []int) []int {
	counts := make([]int, b.nClasses)
	for _, sample := range samples {
		counts[b.labels[sample]]++
	}
	return counts
}

// bestSplit scans midpoints between distinct sorted values of a random subset
// of maxFeatures features and returns the split with the largest Gini gain.
func (b *treeBuilder) bestSplit(samples []int, counts []int, maxFeatures int) (int, float64, bool) {
	featureCount := len(b.features[0])
	candidates := b.rnd.Perm(featureCount)
	if maxFeatures > 0 && maxFeatures < featureCount {
		candidates = candidates[:maxFeatures]
	}

	total := float64(len(samples))
	parent := gini(counts, len(samples))
	bestFeature := -1
	bestThreshold := 0.0
	bestGain := 1e-12

	sorted := make([]int, len(samples))
	leftCounts := make([]int, b.nClasses)
	rightCounts := make([]int, b.nClasses)
	for _, featureIdx := range candidates {
		copy(sorted, samples)
		sort.SliceStable(sorted, func(i, j int) bool {
			return b.features[sorted[i]][featureIdx] < b.features[sorted[j]][featureIdx]
		})

		for i := range leftCounts {
			leftCounts[i] = 0
		}
		copy(rightCounts, counts)

		for s := 1; s < len(sorted); s++ {
			moved := b.labels[sorted[s-1]]
			leftCounts[moved]++
			rightCounts[moved]--

			previous := b.features[sorted[s-1]][featureIdx]
			current := b.features[sorted[s]][featureIdx]
			if previous == current {
				continue
			}

			nLeft := s
			nRight := len(sorted) - s
			weighted := (float64(nLeft)*gini(leftCounts, nLeft) + float64(nRight)*gini(rightCounts, nRight)) / total
			if gain := parent - weighted; gain > bestGain {
				bestGain = gain
				bestFeature = featureIdx
				bestThreshold = previous + (current-previous)/2
			}
		}
	}

	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

func leafNode(counts []int) TreeNode {
	total := 0
	for _, count := range counts {
		total += count
	}
	probabilities := make([]float64, len(counts))
	if total > 0 {
		for i, count := range counts {
			probabilities[i] = float64(count) / float64(total)
		}
	}
	return TreeNode{
		FeatureIdx:    -1,
		LeftChild:     -1,
		RightChild:    -1,
		Probabilities: probabilities,
		IsLeaf:        true,
	}
}

func validateNodes(nodes []TreeNode) error {
	if len(nodes) == 0 {
		return errors.New("tree has no nodes")
	}
	classes := -1
	for i, node := range nodes {
		if node.IsLeaf {
			if len(node.Probabilities) == 0 {
				return fmt.Errorf("leaf %d has no probabilities", i)
			}
			if classes == -1 {
				classes = len(node.Probabilities)
			} else if classes != len(node.Probabilities) {
				return fmt.Errorf("leaf %d has %d classes, expected %d", i, len(node.Probabilities), classes)
			}
			continue
		}
		// Pre-order layout: children always come after their parent.
		if node.LeftChild <= i || node.LeftChild >= len(nodes) || node.RightChild <= i || node.RightChild >= len(nodes) {
			return fmt.Errorf("node %d has invalid children", i)
		}
		if node.FeatureIdx < 0 {
			return fmt.Errorf("node %d has invalid feature index", i)
		}
	}
	return nil
}

func gini(counts []int, total int) float64 {
	if total == 0 {
		return 0
	}
	impurity := 1.0
	for _, count := range counts {
		prob := float64(count) / float64(total)
		impurity -= prob * prob
	}
	return impurity
}

func isPure(counts []int) bool {
	nonZero := 0
	for _, count := range counts {
		if count > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}

func argmax(values []float64) int {
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return best
}
