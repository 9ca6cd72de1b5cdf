// Package classifier runs the multi-label interaction model: weight loading,
// the batched forward pass, canonical pair ordering, top_k ranking, the
// predicted severity table and the micro-batcher in front of inference.
package classifier

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// layerFile is one dense layer as stored on disk. Weights has one row per
// output unit.
type layerFile struct {
	Weights [][]float32 `json:"weights"`
	Bias    []float32   `json:"bias"`
}

type modelFile struct {
	InputDim int         `json:"input_dim"`
	Layers   []layerFile `json:"layers"`
	Labels   []labelFile `json:"labels,omitempty"`
}

type layer struct {
	in, out int
	// row-major out x in
	weights []float32
	bias    []float32
}

// Model is a feed-forward network with ReLU hidden layers and sigmoid
// outputs. It is immutable after construction and safe for concurrent use.
type Model struct {
	inputDim int
	layers   []layer
}

// NewModel validates the layer shapes. weights[i] is out x in for layer i.
func NewModel(inputDim int, weights [][][]float32, biases [][]float32) (*Model, error) {
	if inputDim <= 0 {
		return nil, fmt.Errorf("input dimension must be positive, got %d", inputDim)
	}
	if len(weights) == 0 {
		return nil, fmt.Errorf("model has no layers")
	}
	if len(weights) != len(biases) {
		return nil, fmt.Errorf("model has %d weight matrices but %d bias vectors", len(weights), len(biases))
	}

	m := &Model{inputDim: inputDim}
	in := inputDim
	for i, w := range weights {
		out := len(w)
		if out == 0 {
			return nil, fmt.Errorf("layer %d has no units", i)
		}
		if len(biases[i]) != out {
			return nil, fmt.Errorf("layer %d has %d units but %d biases", i, out, len(biases[i]))
		}
		flat := make([]float32, 0, out*in)
		for j, row := range w {
			if len(row) != in {
				return nil, fmt.Errorf("layer %d unit %d has %d weights, expected %d", i, j, len(row), in)
			}
			flat = append(flat, row...)
		}
		m.layers = append(m.layers, layer{in: in, out: out, weights: flat, bias: append([]float32(nil), biases[i]...)})
		in = out
	}
	return m, nil
}

// InputDim is the length of one input vector
func (m *Model) InputDim() int {
	return m.inputDim
}

// OutputDim is the number of labels
func (m *Model) OutputDim() int {
	return m.layers[len(m.layers)-1].out
}

// Forward computes label probabilities for every input row
func (m *Model) Forward(inputs [][]float32) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i, x := range inputs {
		if len(x) != m.inputDim {
			return nil, fmt.Errorf("input %d has %d features, model expects %d", i, len(x), m.inputDim)
		}
		out[i] = m.forwardOne(x)
	}
	return out, nil
}

func (m *Model) forwardOne(x []float32) []float32 {
	act := x
	last := len(m.layers) - 1
	for li, l := range m.layers {
		next := make([]float32, l.out)
		for j := 0; j < l.out; j++ {
			row := l.weights[j*l.in : (j+1)*l.in]
			sum := l.bias[j]
			for k, v := range act {
				sum += row[k] * v
			}
			if li == last {
				next[j] = sigmoid(sum)
			} else if sum > 0 {
				next[j] = sum
			}
		}
		act = next
	}
	return act
}

func sigmoid(x float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(x))))
}

// LoadModel reads a JSON weights file. The returned labels are those
// embedded in the file, possibly none.
func LoadModel(path string) (*Model, []labelFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read model: %w", err)
	}

	var mf modelFile
	if err := json.Unmarshal(raw, &mf); err != nil {
		return nil, nil, fmt.Errorf("decode model: %w", err)
	}

	weights := make([][][]float32, len(mf.Layers))
	biases := make([][]float32, len(mf.Layers))
	for i, l := range mf.Layers {
		weights[i] = l.Weights
		biases[i] = l.Bias
	}

	m, err := NewModel(mf.InputDim, weights, biases)
	if err != nil {
		return nil, nil, err
	}
	return m, mf.Labels, nil
}
