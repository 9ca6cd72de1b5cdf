package classifier

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/giygas/ddi-engine/entities"
)

// DefaultLabelWeight is the category weight of labels without one
const DefaultLabelWeight = 0.6

// labelFile accepts either a bare name or {"name": ..., "weight": ...}
type labelFile struct {
	Name   string   `json:"name"`
	Weight *float64 `json:"weight,omitempty"`
}

func (l *labelFile) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		l.Name = name
		return nil
	}
	type plain labelFile
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("label must be a string or an object: %w", err)
	}
	*l = labelFile(p)
	return nil
}

// commonSideEffects names the first labels when no label file is available
var commonSideEffects = []string{
	"Nausea", "Headache", "Dizziness", "Fatigue", "Diarrhea",
	"Abdominal Pain", "Vomiting", "Constipation", "Rash", "Fever",
	"Insomnia", "Anxiety", "Depression", "Hypertension", "Hypotension",
	"Tachycardia", "Bradycardia", "Dyspnea", "Cough", "Chest Pain",
	"Muscle Pain", "Joint Pain", "Back Pain", "Tremor", "Confusion",
	"Memory Loss", "Blurred Vision", "Dry Mouth", "Loss of Appetite",
	"Weight Gain", "Weight Loss", "Hair Loss", "Skin Discoloration",
	"Liver Dysfunction", "Kidney Dysfunction", "Anemia", "Thrombosis",
	"Bleeding", "Infection Risk", "Immune Suppression", "Allergic Reaction",
}

// categoryWeights scales label probabilities before severity mapping.
// Unlisted labels use DefaultLabelWeight.
var categoryWeights = map[string]float64{
	"bleeding":           1.0,
	"thrombosis":         1.0,
	"liver dysfunction":  0.9,
	"kidney dysfunction": 0.9,
	"allergic reaction":  0.85,
	"tachycardia":        0.85,
	"bradycardia":        0.85,
	"chest pain":         0.85,
	"dyspnea":            0.8,
	"hypotension":        0.8,
	"hypertension":       0.8,
	"immune suppression": 0.8,
	"anemia":             0.75,
	"confusion":          0.75,
	"infection risk":     0.75,
	"nausea":             0.5,
	"headache":           0.5,
	"dry mouth":          0.5,
	"constipation":       0.5,
	"hair loss":          0.5,
	"weight gain":        0.5,
	"cough":              0.5,
}

// categoryWeight returns the known weight of a label name
func categoryWeight(name string) float64 {
	if w, ok := categoryWeights[strings.ToLower(strings.TrimSpace(name))]; ok {
		return w
	}
	return DefaultLabelWeight
}

// readLabelFile reads a JSON array of labels, or a text file with one
// label name per line.
func readLabelFile(path string) ([]labelFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}

	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var labels []labelFile
		if err := json.Unmarshal([]byte(trimmed), &labels); err != nil {
			return nil, fmt.Errorf("decode labels: %w", err)
		}
		return labels, nil
	}

	var labels []labelFile
	for _, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		labels = append(labels, labelFile{Name: line})
	}
	return labels, nil
}

// buildLabels produces exactly n labels. Named entries come first, then the
// common side effect names, then "Side Effect N".
func buildLabels(named []labelFile, n int) ([]entities.Label, error) {
	if len(named) > n {
		return nil, fmt.Errorf("%d labels given for a model with %d outputs", len(named), n)
	}

	labels := make([]entities.Label, n)
	for i := range labels {
		var name string
		var weight *float64
		switch {
		case i < len(named) && strings.TrimSpace(named[i].Name) != "":
			name = strings.TrimSpace(named[i].Name)
			weight = named[i].Weight
		case i < len(commonSideEffects) && len(named) == 0:
			name = commonSideEffects[i]
		default:
			name = fmt.Sprintf("Side Effect %d", i+1)
		}

		w := categoryWeight(name)
		if weight != nil {
			w = *weight
		}
		if w < 0 || w > 1 {
			return nil, fmt.Errorf("label %q has weight %v outside [0, 1]", name, w)
		}
		labels[i] = entities.Label{Index: i, Name: name, Weight: w}
	}
	return labels, nil
}
