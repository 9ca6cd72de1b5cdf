package classifier

import "github.com/giygas/ddi-engine/entities"

// Predicted severity table. The score of a prediction is the highest
// probability x category weight over its significant labels.
const (
	MajorScore    = 0.75
	ModerateScore = 0.55
)

// MapSeverity maps the significant labels of a prediction to a severity.
// No significant label means no predicted interaction.
func MapSeverity(significant []entities.LabelScore) entities.Severity {
	if len(significant) == 0 {
		return entities.SeverityNone
	}

	score := 0.0
	for _, l := range significant {
		score = max(score, l.Probability*l.Weight)
	}

	switch {
	case score >= MajorScore:
		return entities.SeverityMajor
	case score >= ModerateScore:
		return entities.SeverityModerate
	default:
		return entities.SeverityMinor
	}
}
