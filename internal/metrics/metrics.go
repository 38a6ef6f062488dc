// Package metrics computes held-out classification metrics.
package metrics

import (
	"fmt"
	"strings"
)

// ClassMetrics holds per-class precision, recall and F1.
type ClassMetrics struct {
	Label     string  `json:"label"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// Averages holds the macro and support-weighted means.
type Averages struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// Evaluation is the full held-out evaluation of a classifier.
type Evaluation struct {
	Accuracy        float64        `json:"accuracy"`
	Classes         []ClassMetrics `json:"classes"`
	MacroAvg        Averages       `json:"macro_avg"`
	WeightedAvg     Averages       `json:"weighted_avg"`
	ConfusionMatrix [][]int        `json:"confusion_matrix"`
}

// ConfusionMatrix counts rows = true class, columns = predicted class.
func ConfusionMatrix(yTrue, yPred []int, k int) ([][]int, error) {
	if len(yTrue) != len(yPred) {
		return nil, fmt.Errorf("metrics: %d true labels but %d predictions", len(yTrue), len(yPred))
	}
	cm := make([][]int, k)
	for i := range cm {
		cm[i] = make([]int, k)
	}
	for i := range yTrue {
		t, p := yTrue[i], yPred[i]
		if t < 0 || t >= k || p < 0 || p >= k {
			return nil, fmt.Errorf("metrics: class index out of range at %d", i)
		}
		cm[t][p]++
	}
	return cm, nil
}

// Evaluate computes accuracy, per-class metrics and the confusion matrix.
// labels gives the class names in index order. Undefined ratios (no
// predictions or no support) are reported as 0.
func Evaluate(yTrue, yPred []int, labels []string) (*Evaluation, error) {
	k := len(labels)
	cm, err := ConfusionMatrix(yTrue, yPred, k)
	if err != nil {
		return nil, err
	}

	ev := &Evaluation{ConfusionMatrix: cm, Classes: make([]ClassMetrics, k)}
	n := len(yTrue)
	correct := 0
	for c := 0; c < k; c++ {
		correct += cm[c][c]
	}
	if n > 0 {
		ev.Accuracy = float64(correct) / float64(n)
	}

	for c := 0; c < k; c++ {
		tp := cm[c][c]
		predicted, support := 0, 0
		for j := 0; j < k; j++ {
			predicted += cm[j][c]
			support += cm[c][j]
		}
		m := ClassMetrics{Label: labels[c], Support: support}
		m.Precision = ratio(tp, predicted)
		m.Recall = ratio(tp, support)
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		ev.Classes[c] = m

		ev.MacroAvg.Precision += m.Precision / float64(k)
		ev.MacroAvg.Recall += m.Recall / float64(k)
		ev.MacroAvg.F1 += m.F1 / float64(k)
		if n > 0 {
			w := float64(support) / float64(n)
			ev.WeightedAvg.Precision += m.Precision * w
			ev.WeightedAvg.Recall += m.Recall * w
			ev.WeightedAvg.F1 += m.F1 * w
		}
	}
	return ev, nil
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}

// Report renders a plain-text classification report.
func (e *Evaluation) Report() string {
	width := len("weighted avg")
	for _, c := range e.Classes {
		if len(c.Label) > width {
			width = len(c.Label)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%*s %10s %10s %10s %10s\n\n", width, "", "precision", "recall", "f1-score", "support")
	total := 0
	for _, c := range e.Classes {
		fmt.Fprintf(&b, "%*s %10.2f %10.2f %10.2f %10d\n", width, c.Label, c.Precision, c.Recall, c.F1, c.Support)
		total += c.Support
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%*s %10s %10s %10.2f %10d\n", width, "accuracy", "", "", e.Accuracy, total)
	fmt.Fprintf(&b, "%*s %10.2f %10.2f %10.2f %10d\n", width, "macro avg", e.MacroAvg.Precision, e.MacroAvg.Recall, e.MacroAvg.F1, total)
	fmt.Fprintf(&b, "%*s %10.2f %10.2f %10.2f %10d\n", width, "weighted avg", e.WeightedAvg.Precision, e.WeightedAvg.Recall, e.WeightedAvg.F1, total)
	return b.String()
}
