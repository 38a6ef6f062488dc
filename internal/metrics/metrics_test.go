package metrics

import (
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestConfusionMatrix(t *testing.T) {
	yTrue := []int{0, 0, 1, 1, 2}
	yPred := []int{0, 1, 1, 1, 0}

	cm, err := ConfusionMatrix(yTrue, yPred, 3)
	if err != nil {
		t.Fatalf("ConfusionMatrix failed: %v", err)
	}

	want := [][]int{
		{1, 1, 0},
		{0, 2, 0},
		{1, 0, 0},
	}
	if diff := cmp.Diff(want, cm); diff != "" {
		t.Errorf("matrix mismatch (-want +got):\n%s", diff)
	}
}

func TestConfusionMatrixErrors(t *testing.T) {
	if _, err := ConfusionMatrix([]int{0}, []int{0, 1}, 2); err == nil {
		t.Error("Expected length mismatch error")
	}
	if _, err := ConfusionMatrix([]int{0}, []int{3}, 2); err == nil {
		t.Error("Expected out of range error")
	}
}

func TestEvaluate(t *testing.T) {
	yTrue := []int{0, 0, 0, 1, 1}
	yPred := []int{0, 0, 1, 1, 1}

	ev, err := Evaluate(yTrue, yPred, []string{"CP", "FP"})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if math.Abs(ev.Accuracy-0.8) > 1e-12 {
		t.Errorf("Expected accuracy 0.8, got %v", ev.Accuracy)
	}

	cp := ev.Classes[0]
	if cp.Precision != 1 || math.Abs(cp.Recall-2.0/3.0) > 1e-12 || cp.Support != 3 {
		t.Errorf("Unexpected CP metrics %+v", cp)
	}
	fp := ev.Classes[1]
	if math.Abs(fp.Precision-2.0/3.0) > 1e-12 || fp.Recall != 1 || fp.Support != 2 {
		t.Errorf("Unexpected FP metrics %+v", fp)
	}
	if math.Abs(cp.F1-0.8) > 1e-12 {
		t.Errorf("Expected CP F1 0.8, got %v", cp.F1)
	}
}

func TestEvaluateNoPredictionsForClass(t *testing.T) {
	ev, err := Evaluate([]int{0, 1}, []int{0, 0}, []string{"a", "b"})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if ev.Classes[1].Precision != 0 || ev.Classes[1].F1 != 0 {
		t.Errorf("Expected zero metrics for never-predicted class, got %+v", ev.Classes[1])
	}
}

func TestReport(t *testing.T) {
	ev, _ := Evaluate([]int{0, 1}, []int{0, 1}, []string{"Confirmed Planet", "False Positive"})
	report := ev.Report()

	for _, want := range []string{"precision", "Confirmed Planet", "False Positive", "accuracy", "macro avg", "weighted avg"} {
		if !strings.Contains(report, want) {
			t.Errorf("Report missing %q:\n%s", want, report)
		}
	}
}
