package agent

import (
	"context"
	"strings"
	"testing"
)

type captureRunner struct {
	task string
}

func (r *captureRunner) Run(ctx context.Context, task string) (RunOutcome, error) {
	r.task = task
	return RunOutcome{}, nil
}

func TestMedicineInfoTaskContents(t *testing.T) {
	r := &captureRunner{}
	if _, err := (&MedicineInfoAgent{Runner: r, MedicineName: "Lisinopril"}).Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, want := range []string{`"Lisinopril"`, "drugs.com", "generic_name", "brand_names", "dosage_forms", "drug_class", "N/A"} {
		if !strings.Contains(r.task, want) {
			t.Fatalf("task missing %q:\n%s", want, r.task)
		}
	}
}

func TestSQLAnalysisTaskContents(t *testing.T) {
	r := &captureRunner{}
	if _, err := (&SQLAnalysisAgent{Runner: r, Prompt: "count medicines per category"}).Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, want := range []string{"count medicines per category", "read_query", "write_query"} {
		if !strings.Contains(r.task, want) {
			t.Fatalf("task missing %q:\n%s", want, r.task)
		}
	}
}
