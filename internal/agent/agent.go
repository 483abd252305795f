// Package agent builds natural-language tasks for the browser automation
// runner and adapts whatever the runner yields into a RunOutcome, isolating
// the rest of the system from the runner's own result shape.
package agent

import (
	"context"
	"fmt"
)

// StepRecord is one automation step. Either field may be empty.
type StepRecord struct {
	// ActionOutcome carries the action payload keyed by action name. A
	// terminal step holds a "done" entry with "success" and "text" keys.
	ActionOutcome map[string]interface{} `json:"action,omitempty"`
	// Observation is what the step saw, often a JSON document.
	Observation string `json:"observation,omitempty"`
}

// RunOutcome is the explicit variant of an agent run result: a consolidated
// final text when the runner produced one, otherwise the raw step trail.
// Consumers check FinalText first and fall back to scanning Steps.
type RunOutcome struct {
	FinalText string
	Steps     []StepRecord
}

// Runner executes one natural-language task. A single attempt; errors
// propagate to the caller unchanged.
type Runner interface {
	Run(ctx context.Context, task string) (RunOutcome, error)
}

// MedicineInfoAgent looks up one medicine on drugs.com.
type MedicineInfoAgent struct {
	Runner       Runner
	MedicineName string
}

func (a *MedicineInfoAgent) buildTask() string {
	return fmt.Sprintf(`Navigate to drugs.com and search for the medicine %q.
Once on the search results page, click on the most relevant result for the medicine.
Extract the following information from the page:
- Generic name
- Brand names
- Dosage forms
- Drug class
Format the extracted information into a structured JSON object with the following keys:
{
    "generic_name": "",
    "brand_names": "",
    "dosage_forms": "",
    "drug_class": ""
}
If any of the fields are not available, use "N/A" as the value.`, a.MedicineName)
}

func (a *MedicineInfoAgent) Run(ctx context.Context) (RunOutcome, error) {
	return a.Runner.Run(ctx, a.buildTask())
}

// SQLAnalysisAgent answers a database question through the query relay tools.
type SQLAnalysisAgent struct {
	Runner Runner
	Prompt string
}

func (a *SQLAnalysisAgent) buildTask() string {
	return fmt.Sprintf(`You are an expert in SQL and database analysis. Use the SQLite query tools to help with the following request:

%s

Remember to:
1. Use read_query for SELECT queries to retrieve data
2. Use write_query for INSERT, UPDATE, or DELETE operations
3. Use list_tables to see what tables are available
4. Use append_insight to record important insights discovered

Provide clear explanations before and after running queries, and summarize the findings in a helpful way.`, a.Prompt)
}

func (a *SQLAnalysisAgent) Run(ctx context.Context) (RunOutcome, error) {
	return a.Runner.Run(ctx, a.buildTask())
}
