package browser

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

type scriptedLLM struct {
	replies []string
	calls   int
}

func (s *scriptedLLM) Complete(ctx context.Context, system, user string) (string, error) {
	s.calls++
	idx := s.calls - 1
	if idx >= len(s.replies) {
		idx = len(s.replies) - 1
	}
	return s.replies[idx], nil
}

func testRunner(llm *scriptedLLM) *Runner {
	return NewRunner(llm, 5, 3, time.Second, 1000)
}

func TestParseDirectiveActionsList(t *testing.T) {
	actions, err := parseDirective(`Sure, here you go:
{"actions": [{"navigate": {"url": "https://www.drugs.com"}}]}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(actions))
	}
	var act step
	if err := json.Unmarshal(actions[0], &act); err != nil || act.Navigate == nil {
		t.Fatalf("expected navigate action, got %s (%v)", actions[0], err)
	}
	if act.Navigate.URL != "https://www.drugs.com" {
		t.Fatalf("unexpected url %q", act.Navigate.URL)
	}
}

func TestParseDirectiveBareAction(t *testing.T) {
	actions, err := parseDirective(`{"done": {"success": true, "text": "answer"}}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(actions))
	}
}

func TestParseDirectiveRejectsProse(t *testing.T) {
	if _, err := parseDirective("I cannot help with that."); err == nil {
		t.Fatal("expected error for reply without JSON")
	}
	if _, err := parseDirective(`{"thoughts": "hmm"}`); err == nil {
		t.Fatal("expected error for JSON that is not a directive")
	}
}

func TestRunDoneSetsFinalText(t *testing.T) {
	llm := &scriptedLLM{replies: []string{
		`{"actions": [{"done": {"success": true, "text": "Ibuprofen, an NSAID."}}]}`,
	}}
	out, err := testRunner(llm).Run(context.Background(), "look up ibuprofen")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.FinalText != "Ibuprofen, an NSAID." {
		t.Fatalf("expected final text, got %q", out.FinalText)
	}
	if len(out.Steps) != 1 {
		t.Fatalf("expected done step recorded, got %d steps", len(out.Steps))
	}
}

func TestRunFailedDoneKeepsTrailOnly(t *testing.T) {
	llm := &scriptedLLM{replies: []string{
		`{"actions": [{"done": {"success": false, "text": "page not found"}}]}`,
	}}
	out, err := testRunner(llm).Run(context.Background(), "look up nothing")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.FinalText != "" {
		t.Fatalf("failed done must not set final text, got %q", out.FinalText)
	}
	if len(out.Steps) != 1 {
		t.Fatalf("expected the done step in the trail, got %d", len(out.Steps))
	}
}

func TestRunUnparseableReplyEndsRun(t *testing.T) {
	llm := &scriptedLLM{replies: []string{"I refuse to emit JSON."}}
	out, err := testRunner(llm).Run(context.Background(), "task")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(out.Steps) != 0 || out.FinalText != "" {
		t.Fatalf("expected empty outcome, got %+v", out)
	}
	if llm.calls != 1 {
		t.Fatalf("run must stop after the unparseable reply, got %d calls", llm.calls)
	}
}

func TestRunStepBudget(t *testing.T) {
	// The model never finishes; the loop must stop at MaxSteps.
	llm := &scriptedLLM{replies: []string{
		`{"actions": [{"wait": {}}]}`,
	}}
	r := NewRunner(llm, 3, 3, time.Second, 1000)
	out, err := r.Run(context.Background(), "task")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.FinalText != "" {
		t.Fatalf("expected no final text, got %q", out.FinalText)
	}
	if llm.calls != 3 {
		t.Fatalf("expected exactly MaxSteps model calls, got %d", llm.calls)
	}
}
