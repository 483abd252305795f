// Package browser is the LLM-driven headless browser runner behind the agent
// adapter. Each step asks the model for the next actions given the task and
// the text of the page it is on; navigation happens through chromedp and page
// text is extracted with readability.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	readability "github.com/go-shiori/go-readability"

	"github.com/xoity/medicinedb/internal/agent"
	"github.com/xoity/medicinedb/provider"
)

type Runner struct {
	LLM               provider.Provider
	MaxSteps          int
	MaxActionsPerStep int
	Timeout           time.Duration // per-navigation budget
	MaxChars          int           // page text cap handed to the model

	logger *log.Logger
}

func NewRunner(llm provider.Provider, maxSteps, maxActionsPerStep int, timeout time.Duration, maxChars int) *Runner {
	return &Runner{
		LLM:               llm,
		MaxSteps:          maxSteps,
		MaxActionsPerStep: maxActionsPerStep,
		Timeout:           timeout,
		MaxChars:          maxChars,
		logger:            log.New(log.Writer(), "[AGENT] ", log.LstdFlags),
	}
}

const actionPrompt = `You control a headless browser. Reply ONLY with valid JSON:
{"actions": [{"navigate": {"url": "https://..."}} or {"done": {"success": true, "text": "..."}}]}
Use navigate to open a page. When the task is complete, emit a single done action
whose text holds the answer the task asked for. Do not include any other text.`

// step is one model directive.
type step struct {
	Navigate *struct {
		URL string `json:"url"`
	} `json:"navigate,omitempty"`
	Done *struct {
		Success bool   `json:"success"`
		Text    string `json:"text"`
	} `json:"done,omitempty"`
}

type directive struct {
	Actions []json.RawMessage `json:"actions"`
}

var jsonBlock = regexp.MustCompile(`(?s)\{.*\}`)

// Run drives the task to completion or to the step budget, whichever comes
// first. The returned outcome carries the final done text when the model
// produced one, plus the full step trail.
func (r *Runner) Run(ctx context.Context, task string) (agent.RunOutcome, error) {
	outcome := agent.RunOutcome{}
	pageText := ""

	for i := 0; i < r.MaxSteps; i++ {
		reply, err := r.LLM.Complete(ctx, actionPrompt, buildStepMessage(task, pageText))
		if err != nil {
			return outcome, fmt.Errorf("agent step %d: %w", i+1, err)
		}

		actions, err := parseDirective(reply)
		if err != nil {
			// Unparseable reply ends the run with whatever trail exists.
			r.logger.Printf("step %d: unparseable directive: %v", i+1, err)
			return outcome, nil
		}
		if len(actions) > r.MaxActionsPerStep {
			actions = actions[:r.MaxActionsPerStep]
		}

		for _, raw := range actions {
			var act step
			if err := json.Unmarshal(raw, &act); err != nil {
				continue
			}
			switch {
			case act.Done != nil:
				outcome.Steps = append(outcome.Steps, agent.StepRecord{
					ActionOutcome: map[string]interface{}{
						"done": map[string]interface{}{
							"success": act.Done.Success,
							"text":    act.Done.Text,
						},
					},
				})
				if act.Done.Success {
					outcome.FinalText = act.Done.Text
				}
				return outcome, nil
			case act.Navigate != nil:
				text, err := r.fetchPageText(ctx, act.Navigate.URL)
				if err != nil {
					r.logger.Printf("navigate %s: %v", act.Navigate.URL, err)
					text = ""
				}
				pageText = text
				outcome.Steps = append(outcome.Steps, agent.StepRecord{
					ActionOutcome: map[string]interface{}{
						"navigate": map[string]interface{}{"url": act.Navigate.URL},
					},
					Observation: text,
				})
			}
		}
	}

	return outcome, nil
}

func buildStepMessage(task, pageText string) string {
	var b strings.Builder
	b.WriteString("Task:\n")
	b.WriteString(task)
	if pageText != "" {
		b.WriteString("\n\nCurrent page text:\n")
		b.WriteString(pageText)
	} else {
		b.WriteString("\n\nNo page is open yet.")
	}
	return b.String()
}

func parseDirective(reply string) ([]json.RawMessage, error) {
	block := jsonBlock.FindString(reply)
	if block == "" {
		return nil, errors.New("no JSON object in model reply")
	}
	var d directive
	if err := json.Unmarshal([]byte(block), &d); err == nil && len(d.Actions) > 0 {
		return d.Actions, nil
	}
	// A bare single action object is accepted as well.
	var single step
	if err := json.Unmarshal([]byte(block), &single); err == nil && (single.Navigate != nil || single.Done != nil) {
		return []json.RawMessage{json.RawMessage(block)}, nil
	}
	return nil, errors.New("model reply is not an action directive")
}

// fetchPageText renders the page headless and returns its readable text,
// capped at MaxChars.
func (r *Runner) fetchPageText(ctx context.Context, rawURL string) (string, error) {
	if strings.TrimSpace(rawURL) == "" {
		return "", errors.New("invalid url")
	}

	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	html, err := fetchHTML(ctx, rawURL)
	if err != nil {
		return "", err
	}

	article, err := readability.FromReader(strings.NewReader(html), mustParseURL(rawURL))
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(article.TextContent)
	if len(text) > r.MaxChars {
		text = text[:r.MaxChars]
	}
	return text, nil
}

func fetchHTML(ctx context.Context, rawURL string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.UserAgent("MedicineInfoAssistant/1.0 (+contact@example.com)"),
	)
	actx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	bctx, cancelBrowser := chromedp.NewContext(actx)
	defer cancelBrowser()

	var html string
	err := chromedp.Run(bctx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	return html, err
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		return &url.URL{}
	}
	return u
}
