// Package relay forwards raw SQL text to the companion query service. Routing
// between the read and write endpoints is a keyword-containment heuristic over
// the query text, not a parser; a SELECT that mentions one of the write
// keywords inside a string literal is misrouted to the write path. That is a
// documented limitation and is preserved as-is.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrAdvisory is returned in Response.Error when the relay is unreachable.
const ErrAdvisory = "Cannot connect to the query relay. Please make sure it's running with: medicinedb relay"

var writeKeywords = []string{"INSERT", "UPDATE", "DELETE", "CREATE", "ALTER", "DROP"}

// Response is the relay's reply. Exactly one of Results, Message, or Error is
// populated.
type Response struct {
	Results []map[string]interface{} `json:"results,omitempty"`
	Message string                   `json:"message,omitempty"`
	Error   string                   `json:"error,omitempty"`
}

type Client struct {
	BaseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// IsWriteQuery reports whether the text contains any write keyword,
// case-insensitively, anywhere in the string.
func IsWriteQuery(sqlText string) bool {
	upper := strings.ToUpper(sqlText)
	for _, kw := range writeKeywords {
		if strings.Contains(upper, kw) {
			return true
		}
	}
	return false
}

// Relay posts the SQL text to the matching endpoint and returns the service's
// JSON body unmodified, or a structured error. Transport and HTTP failures
// never surface as Go errors; they are reported in Response.Error so the UI
// can render them inline.
func (c *Client) Relay(ctx context.Context, sqlText string) Response {
	endpoint := c.BaseURL + "/mcp/read_query"
	if IsWriteQuery(sqlText) {
		endpoint = c.BaseURL + "/mcp/write_query"
	}

	body, err := json.Marshal(map[string]string{"query": sqlText})
	if err != nil {
		return Response{Error: fmt.Sprintf("Error executing query: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewBuffer(body))
	if err != nil {
		return Response{Error: fmt.Sprintf("Error executing query: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{Error: ErrAdvisory}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errText, _ := io.ReadAll(resp.Body)
		return Response{Error: fmt.Sprintf("Error %d: %s", resp.StatusCode, string(errText))}
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Response{Error: fmt.Sprintf("Error executing query: %v", err)}
	}
	return out
}
