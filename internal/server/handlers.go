package server

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/xoity/medicinedb/internal/agent"
	"github.com/xoity/medicinedb/internal/export"
	"github.com/xoity/medicinedb/internal/normalize"
	"github.com/xoity/medicinedb/models"
	"github.com/xoity/medicinedb/session"
)

var (
	agentRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "medicinedb_agent_runs_total",
		Help: "Browser agent runs by result.",
	}, []string{"result"}) // structured, narrative, empty, error

	relayQueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "medicinedb_ui_relay_queries_total",
		Help: "Relay queries issued from the UI.",
	}, []string{"status"})

	medicineInsertsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "medicinedb_medicine_inserts_total",
		Help: "Medicine rows inserted through the UI.",
	})
)

// filterState carries the record-table controls between requests.
type filterState struct {
	OTCOnly  bool
	Category string
	Sort     string
	Query    string
}

type pageData struct {
	Settings      session.Settings
	Messages      []session.Message
	RelayMessages []session.Message
	Medicines     []models.Medicine
	Categories    []string
	Filter        filterState
	Tab           string
	Notice        string
}

func (s *Server) index(c echo.Context) error {
	sess, err := s.resolveSession(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	medicines := sess.Medicines()
	if len(medicines) == 0 {
		if medicines, err = s.reloadMedicines(c, sess); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}

	filter := filterState{
		OTCOnly:  c.QueryParam("otc") == "1",
		Category: c.QueryParam("category"),
		Sort:     c.QueryParam("sort"),
		Query:    c.QueryParam("q"),
	}

	shown := medicines
	if filter.Query != "" {
		if hits, err := sess.SearchMedicines(filter.Query, 50); err == nil {
			shown = hits
		}
	}
	shown = applyFilter(shown, filter)

	return c.Render(http.StatusOK, "index.html", pageData{
		Settings:      sess.Settings(),
		Messages:      sess.Messages(),
		RelayMessages: sess.RelayMessages(),
		Medicines:     shown,
		Categories:    categories(medicines),
		Filter:        filter,
		Tab:           c.QueryParam("tab"),
		Notice:        c.QueryParam("notice"),
	})
}

// search runs one agent lookup and records the exchange in the session. Agent
// failures become visible assistant messages, never silent drops.
func (s *Server) search(c echo.Context) error {
	sess, err := s.resolveSession(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	name := strings.TrimSpace(c.FormValue("medicine"))
	if name == "" {
		return s.redirect(c, "/", nil)
	}
	s.appendChat(sess, "user", fmt.Sprintf("Find information about %s", name), nil)

	runner, err := s.NewRunner(sess.Settings())
	if err != nil {
		s.appendChat(sess, "assistant", err.Error(), nil)
		agentRunsTotal.WithLabelValues("error").Inc()
		return s.redirect(c, "/", nil)
	}

	outcome, err := (&agent.MedicineInfoAgent{Runner: runner, MedicineName: name}).Run(c.Request().Context())
	if err != nil {
		s.appendChat(sess, "assistant", fmt.Sprintf("Error searching for medicine information: %v", err), nil)
		agentRunsTotal.WithLabelValues("error").Inc()
		return s.redirect(c, "/", nil)
	}

	if medicine, ok := s.Normalizer.FromOutcome(outcome); ok {
		// The searched name wins over any placeholder left by the agent.
		if medicine.Name == models.PlaceholderText {
			medicine.Name = name
		}
		if err := s.Store.InsertMedicine(c.Request().Context(), medicine); err != nil {
			s.appendChat(sess, "assistant", fmt.Sprintf("Error adding medicine: %v", err), nil)
			return s.redirect(c, "/", nil)
		}
		medicineInsertsTotal.Inc()
		s.appendChat(sess, "assistant", formatMedicineInfo(medicine), &medicine)
		if _, err := s.reloadMedicines(c, sess); err != nil {
			s.logger.Printf("reload medicines: %v", err)
		}
		agentRunsTotal.WithLabelValues("structured").Inc()
		return s.redirect(c, "/", nil)
	}

	// No structured data anywhere in the run: present the narrative text.
	if text, ok := normalize.Narrative(outcome); ok {
		s.appendChat(sess, "assistant", text, nil)
		agentRunsTotal.WithLabelValues("narrative").Inc()
	} else {
		s.appendChat(sess, "assistant", "Sorry, I couldn't find information about this medicine.", nil)
		agentRunsTotal.WithLabelValues("empty").Inc()
	}
	return s.redirect(c, "/", nil)
}

// addMedicine inserts a manually entered record.
func (s *Server) addMedicine(c echo.Context) error {
	sess, err := s.resolveSession(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	name := strings.TrimSpace(c.FormValue("name"))
	if name == "" {
		return s.redirect(c, "/", map[string]string{"notice": "name is required"})
	}
	price, _ := strconv.ParseFloat(c.FormValue("price"), 64)
	if price < 0 {
		price = 0
	}

	m := models.Medicine{
		Name:        name,
		Brand:       valueOr(c.FormValue("brand"), models.PlaceholderText),
		Price:       price,
		Dosage:      valueOr(c.FormValue("dosage"), models.PlaceholderText),
		Form:        valueOr(c.FormValue("form"), models.PlaceholderText),
		OTC:         c.FormValue("otc") == "on",
		Description: valueOr(c.FormValue("description"), models.PlaceholderText),
		SideEffects: valueOr(c.FormValue("side_effects"), models.PlaceholderText),
		Category:    valueOr(c.FormValue("category"), models.PlaceholderText),
		DateAdded:   s.Normalizer.Today(),
	}
	if err := s.Store.InsertMedicine(c.Request().Context(), m); err != nil {
		return s.redirect(c, "/", map[string]string{"notice": fmt.Sprintf("Error adding medicine: %v", err)})
	}
	medicineInsertsTotal.Inc()
	if _, err := s.reloadMedicines(c, sess); err != nil {
		s.logger.Printf("reload medicines: %v", err)
	}
	return s.redirect(c, "/", map[string]string{"notice": fmt.Sprintf("Added %s to database", name)})
}

// relayQuery forwards SQL text to the relay service and renders the reply.
func (s *Server) relayQuery(c echo.Context) error {
	sess, err := s.resolveSession(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	prompt := strings.TrimSpace(c.FormValue("prompt"))
	if prompt == "" {
		return s.redirect(c, "/", map[string]string{"tab": "relay"})
	}
	_ = sess.AppendRelayMessage(session.Message{ID: uuid.NewString(), Role: "user", Content: prompt})

	resp := s.Relay.Relay(c.Request().Context(), prompt)
	if resp.Error != "" {
		relayQueriesTotal.WithLabelValues("error").Inc()
	} else {
		relayQueriesTotal.WithLabelValues("ok").Inc()
	}
	_ = sess.AppendRelayMessage(session.Message{ID: uuid.NewString(), Role: "assistant", Content: formatRelayResponse(resp)})
	return s.redirect(c, "/", map[string]string{"tab": "relay"})
}

// analyze answers a natural-language database question. The agent drives the
// relay's query tools itself; only its final answer reaches the transcript.
func (s *Server) analyze(c echo.Context) error {
	sess, err := s.resolveSession(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	prompt := strings.TrimSpace(c.FormValue("prompt"))
	if prompt == "" {
		return s.redirect(c, "/", map[string]string{"tab": "relay"})
	}
	_ = sess.AppendRelayMessage(session.Message{ID: uuid.NewString(), Role: "user", Content: prompt})

	runner, err := s.NewRunner(sess.Settings())
	if err != nil {
		_ = sess.AppendRelayMessage(session.Message{ID: uuid.NewString(), Role: "assistant", Content: err.Error()})
		agentRunsTotal.WithLabelValues("error").Inc()
		return s.redirect(c, "/", map[string]string{"tab": "relay"})
	}

	outcome, err := (&agent.SQLAnalysisAgent{Runner: runner, Prompt: prompt}).Run(c.Request().Context())
	if err != nil {
		_ = sess.AppendRelayMessage(session.Message{ID: uuid.NewString(), Role: "assistant", Content: fmt.Sprintf("Error analyzing database: %v", err)})
		agentRunsTotal.WithLabelValues("error").Inc()
		return s.redirect(c, "/", map[string]string{"tab": "relay"})
	}

	if text, ok := normalize.Narrative(outcome); ok {
		_ = sess.AppendRelayMessage(session.Message{ID: uuid.NewString(), Role: "assistant", Content: text})
		agentRunsTotal.WithLabelValues("narrative").Inc()
	} else {
		_ = sess.AppendRelayMessage(session.Message{ID: uuid.NewString(), Role: "assistant", Content: "The analysis produced no answer."})
		agentRunsTotal.WithLabelValues("empty").Inc()
	}
	return s.redirect(c, "/", map[string]string{"tab": "relay"})
}

// applySettings updates the session's provider choice and API key.
func (s *Server) applySettings(c echo.Context) error {
	sess, err := s.resolveSession(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	settings := sess.Settings()
	if v := c.FormValue("provider"); v != "" {
		settings.Provider = v
	}
	if v := c.FormValue("api_key"); v != "" {
		settings.APIKey = v
	}
	if err := sess.SetSettings(settings); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return s.redirect(c, "/", map[string]string{"notice": "Settings applied"})
}

// exportCSV writes the export file and serves it as a download.
func (s *Server) exportCSV(c echo.Context) error {
	path, err := export.CSV(c.Request().Context(), s.Store)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if path == "" {
		return s.redirect(c, "/", map[string]string{"notice": "No data to export"})
	}
	return c.Attachment(path, export.CSVFileName)
}

func (s *Server) appendChat(sess session.Session, role, content string, medicine *models.Medicine) {
	err := sess.AppendMessage(session.Message{
		ID:       uuid.NewString(),
		Role:     role,
		Content:  content,
		Medicine: medicine,
	})
	if err != nil {
		s.logger.Printf("append message: %v", err)
	}
}

// reloadMedicines refreshes the session snapshot from the store.
func (s *Server) reloadMedicines(c echo.Context, sess session.Session) ([]models.Medicine, error) {
	medicines, err := s.Store.ListMedicines(c.Request().Context())
	if err != nil {
		return nil, err
	}
	if err := sess.SetMedicines(medicines); err != nil {
		return nil, err
	}
	return medicines, nil
}

func (s *Server) redirect(c echo.Context, path string, params map[string]string) error {
	if len(params) > 0 {
		q := url.Values{}
		for k, v := range params {
			q.Set(k, v)
		}
		path = path + "?" + q.Encode()
	}
	return c.Redirect(http.StatusSeeOther, path)
}

func valueOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return strings.TrimSpace(v)
}

// applyFilter narrows and orders the table per the UI controls. The store
// itself returns unordered rows; presentation owns this.
func applyFilter(in []models.Medicine, f filterState) []models.Medicine {
	out := make([]models.Medicine, 0, len(in))
	for _, m := range in {
		if f.OTCOnly && !m.OTC {
			continue
		}
		if f.Category != "" && f.Category != "All" && m.Category != f.Category {
			continue
		}
		out = append(out, m)
	}
	switch f.Sort {
	case "price_asc":
		sort.SliceStable(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	case "price_desc":
		sort.SliceStable(out, func(i, j int) bool { return out[i].Price > out[j].Price })
	default:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	}
	return out
}

func categories(in []models.Medicine) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range in {
		if m.Category != "" && !seen[m.Category] {
			seen[m.Category] = true
			out = append(out, m.Category)
		}
	}
	sort.Strings(out)
	return out
}

func formatMedicineInfo(m models.Medicine) string {
	prescription := "Yes"
	if m.OTC {
		prescription = "No"
	}
	return fmt.Sprintf(`%s
Brand: %s
Price: $%.2f
Dosage: %s
Form: %s
Prescription Required: %s
Description: %s
Side Effects: %s
Category: %s`,
		m.Name, m.Brand, m.Price, m.Dosage, m.Form, prescription,
		m.Description, m.SideEffects, m.Category)
}
