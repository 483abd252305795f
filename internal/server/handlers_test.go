package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xoity/medicinedb/config"
	"github.com/xoity/medicinedb/internal/agent"
	"github.com/xoity/medicinedb/internal/normalize"
	"github.com/xoity/medicinedb/internal/relay"
	"github.com/xoity/medicinedb/internal/store"
	"github.com/xoity/medicinedb/models"
	"github.com/xoity/medicinedb/session"
	"github.com/xoity/medicinedb/session/inmemory"
)

// chdirTemp is the pre-Go-1.24 equivalent of t.Chdir.
func chdirTemp(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}

type stubRunner struct {
	outcome agent.RunOutcome
	err     error
}

func (r *stubRunner) Run(ctx context.Context, task string) (agent.RunOutcome, error) {
	return r.outcome, r.err
}

func testUIServer(t *testing.T, runner agent.Runner, runnerErr error, relayURL string) *Server {
	t.Helper()
	st := store.New(filepath.Join(t.TempDir(), "medicine.db"))
	if err := st.Init(context.Background()); err != nil {
		t.Fatalf("init store: %v", err)
	}
	s := &Server{
		Config: &config.Config{
			Session: config.SessionConfig{TTL: time.Minute},
		},
		Store:    st,
		Sessions: inmemory.NewStore(),
		Relay:    relay.NewClient(relayURL),
		NewRunner: func(session.Settings) (agent.Runner, error) {
			return runner, runnerErr
		},
		Normalizer: normalize.Normalizer{Now: func() time.Time {
			return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
		}},
		logger: log.New(log.Writer(), "[HTTP] ", log.LstdFlags),
	}
	return s
}

// doForm posts a form, carrying the session cookie between calls.
func doForm(t *testing.T, s *Server, cookie *http.Cookie, path string, form url.Values) (*httptest.ResponseRecorder, *http.Cookie) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	s.router().ServeHTTP(rec, req)

	out := cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookie {
			out = c
		}
	}
	return rec, out
}

func sessionFor(t *testing.T, s *Server, cookie *http.Cookie) session.Session {
	t.Helper()
	if cookie == nil {
		t.Fatal("no session cookie issued")
	}
	sess, err := s.Sessions.GetSession(cookie.Value)
	if err != nil || sess == nil {
		t.Fatalf("session %s not found: %v", cookie.Value, err)
	}
	return sess
}

func TestSearchStructuredResultInserted(t *testing.T) {
	runner := &stubRunner{outcome: agent.RunOutcome{
		FinalText: `{"generic_name": "ibuprofen", "brand_names": ["Advil", "Motrin"], "dosage_forms": ["tablet"], "drug_class": "NSAID"}`,
	}}
	s := testUIServer(t, runner, nil, "http://127.0.0.1:1")

	rec, cookie := doForm(t, s, nil, "/search", url.Values{"medicine": {"Ibuprofen"}})
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d: %s", rec.Code, rec.Body.String())
	}

	rows, err := s.Store.ListMedicines(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 inserted medicine, got %d", len(rows))
	}
	if rows[0].Brand != "Advil, Motrin" || rows[0].Category != "NSAID" {
		t.Fatalf("unexpected record: %+v", rows[0])
	}
	if rows[0].DateAdded != "2025-06-01" {
		t.Fatalf("expected stamped date, got %q", rows[0].DateAdded)
	}

	sess := sessionFor(t, s, cookie)
	msgs := sess.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected user+assistant messages, got %d", len(msgs))
	}
	if msgs[1].Medicine == nil || msgs[1].Medicine.Name != "ibuprofen" {
		t.Fatalf("assistant message missing structured data: %+v", msgs[1])
	}
}

func TestSearchNarrativeFallbackNoInsert(t *testing.T) {
	runner := &stubRunner{outcome: agent.RunOutcome{
		Steps: []agent.StepRecord{{
			ActionOutcome: map[string]interface{}{
				"done": map[string]interface{}{"success": true, "text": "Ibuprofen is a common NSAID."},
			},
		}},
	}}
	s := testUIServer(t, runner, nil, "http://127.0.0.1:1")

	_, cookie := doForm(t, s, nil, "/search", url.Values{"medicine": {"Ibuprofen"}})

	rows, _ := s.Store.ListMedicines(context.Background())
	if len(rows) != 0 {
		t.Fatalf("narrative result must not insert, got %d rows", len(rows))
	}
	msgs := sessionFor(t, s, cookie).Messages()
	if len(msgs) != 2 || msgs[1].Content != "Ibuprofen is a common NSAID." {
		t.Fatalf("expected narrative text verbatim, got %+v", msgs)
	}
}

func TestSearchAgentErrorReported(t *testing.T) {
	s := testUIServer(t, &stubRunner{err: errors.New("browser crashed")}, nil, "http://127.0.0.1:1")

	_, cookie := doForm(t, s, nil, "/search", url.Values{"medicine": {"Ibuprofen"}})

	msgs := sessionFor(t, s, cookie).Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected error reply, got %d messages", len(msgs))
	}
	if !strings.Contains(msgs[1].Content, "browser crashed") {
		t.Fatalf("agent error must be user-visible, got %q", msgs[1].Content)
	}
}

func TestRelayQueryTranscript(t *testing.T) {
	relaySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results": [{"name": "Aspirin", "price": 4.5}]}`))
	}))
	defer relaySrv.Close()
	s := testUIServer(t, &stubRunner{}, nil, relaySrv.URL)

	_, cookie := doForm(t, s, nil, "/relay", url.Values{"prompt": {"SELECT name, price FROM medicines"}})

	msgs := sessionFor(t, s, cookie).RelayMessages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 relay messages, got %d", len(msgs))
	}
	if !strings.Contains(msgs[1].Content, "Aspirin") || !strings.HasPrefix(msgs[1].Content, "Results:") {
		t.Fatalf("unexpected relay rendering: %q", msgs[1].Content)
	}
}

func TestRelayUnreachableAdvisory(t *testing.T) {
	s := testUIServer(t, &stubRunner{}, nil, "http://127.0.0.1:1")

	_, cookie := doForm(t, s, nil, "/relay", url.Values{"prompt": {"SELECT 1"}})

	msgs := sessionFor(t, s, cookie).RelayMessages()
	if len(msgs) != 2 || msgs[1].Content != relay.ErrAdvisory {
		t.Fatalf("expected advisory message, got %+v", msgs)
	}
}

func TestAnalyzeAnswersFromDoneStep(t *testing.T) {
	runner := &stubRunner{outcome: agent.RunOutcome{
		Steps: []agent.StepRecord{{
			ActionOutcome: map[string]interface{}{
				"done": map[string]interface{}{"success": true, "text": "There are 3 NSAIDs in the database."},
			},
		}},
	}}
	s := testUIServer(t, runner, nil, "http://127.0.0.1:1")

	_, cookie := doForm(t, s, nil, "/analyze", url.Values{"prompt": {"how many NSAIDs are stored?"}})

	msgs := sessionFor(t, s, cookie).RelayMessages()
	if len(msgs) != 2 || msgs[1].Content != "There are 3 NSAIDs in the database." {
		t.Fatalf("expected agent answer in relay transcript, got %+v", msgs)
	}
}

func TestAddMedicineManually(t *testing.T) {
	s := testUIServer(t, &stubRunner{}, nil, "http://127.0.0.1:1")

	form := url.Values{
		"name":     {"Paracetamol"},
		"brand":    {"Tylenol"},
		"price":    {"7.25"},
		"otc":      {"on"},
		"category": {"Analgesic"},
	}
	rec, _ := doForm(t, s, nil, "/medicines", form)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", rec.Code)
	}

	rows, _ := s.Store.ListMedicines(context.Background())
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	m := rows[0]
	if m.Name != "Paracetamol" || m.Price != 7.25 || !m.OTC {
		t.Fatalf("unexpected record: %+v", m)
	}
	// Omitted fields are stored as placeholders, never empty.
	if m.Dosage != models.PlaceholderText || m.Form != models.PlaceholderText {
		t.Fatalf("expected placeholder fill, got %+v", m)
	}
}

func TestExportCSVEmptyStoreNotice(t *testing.T) {
	chdirTemp(t, t.TempDir())
	s := testUIServer(t, &stubRunner{}, nil, "http://127.0.0.1:1")

	rec, _ := doForm(t, s, nil, "/export/csv", url.Values{})
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect for empty store, got %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Location"), "No+data+to+export") {
		t.Fatalf("expected no-data notice, got %q", rec.Header().Get("Location"))
	}
}

func TestExportCSVDownload(t *testing.T) {
	chdirTemp(t, t.TempDir())
	s := testUIServer(t, &stubRunner{}, nil, "http://127.0.0.1:1")
	if err := s.Store.InsertMedicine(context.Background(), models.Medicine{
		Name: "Aspirin", Brand: "Bayer", Price: 4.5, Dosage: "325mg", Form: "tablet",
		OTC: true, Description: "d", SideEffects: "s", Category: "NSAID", DateAdded: "2025-06-01",
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	rec, _ := doForm(t, s, nil, "/export/csv", url.Values{})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected file response, got %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "medicines.csv") {
		t.Fatalf("expected attachment header, got %q", rec.Header().Get("Content-Disposition"))
	}
	body := rec.Body.String()
	if !strings.HasPrefix(body, strings.Join(models.MedicineFieldNames, ",")) {
		t.Fatalf("expected csv header first, got %q", body)
	}
	if !strings.Contains(body, "Aspirin,Bayer,4.5,") {
		t.Fatalf("expected record row, got %q", body)
	}
}

func TestIndexRendersRecords(t *testing.T) {
	s := testUIServer(t, &stubRunner{}, nil, "http://127.0.0.1:1")
	if err := s.Store.InsertMedicine(context.Background(), models.Medicine{
		Name: "Metformin", Brand: "Glucophage", Price: 12, Dosage: "500mg", Form: "tablet",
		OTC: false, Description: "d", SideEffects: "s", Category: "Biguanide", DateAdded: "2025-06-01",
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s.router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "<td>Metformin</td>") {
		t.Fatal("expected record table to include Metformin")
	}
}

func TestIndexFilterSort(t *testing.T) {
	s := testUIServer(t, &stubRunner{}, nil, "http://127.0.0.1:1")
	seed := []models.Medicine{
		{Name: "Zyrtec", Brand: "b", Price: 20, Dosage: "d", Form: "f", OTC: true, Description: "d", SideEffects: "s", Category: "Antihistamine", DateAdded: "2025-06-01"},
		{Name: "Amoxicillin", Brand: "b", Price: 5, Dosage: "d", Form: "f", OTC: false, Description: "d", SideEffects: "s", Category: "Antibiotic", DateAdded: "2025-06-01"},
	}
	for _, m := range seed {
		if err := s.Store.InsertMedicine(context.Background(), m); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/?otc=1", nil)
	rec := httptest.NewRecorder()
	s.router().ServeHTTP(rec, req)
	// Match table cells; the search hint above the table also names medicines.
	body := rec.Body.String()
	if !strings.Contains(body, "<td>Zyrtec</td>") || strings.Contains(body, "<td>Amoxicillin</td>") {
		t.Fatal("otc filter should keep only OTC records")
	}
}

func TestNewRejectsUnknownSessionStore(t *testing.T) {
	cfg := &config.Config{}
	cfg.Session.Store = "memcached"
	if _, err := New(cfg); err == nil {
		t.Fatal("expected error for unknown session store")
	}

	cfg.Session.Store = "inmemory"
	s, err := New(cfg)
	if err != nil || s == nil {
		t.Fatalf("inmemory store must be accepted: %v", err)
	}
}

func TestApplySettingsPersists(t *testing.T) {
	s := testUIServer(t, &stubRunner{}, nil, "http://127.0.0.1:1")

	_, cookie := doForm(t, s, nil, "/settings", url.Values{"provider": {"ollama"}})

	sess := sessionFor(t, s, cookie)
	if sess.Settings().Provider != "ollama" {
		t.Fatalf("expected provider ollama, got %q", sess.Settings().Provider)
	}
}
