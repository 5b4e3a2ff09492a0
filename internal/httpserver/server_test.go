package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/pulsoweb/pulso-gateway/internal/config"
	"github.com/pulsoweb/pulso-gateway/internal/events"
	"github.com/pulsoweb/pulso-gateway/internal/ingest"
	"github.com/pulsoweb/pulso-gateway/internal/record"
	"github.com/pulsoweb/pulso-gateway/internal/report"
	"github.com/pulsoweb/pulso-gateway/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.Memory) {
	t.Helper()
	cfg := &config.Config{}
	log := zap.NewNop()
	mem := store.NewMemory()
	bus := events.NewBus()
	router := ingest.NewRouter(ingest.NewGateway(mem), mem, bus, log)
	reports := report.NewService(mem)

	srv := New(cfg, log, mem, router, reports, bus)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, mem
}

func postJSON(t *testing.T, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, decoded
}

func TestIngestEndpointsAreRegisteredPerType(t *testing.T) {
	ts, mem := newTestServer(t)

	for _, eventType := range ingest.Types {
		resp, body := postJSON(t, ts.URL+"/api/"+eventType, map[string]any{
			"sessionId": "s1", "produto": "p1",
		})
		if resp.StatusCode != http.StatusOK {
			t.Errorf("POST /api/%s status = %d", eventType, resp.StatusCode)
		}
		if body["ok"] != true || body["type"] != eventType {
			t.Errorf("POST /api/%s ack = %v", eventType, body)
		}
		docs, _ := mem.Find(context.Background(), eventType, store.Filter{}, store.Sort{})
		if len(docs) != 1 {
			t.Errorf("%s has %d stored records, want 1", eventType, len(docs))
		}
	}
}

func TestIngestRejectsMissingCorrelation(t *testing.T) {
	ts, mem := newTestServer(t)

	resp, body := postJSON(t, ts.URL+"/api/event", map[string]any{"produto": "p1"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if body["ok"] != false || body["error"] == "" {
		t.Errorf("ack = %v", body)
	}
	docs, _ := mem.Find(context.Background(), "event", store.Filter{}, store.Sort{})
	if len(docs) != 0 {
		t.Errorf("rejected payload stored: %v", docs)
	}
}

func TestIngestRejectsMalformedBody(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/event", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestWebhookAckEchoesCollectionName(t *testing.T) {
	ts, _ := newTestServer(t)

	_, body := postJSON(t, ts.URL+"/api/webhook", map[string]any{
		"sessionId": "s1", "produto": "p1", "name": "Ana",
	})
	if body["type"] != "webhook" {
		t.Errorf("webhook ack type = %v, want webhook", body["type"])
	}
}

func TestProfileAckCarriesSuggestedActions(t *testing.T) {
	ts, _ := newTestServer(t)

	_, body := postJSON(t, ts.URL+"/api/profile", map[string]any{
		"sessionId": "s1", "produto": "p1",
		"perfil":   "analitico",
		"contexto": map[string]any{"scroll_percentual": 10},
	})
	acoes, _ := body["acoes"].([]any)
	if len(acoes) != 2 {
		t.Fatalf("acoes = %v, want 2 entries", body["acoes"])
	}

	_, body = postJSON(t, ts.URL+"/api/profile", map[string]any{
		"sessionId": "s1", "produto": "p1",
		"perfil":   "emotivo",
		"contexto": map[string]any{"scroll_percentual": 10},
	})
	if _, ok := body["acoes"]; ok {
		t.Errorf("emotivo profile got actions: %v", body["acoes"])
	}
}

func TestSessionReplayEndpoint(t *testing.T) {
	ts, mem := newTestServer(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i, eventos := range [][]any{{"e1"}, {"e2", "e3"}} {
		_, err := mem.InsertOne(ctx, ingest.TypeSessionReplay, record.Document{
			"sessionId": "s1", "produto": "p1",
			"createdAt": base.Add(time.Duration(i) * time.Second),
			"eventos":   eventos,
		})
		if err != nil {
			t.Fatalf("InsertOne error: %v", err)
		}
	}

	resp, err := http.Get(ts.URL + "/api/session-replay/s1/p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		OK      bool  `json:"ok"`
		Eventos []any `json:"eventos"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.OK || len(body.Eventos) != 3 {
		t.Errorf("body = %+v", body)
	}
}

func TestSessionReportEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/session-report/s1/p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 for an empty session", resp.StatusCode)
	}
	var rep report.Report
	if err := json.NewDecoder(resp.Body).Decode(&rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rep.SessionID != "s1" || rep.Produto != "p1" {
		t.Errorf("identifiers = %q/%q", rep.SessionID, rep.Produto)
	}
	if rep.Events == nil || rep.Replays == nil {
		t.Error("empty report has nil sequences")
	}
}

func TestMetadataUpsertAndReadAll(t *testing.T) {
	ts, _ := newTestServer(t)

	put := func(doc map[string]any) map[string]any {
		t.Helper()
		b, _ := json.Marshal(doc)
		req, err := http.NewRequest(http.MethodPut, ts.URL+"/api/metadados", bytes.NewReader(b))
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("put: %v", err)
		}
		defer resp.Body.Close()
		var body map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return body
	}

	body := put(map[string]any{"sessionId": "s1", "produto": "p1", "navegador": "firefox"})
	if body["ok"] != true || body["created"] != true {
		t.Errorf("first put = %v", body)
	}
	body = put(map[string]any{"sessionId": "s1", "produto": "p1", "navegador": "chrome"})
	if body["ok"] != true || body["created"] != false {
		t.Errorf("second put = %v", body)
	}

	resp, err := http.Get(ts.URL + "/api/metadados/all")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var docs []record.Document
	if err := json.NewDecoder(resp.Body).Decode(&docs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("metadados/all = %v, want one document", docs)
	}
	if docs[0]["navegador"] != "chrome" {
		t.Errorf("last write did not win: %v", docs[0])
	}

	resp, err = http.Get(ts.URL + "/api/metadados/s1/p1")
	if err != nil {
		t.Fatalf("get one: %v", err)
	}
	defer resp.Body.Close()
	var doc record.Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc["navegador"] != "chrome" {
		t.Errorf("metadata read = %v", doc)
	}

	missing, err := http.Get(ts.URL + "/api/metadados/nope/p1")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	defer missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Errorf("missing metadata status = %d, want 404", missing.StatusCode)
	}
}

func TestExportEndpointProducesWorkbook(t *testing.T) {
	ts, mem := newTestServer(t)
	_, err := mem.InsertOne(context.Background(), "webhook", record.Document{
		"sessionId": "s1", "produto": "p1",
		"name": "Ana", "email": "ana@example.com", "message": "olá",
		"createdAt": time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("InsertOne error: %v", err)
	}

	resp, err := http.Get(ts.URL + "/api/export/webhook")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "webhook.xlsx") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	f, err := excelize.OpenReader(resp.Body)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	header, err := f.GetCellValue("Dados", "A1")
	if err != nil {
		t.Fatalf("read cell: %v", err)
	}
	if header != "Nome" {
		t.Errorf("A1 = %q, want Nome", header)
	}
	name, _ := f.GetCellValue("Dados", "A2")
	if name != "Ana" {
		t.Errorf("A2 = %q, want Ana", name)
	}
}

func TestLiveFeedDeliversEnvelopesToConnectedClients(t *testing.T) {
	ts, _ := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/live"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	postJSON(t, ts.URL+"/api/event", map[string]any{
		"sessionId": "s1", "produto": "p1", "acao": "click",
	})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev events.Envelope
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read envelope: %v", err)
	}
	if ev.Type != "event" {
		t.Errorf("envelope type = %q", ev.Type)
	}
	if session, _ := ev.Data.String("sessionId"); session != "s1" {
		t.Errorf("envelope data = %v", ev.Data)
	}
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}
