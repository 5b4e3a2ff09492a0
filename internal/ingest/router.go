package ingest

import (
	"context"

	"go.uber.org/zap"

	"github.com/pulsoweb/pulso-gateway/internal/events"
	"github.com/pulsoweb/pulso-gateway/internal/record"
	"github.com/pulsoweb/pulso-gateway/internal/store"
)

// Logical collection names served by the generic ingestion surface.
const (
	TypeSessionReplay = "session-replay"
	TypeEvent         = "event"
	TypeEngagement    = "engagement"
	TypeProfile       = "profile"
	TypeError         = "error"
	TypeSelectorMap   = "mapaseletores"
	TypeWebhook       = "webhook"
)

// Types drives route registration: one ingestion endpoint per entry, wired
// in a single loop at startup.
var Types = []string{
	TypeSessionReplay,
	TypeEvent,
	TypeEngagement,
	TypeProfile,
	TypeError,
	TypeSelectorMap,
	TypeWebhook,
}

// Ack is the structured result of one ingestion call. Every failure surfaces
// here; nothing is retried or swallowed.
type Ack struct {
	OK     bool            `json:"ok"`
	Type   string          `json:"type"`
	Record record.Document `json:"data,omitempty"`
	Acoes  []Action        `json:"acoes,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Action is a client-side suggestion echoed back on profile ingestion.
type Action struct {
	Tipo     string `json:"tipo"`
	Alvo     string `json:"alvo,omitempty"`
	Mensagem string `json:"mensagem,omitempty"`
}

// Router ties the ingestion surface together: durable write through the
// gateway, then best-effort fan-out to the live dashboard.
type Router struct {
	gw    *Gateway
	store store.Store
	bus   *events.Bus
	log   *zap.Logger
}

func NewRouter(gw *Gateway, st store.Store, bus *events.Bus, log *zap.Logger) *Router {
	return &Router{gw: gw, store: st, bus: bus, log: log}
}

// Ingest appends the payload to the named collection and, only after the
// write succeeded, broadcasts it to live subscribers. Broadcast is
// fire-and-forget and can never fail the ingestion. On failure the returned
// Ack already carries the error message; the error itself is returned too so
// callers can tell a rejected payload from a storage fault.
func (r *Router) Ingest(ctx context.Context, eventType string, payload record.Document) (Ack, error) {
	stored, err := r.gw.Append(ctx, eventType, payload)
	if err != nil {
		r.log.Warn("ingest rejected",
			zap.String("type", eventType),
			zap.Error(err))
		return Ack{OK: false, Type: eventType, Error: err.Error()}, err
	}

	r.bus.Publish(events.Envelope{Type: eventType, Data: stored})

	ack := Ack{OK: true, Type: eventType, Record: stored}
	if eventType == TypeProfile {
		ack.Acoes = suggestActions(payload)
	}
	return ack, nil
}

const scrollThreshold = 30

// suggestActions implements the profile nudge rule: analytical visitors who
// have not scrolled past the threshold get a popup plus a scroll hint. Pure,
// evaluated synchronously, echoed to the caller only.
func suggestActions(doc record.Document) []Action {
	if perfil, _ := doc.String("perfil"); perfil != "analitico" {
		return nil
	}
	if contexto, ok := doc.Map("contexto"); ok {
		if pct, ok := contexto.Number("scroll_percentual"); ok && pct >= scrollThreshold {
			return nil
		}
	}
	return []Action{
		{Tipo: "mostrar_popup", Mensagem: "Veja os dados completos antes de decidir"},
		{Tipo: "scroll_to", Alvo: "#conteudo-principal"},
	}
}

// Replay returns the combined eventos sequence for one session/product pair:
// all session-replay records ordered by createdAt ascending, each record's
// eventos list flattened in order. Records without an eventos field
// contribute nothing.
func (r *Router) Replay(ctx context.Context, sessionID, produto string) ([]any, error) {
	docs, err := r.store.Find(ctx, TypeSessionReplay,
		store.Filter{FieldSession: sessionID, FieldProduct: produto},
		store.Sort{Field: FieldCreatedAt, Ascending: true})
	if err != nil {
		return nil, &StorageError{Op: "find", Collection: TypeSessionReplay, Err: err}
	}
	eventos := []any{}
	for _, doc := range docs {
		eventos = append(eventos, doc.Slice("eventos")...)
	}
	return eventos, nil
}
