package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pulsoweb/pulso-gateway/internal/config"
	"github.com/pulsoweb/pulso-gateway/internal/events"
)

// Forwarder pushes selected live envelopes to an external notification
// channel. Delivery is best-effort: a failed push is logged and dropped,
// never retried, and never affects the ingestion path.
type Forwarder struct {
	cfg    *config.Config
	log    *zap.Logger
	bus    *events.Bus
	conn   *websocket.Conn
	client *http.Client
	fake   bool
}

func New(cfg *config.Config, log *zap.Logger, bus *events.Bus) *Forwarder {
	return &Forwarder{
		cfg:  cfg,
		log:  log,
		bus:  bus,
		fake: cfg.Notify.Fake,
		client: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.Notify.Insecure},
			},
		},
	}
}

// Run consumes the bus until the context is cancelled. Envelopes whose type
// is not in the configured list are skipped.
func (f *Forwarder) Run(ctx context.Context) {
	sub := f.bus.Subscribe()
	defer f.bus.Unsubscribe(sub)

	wanted := make(map[string]struct{}, len(f.cfg.Notify.Types))
	for _, t := range f.cfg.Notify.Types {
		wanted[t] = struct{}{}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if len(wanted) > 0 {
				if _, want := wanted[ev.Type]; !want {
					continue
				}
			}
			f.deliver(ctx, ev)
		}
	}
}

func (f *Forwarder) deliver(ctx context.Context, ev events.Envelope) {
	if f.fake {
		f.log.Info("notify (fake)", zap.String("type", ev.Type))
		return
	}
	url := f.cfg.Notify.URL
	switch {
	case strings.HasPrefix(url, "ws://"), strings.HasPrefix(url, "wss://"):
		f.deliverWS(ev)
	default:
		f.deliverHTTP(ctx, ev)
	}
}

func (f *Forwarder) deliverWS(ev events.Envelope) {
	if f.conn == nil {
		d := websocket.Dialer{
			HandshakeTimeout: 5 * time.Second,
			TLSClientConfig:  &tls.Config{InsecureSkipVerify: f.cfg.Notify.Insecure},
		}
		conn, _, err := d.Dial(f.cfg.Notify.URL, http.Header{"User-Agent": {"pulso-gw"}})
		if err != nil {
			f.log.Warn("notify dial failed", zap.Error(err))
			return
		}
		f.conn = conn
		f.log.Info("notify channel connected")
	}
	if err := f.conn.WriteJSON(ev); err != nil {
		f.log.Warn("notify write failed", zap.Error(err))
		_ = f.conn.Close()
		f.conn = nil
	}
}

func (f *Forwarder) deliverHTTP(ctx context.Context, ev events.Envelope) {
	body, err := json.Marshal(ev)
	if err != nil {
		f.log.Warn("notify encode failed", zap.Error(err))
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.cfg.Notify.URL, bytes.NewReader(body))
	if err != nil {
		f.log.Warn("notify request failed", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.client.Do(req)
	if err != nil {
		f.log.Warn("notify post failed", zap.Error(err))
		return
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 300 {
		f.log.Warn("notify rejected", zap.Int("status", resp.StatusCode))
	}
}

func (f *Forwarder) Reload(cfg *config.Config) { f.cfg = cfg }

func (f *Forwarder) Close() {
	if f.conn != nil {
		_ = f.conn.Close()
	}
}
