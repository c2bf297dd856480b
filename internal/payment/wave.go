package payment

import (
    "context"
    "fmt"
    "net/http"

    "github.com/salonova/salon-reservation/internal/model"
)

// WaveConfig holds the Wave checkout API credentials.
type WaveConfig struct {
    BaseURL string // e.g. https://api.wave.com/v1
    APIKey  string
}

// WaveGateway talks to the Wave checkout sessions API.  Wave wraps
// callbacks in an event envelope with the session in data.
type WaveGateway struct {
    cfg    WaveConfig
    client *http.Client
}

// NewWaveGateway builds a WaveGateway sharing the default client.
func NewWaveGateway(cfg WaveConfig) *WaveGateway {
    return &WaveGateway{cfg: cfg, client: defaultHTTPClient}
}

func (g *WaveGateway) Name() model.PaymentProvider { return model.ProviderWave }

func (g *WaveGateway) headers() map[string]string {
    return map[string]string{"Authorization": "Bearer " + g.cfg.APIKey}
}

// waveSession is the checkout session resource.
type waveSession struct {
    ID            string `json:"id"`
    PaymentStatus string `json:"payment_status"`
    Amount        string `json:"amount"`
    Currency      string `json:"currency"`
    WaveLaunchURL string `json:"wave_launch_url"`
}

// Initiate creates a checkout session.  The session id is the
// external id; the launch URL is handed to the customer.
func (g *WaveGateway) Initiate(ctx context.Context, req InitiateRequest) (*ExternalTransaction, error) {
    body := map[string]any{
        "amount":           fmt.Sprintf("%d", req.AmountMinor),
        "currency":         req.Currency,
        "client_reference": req.Reference,
        "success_url":      req.ReturnURL,
        "error_url":        req.ReturnURL,
    }
    var out waveSession
    if err := postJSON(ctx, g.client, g.cfg.BaseURL+"/checkout/sessions", g.headers(), body, &out); err != nil {
        return nil, err
    }
    if out.ID == "" {
        return nil, fmt.Errorf("%w: missing session id", ErrGatewayDeclined)
    }
    return &ExternalTransaction{ExternalID: out.ID, PaymentURL: out.WaveLaunchURL}, nil
}

// QueryStatus fetches the session.
func (g *WaveGateway) QueryStatus(ctx context.Context, externalID string) (NormalizedStatus, error) {
    var out waveSession
    url := g.cfg.BaseURL + "/checkout/sessions/" + externalID
    if err := getJSON(ctx, g.client, url, g.headers(), &out); err != nil {
        return "", err
    }
    return waveStatus(out.PaymentStatus), nil
}

// waveWebhook is the event envelope Wave posts on session changes.
type waveWebhook struct {
    Type string      `json:"type"` // e.g. checkout.session.completed
    Data waveSession `json:"data"`
}

// InterpretWebhook parses a Wave event.
func (g *WaveGateway) InterpretWebhook(payload []byte) (*WebhookEvent, error) {
    var w waveWebhook
    if err := unmarshalWebhook(payload, &w); err != nil {
        return nil, err
    }
    if w.Data.ID == "" {
        return nil, fmt.Errorf("%w: missing session id", ErrBadWebhook)
    }
    amount, err := parseMinorAmount(w.Data.Amount)
    if err != nil {
        return nil, fmt.Errorf("%w: %v", ErrBadWebhook, err)
    }
    return &WebhookEvent{
        ExternalID:  w.Data.ID,
        Status:      waveStatus(w.Data.PaymentStatus),
        AmountMinor: amount,
    }, nil
}

func waveStatus(s string) NormalizedStatus {
    switch s {
    case "succeeded":
        return StatusSucceeded
    case "cancelled", "expired":
        return StatusCancelled
    case "failed":
        return StatusFailed
    default:
        return StatusPending
    }
}
