package payment

import (
    "context"
    "fmt"
    "net/http"
    "strings"

    "github.com/google/uuid"

    "github.com/salonova/salon-reservation/internal/model"
)

// MTNConfig holds the MTN MoMo Collections credentials.
type MTNConfig struct {
    BaseURL         string // e.g. https://api.mtn.com/collection/v1_0
    SubscriptionKey string
    AuthToken       string
    TargetEnv       string // sandbox or production
}

// MTNGateway talks to the MTN Mobile Money Collections API.  MoMo is
// reference-id driven: we mint a UUID per request-to-pay and that id
// is what status queries and callbacks carry.
type MTNGateway struct {
    cfg    MTNConfig
    client *http.Client
}

// NewMTNGateway builds an MTNGateway sharing the default client.
func NewMTNGateway(cfg MTNConfig) *MTNGateway {
    return &MTNGateway{cfg: cfg, client: defaultHTTPClient}
}

func (g *MTNGateway) Name() model.PaymentProvider { return model.ProviderMTN }

func (g *MTNGateway) headers(extra map[string]string) map[string]string {
    h := map[string]string{
        "Authorization":             "Bearer " + g.cfg.AuthToken,
        "Ocp-Apim-Subscription-Key": g.cfg.SubscriptionKey,
        "X-Target-Environment":      g.cfg.TargetEnv,
    }
    for k, v := range extra {
        h[k] = v
    }
    return h
}

// Initiate posts a request-to-pay.  MoMo answers 202 with an empty
// body; the reference id we minted is the external id.
func (g *MTNGateway) Initiate(ctx context.Context, req InitiateRequest) (*ExternalTransaction, error) {
    referenceID := uuid.NewString()
    body := map[string]any{
        "amount":     fmt.Sprintf("%d", req.AmountMinor),
        "currency":   req.Currency,
        "externalId": req.Reference,
        "payer": map[string]string{
            "partyIdType": "MSISDN",
            "partyId":     req.Phone,
        },
        "payerMessage": req.Description,
        "payeeNote":    req.Reference,
    }
    headers := g.headers(map[string]string{"X-Reference-Id": referenceID})
    if err := postJSON(ctx, g.client, g.cfg.BaseURL+"/requesttopay", headers, body, nil); err != nil {
        return nil, err
    }
    return &ExternalTransaction{ExternalID: referenceID}, nil
}

// QueryStatus polls the request-to-pay resource.
func (g *MTNGateway) QueryStatus(ctx context.Context, externalID string) (NormalizedStatus, error) {
    var out struct {
        Status string `json:"status"`
    }
    url := g.cfg.BaseURL + "/requesttopay/" + externalID
    if err := getJSON(ctx, g.client, url, g.headers(nil), &out); err != nil {
        return "", err
    }
    return mtnStatus(out.Status), nil
}

// mtnWebhook is the callback MoMo delivers when a request-to-pay
// settles.  It echoes the request-to-pay resource.
type mtnWebhook struct {
    ReferenceID string `json:"referenceId"`
    ExternalID  string `json:"externalId"`
    Status      string `json:"status"`
    Amount      string `json:"amount"`
    Currency    string `json:"currency"`
    Reason      struct {
        Code    string `json:"code"`
        Message string `json:"message"`
    } `json:"reason"`
}

// InterpretWebhook parses an MTN MoMo callback.
func (g *MTNGateway) InterpretWebhook(payload []byte) (*WebhookEvent, error) {
    var w mtnWebhook
    if err := unmarshalWebhook(payload, &w); err != nil {
        return nil, err
    }
    if w.ReferenceID == "" {
        return nil, fmt.Errorf("%w: missing referenceId", ErrBadWebhook)
    }
    amount, err := parseMinorAmount(w.Amount)
    if err != nil {
        return nil, fmt.Errorf("%w: %v", ErrBadWebhook, err)
    }
    return &WebhookEvent{
        ExternalID:  w.ReferenceID,
        Status:      mtnStatus(w.Status),
        AmountMinor: amount,
    }, nil
}

func mtnStatus(s string) NormalizedStatus {
    switch strings.ToUpper(s) {
    case "SUCCESSFUL":
        return StatusSucceeded
    case "FAILED", "REJECTED", "TIMEOUT":
        return StatusFailed
    default:
        return StatusPending
    }
}
