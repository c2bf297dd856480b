package payment

import (
    "context"
    "fmt"
    "net/http"
    "strings"

    "github.com/salonova/salon-reservation/internal/model"
)

// OrangeConfig holds the Orange Money Web Payment credentials.
type OrangeConfig struct {
    BaseURL      string // e.g. https://api.orange.com/orange-money-webpay/v1
    MerchantKey  string
    AuthToken    string // OAuth bearer obtained out of band
    CallbackURL  string
}

// OrangeGateway talks to the Orange Money Web Payment API.
type OrangeGateway struct {
    cfg    OrangeConfig
    client *http.Client
}

// NewOrangeGateway builds an OrangeGateway sharing the default client.
func NewOrangeGateway(cfg OrangeConfig) *OrangeGateway {
    return &OrangeGateway{cfg: cfg, client: defaultHTTPClient}
}

func (g *OrangeGateway) Name() model.PaymentProvider { return model.ProviderOrange }

func (g *OrangeGateway) headers() map[string]string {
    return map[string]string{"Authorization": "Bearer " + g.cfg.AuthToken}
}

// Initiate opens a web payment session.  Orange amounts are plain
// integer strings for XOF.
func (g *OrangeGateway) Initiate(ctx context.Context, req InitiateRequest) (*ExternalTransaction, error) {
    body := map[string]any{
        "merchant_key": g.cfg.MerchantKey,
        "currency":     req.Currency,
        "order_id":     req.Reference,
        "amount":       fmt.Sprintf("%d", req.AmountMinor),
        "return_url":   req.ReturnURL,
        "cancel_url":   req.ReturnURL,
        "notif_url":    g.cfg.CallbackURL,
        "lang":         "fr",
        "reference":    req.Description,
    }
    var out struct {
        PayToken   string `json:"pay_token"`
        PaymentURL string `json:"payment_url"`
    }
    if err := postJSON(ctx, g.client, g.cfg.BaseURL+"/webpayment", g.headers(), body, &out); err != nil {
        return nil, err
    }
    if out.PayToken == "" {
        return nil, fmt.Errorf("%w: missing pay_token", ErrGatewayDeclined)
    }
    return &ExternalTransaction{ExternalID: out.PayToken, PaymentURL: out.PaymentURL}, nil
}

// QueryStatus polls the transaction status endpoint.
func (g *OrangeGateway) QueryStatus(ctx context.Context, externalID string) (NormalizedStatus, error) {
    var out struct {
        Status string `json:"status"`
    }
    url := fmt.Sprintf("%s/transactionstatus?pay_token=%s", g.cfg.BaseURL, externalID)
    if err := getJSON(ctx, g.client, url, g.headers(), &out); err != nil {
        return "", err
    }
    return orangeStatus(out.Status), nil
}

// orangeWebhook is the notification Orange posts to notif_url.
type orangeWebhook struct {
    Status   string `json:"status"`
    TxnID    string `json:"txnid"`
    PayToken string `json:"pay_token"`
    Amount   string `json:"amount"`
}

// InterpretWebhook parses an Orange Money notification.  The pay
// token identifies our transaction; txnid is Orange's own ledger id.
func (g *OrangeGateway) InterpretWebhook(payload []byte) (*WebhookEvent, error) {
    var w orangeWebhook
    if err := unmarshalWebhook(payload, &w); err != nil {
        return nil, err
    }
    if w.PayToken == "" {
        return nil, fmt.Errorf("%w: missing pay_token", ErrBadWebhook)
    }
    amount, err := parseMinorAmount(w.Amount)
    if err != nil {
        return nil, fmt.Errorf("%w: %v", ErrBadWebhook, err)
    }
    return &WebhookEvent{
        ExternalID:  w.PayToken,
        Status:      orangeStatus(w.Status),
        AmountMinor: amount,
    }, nil
}

func orangeStatus(s string) NormalizedStatus {
    switch strings.ToUpper(s) {
    case "SUCCESS", "SUCCESSFULL": // the API spells both
        return StatusSucceeded
    case "FAILED":
        return StatusFailed
    case "EXPIRED":
        return StatusCancelled
    default:
        return StatusPending
    }
}
