// Package payment integrates the mobile-money providers and
// reconciles their asynchronous webhook callbacks against local
// payment rows.
package payment

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "strconv"
    "strings"

    "github.com/salonova/salon-reservation/internal/model"
)

// Gateway errors.  Unavailable means the provider could not be
// reached or answered with a server error, so the attempt may be
// retried; Declined means the provider rejected the request and
// retrying the same request will not help.
var (
    ErrGatewayUnavailable = errors.New("payment provider unavailable")
    ErrGatewayDeclined    = errors.New("payment provider declined the request")
    ErrUnknownProvider    = errors.New("unknown payment provider")
    ErrBadWebhook         = errors.New("malformed webhook payload")
)

// NormalizedStatus is the provider-independent view of a transaction
// state.  Each gateway maps its own wire vocabulary onto these.
type NormalizedStatus string

const (
    StatusPending   NormalizedStatus = "pending"
    StatusSucceeded NormalizedStatus = "succeeded"
    StatusFailed    NormalizedStatus = "failed"
    StatusCancelled NormalizedStatus = "cancelled"
)

// InitiateRequest carries everything needed to open a transaction
// with a provider.  Reference is our own idempotency key and becomes
// part of the provider-side order id.
type InitiateRequest struct {
    Reference   string
    AmountMinor int64
    Currency    string
    Phone       string
    Description string
    ReturnURL   string
}

// ExternalTransaction is the provider's answer to an initiation.
// ExternalID is what later webhooks will carry; PaymentURL, when
// present, is where the customer completes the payment.
type ExternalTransaction struct {
    ExternalID string
    PaymentURL string
}

// WebhookEvent is a provider callback reduced to the fields the
// reconciler needs.
type WebhookEvent struct {
    ExternalID  string
    Status      NormalizedStatus
    AmountMinor int64
}

// Gateway is one mobile-money provider integration.
type Gateway interface {
    // Name returns the provider this gateway serves.
    Name() model.PaymentProvider
    // Initiate opens a transaction with the provider.
    Initiate(ctx context.Context, req InitiateRequest) (*ExternalTransaction, error)
    // QueryStatus polls the provider for the current transaction state.
    QueryStatus(ctx context.Context, externalID string) (NormalizedStatus, error)
    // InterpretWebhook parses a raw callback body into a WebhookEvent.
    // It is a pure function of the payload; signature verification and
    // persistence happen elsewhere.
    InterpretWebhook(payload []byte) (*WebhookEvent, error)
}

// Registry resolves gateways by provider name.
type Registry struct {
    byName map[model.PaymentProvider]Gateway
}

// NewRegistry builds a Registry from the given gateways.
func NewRegistry(gateways ...Gateway) *Registry {
    m := make(map[model.PaymentProvider]Gateway, len(gateways))
    for _, g := range gateways {
        m[g.Name()] = g
    }
    return &Registry{byName: m}
}

// ByName returns the gateway for a provider, or ErrUnknownProvider.
func (r *Registry) ByName(p model.PaymentProvider) (Gateway, error) {
    g, ok := r.byName[p]
    if !ok {
        return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, p)
    }
    return g, nil
}

// unmarshalWebhook decodes a callback body, mapping syntax errors to
// ErrBadWebhook so handlers can answer 400 rather than 500.
func unmarshalWebhook(payload []byte, out any) error {
    if err := json.Unmarshal(payload, out); err != nil {
        return fmt.Errorf("%w: %v", ErrBadWebhook, err)
    }
    return nil
}

// parseMinorAmount converts a provider amount string ("1500" or
// "1500.00") into integer minor units.  XOF has no fractional unit so
// a decimal part, when present, must be zero.
func parseMinorAmount(s string) (int64, error) {
    s = strings.TrimSpace(s)
    if s == "" {
        return 0, nil
    }
    whole, frac, found := strings.Cut(s, ".")
    n, err := strconv.ParseInt(whole, 10, 64)
    if err != nil {
        return 0, fmt.Errorf("parse amount %q: %w", s, err)
    }
    if found && strings.Trim(frac, "0") != "" {
        return 0, fmt.Errorf("amount %q has a fractional part", s)
    }
    return n, nil
}
