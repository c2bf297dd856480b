package payment

import (
    "errors"
    "testing"

    "github.com/salonova/salon-reservation/internal/model"
)

func TestOrangeInterpretWebhook(t *testing.T) {
    g := NewOrangeGateway(OrangeConfig{})
    payload := []byte(`{"status":"SUCCESS","notif_token":"abc","txnid":"MP2509012345","pay_token":"tok-889900","amount":"15000"}`)
    ev, err := g.InterpretWebhook(payload)
    if err != nil {
        t.Fatalf("unexpected error: %v", err)
    }
    if ev.ExternalID != "tok-889900" || ev.Status != StatusSucceeded || ev.AmountMinor != 15000 {
        t.Fatalf("got %+v", ev)
    }
}

func TestOrangeInterpretWebhookExpired(t *testing.T) {
    g := NewOrangeGateway(OrangeConfig{})
    ev, err := g.InterpretWebhook([]byte(`{"status":"EXPIRED","pay_token":"tok-1","amount":"500"}`))
    if err != nil {
        t.Fatalf("unexpected error: %v", err)
    }
    if ev.Status != StatusCancelled {
        t.Fatalf("status = %s, want cancelled", ev.Status)
    }
}

func TestMTNInterpretWebhook(t *testing.T) {
    g := NewMTNGateway(MTNConfig{})
    payload := []byte(`{
        "referenceId":"7c6b2d1e-5a4f-4f3e-9d2c-1b0a9f8e7d6c",
        "externalId":"ord-42",
        "status":"SUCCESSFUL",
        "amount":"7500",
        "currency":"XOF"
    }`)
    ev, err := g.InterpretWebhook(payload)
    if err != nil {
        t.Fatalf("unexpected error: %v", err)
    }
    if ev.ExternalID != "7c6b2d1e-5a4f-4f3e-9d2c-1b0a9f8e7d6c" || ev.Status != StatusSucceeded || ev.AmountMinor != 7500 {
        t.Fatalf("got %+v", ev)
    }
}

func TestMTNInterpretWebhookRejected(t *testing.T) {
    g := NewMTNGateway(MTNConfig{})
    payload := []byte(`{"referenceId":"ref-1","status":"REJECTED","amount":"7500","reason":{"code":"PAYER_LIMIT_REACHED","message":"limit"}}`)
    ev, err := g.InterpretWebhook(payload)
    if err != nil {
        t.Fatalf("unexpected error: %v", err)
    }
    if ev.Status != StatusFailed {
        t.Fatalf("status = %s, want failed", ev.Status)
    }
}

func TestWaveInterpretWebhook(t *testing.T) {
    g := NewWaveGateway(WaveConfig{})
    payload := []byte(`{
        "type":"checkout.session.completed",
        "data":{"id":"cos-18qq25rgr100a","payment_status":"succeeded","amount":"12000","currency":"XOF"}
    }`)
    ev, err := g.InterpretWebhook(payload)
    if err != nil {
        t.Fatalf("unexpected error: %v", err)
    }
    if ev.ExternalID != "cos-18qq25rgr100a" || ev.Status != StatusSucceeded || ev.AmountMinor != 12000 {
        t.Fatalf("got %+v", ev)
    }
}

func TestInterpretWebhookRejectsGarbage(t *testing.T) {
    gateways := []Gateway{
        NewOrangeGateway(OrangeConfig{}),
        NewMTNGateway(MTNConfig{}),
        NewWaveGateway(WaveConfig{}),
    }
    for _, g := range gateways {
        if _, err := g.InterpretWebhook([]byte(`not json`)); !errors.Is(err, ErrBadWebhook) {
            t.Fatalf("%s: err = %v, want ErrBadWebhook", g.Name(), err)
        }
        if _, err := g.InterpretWebhook([]byte(`{}`)); !errors.Is(err, ErrBadWebhook) {
            t.Fatalf("%s: empty payload err = %v, want ErrBadWebhook", g.Name(), err)
        }
    }
}

func TestParseMinorAmount(t *testing.T) {
    cases := []struct {
        in      string
        want    int64
        wantErr bool
    }{
        {"1500", 1500, false},
        {"1500.00", 1500, false},
        {" 250 ", 250, false},
        {"", 0, false},
        {"12.50", 0, true},
        {"abc", 0, true},
    }
    for _, tc := range cases {
        got, err := parseMinorAmount(tc.in)
        if tc.wantErr {
            if err == nil {
                t.Fatalf("parseMinorAmount(%q): expected error", tc.in)
            }
            continue
        }
        if err != nil || got != tc.want {
            t.Fatalf("parseMinorAmount(%q) = %d, %v; want %d", tc.in, got, err, tc.want)
        }
    }
}

func TestTerminalFor(t *testing.T) {
    cases := []struct {
        in       NormalizedStatus
        want     model.PaymentStatus
        terminal bool
    }{
        {StatusSucceeded, model.PaymentStatusCompleted, true},
        {StatusFailed, model.PaymentStatusFailed, true},
        {StatusCancelled, model.PaymentStatusFailed, true},
        {StatusPending, "", false},
    }
    for _, tc := range cases {
        got, terminal := terminalFor(tc.in)
        if got != tc.want || terminal != tc.terminal {
            t.Fatalf("terminalFor(%s) = %s, %v; want %s, %v", tc.in, got, terminal, tc.want, tc.terminal)
        }
    }
}

func TestRegistryByName(t *testing.T) {
    reg := NewRegistry(NewOrangeGateway(OrangeConfig{}), NewWaveGateway(WaveConfig{}))
    if _, err := reg.ByName(model.ProviderOrange); err != nil {
        t.Fatalf("orange lookup failed: %v", err)
    }
    if _, err := reg.ByName(model.ProviderMTN); !errors.Is(err, ErrUnknownProvider) {
        t.Fatalf("err = %v, want ErrUnknownProvider", err)
    }
}
