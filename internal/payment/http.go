package payment

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "time"
)

// defaultHTTPClient is shared by the provider clients.  The timeout
// bounds how long a customer request may hang on a slow provider.
var defaultHTTPClient = &http.Client{Timeout: 15 * time.Second}

// postJSON sends a JSON body and decodes a JSON answer into out.
// Network errors and 5xx answers map to ErrGatewayUnavailable; any
// other non-2xx answer maps to ErrGatewayDeclined with the provider's
// message attached.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out any) error {
    payload, err := json.Marshal(body)
    if err != nil {
        return err
    }
    req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
    if err != nil {
        return err
    }
    req.Header.Set("Content-Type", "application/json")
    for k, v := range headers {
        req.Header.Set(k, v)
    }
    return doJSON(client, req, out)
}

// getJSON fetches a JSON document.
func getJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, out any) error {
    req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
    if err != nil {
        return err
    }
    for k, v := range headers {
        req.Header.Set(k, v)
    }
    return doJSON(client, req, out)
}

func doJSON(client *http.Client, req *http.Request, out any) error {
    resp, err := client.Do(req)
    if err != nil {
        return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
    }
    defer resp.Body.Close()
    raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
    if err != nil {
        return fmt.Errorf("%w: read body: %v", ErrGatewayUnavailable, err)
    }
    switch {
    case resp.StatusCode >= 500:
        return fmt.Errorf("%w: status %d", ErrGatewayUnavailable, resp.StatusCode)
    case resp.StatusCode >= 300:
        return fmt.Errorf("%w: status %d: %s", ErrGatewayDeclined, resp.StatusCode, truncate(raw, 256))
    }
    if out == nil {
        return nil
    }
    if err := json.Unmarshal(raw, out); err != nil {
        return fmt.Errorf("%w: decode answer: %v", ErrGatewayUnavailable, err)
    }
    return nil
}

func truncate(b []byte, n int) string {
    if len(b) > n {
        b = b[:n]
    }
    return string(b)
}
