package ingress

import (
    "bytes"
    "encoding/json"
    "net/http/httptest"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/hamzaKhattat/lead-router-core/pkg/logger"
)

// These tests only exercise the auth and validation failure paths, which
// return before the handler ever touches the assignment engine — so a nil
// engine is safe here. The package logger is initialized because every
// rejection is logged through it. The success path requires a real Assign
// call against a database and isn't covered by these handler tests.

func newTestServer(secret string) *Server {
    if err := logger.Init(logger.Config{Level: "error", Format: "text"}); err != nil {
        panic(err)
    }
    return NewServer(Config{SharedSecret: secret, HeaderName: "X-Webhook-Secret"}, nil)
}

func TestHandleLead_MissingSecret(t *testing.T) {
    s := newTestServer("topsecret")

    req := httptest.NewRequest("POST", "/leads", bytes.NewBufferString(`{}`))
    rec := httptest.NewRecorder()

    s.server.Handler.ServeHTTP(rec, req)

    assert.Equal(t, 401, rec.Code)

    var body map[string]string
    require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
    assert.Contains(t, body["error"], "invalid webhook secret")
}

func TestHandleLead_WrongSecret(t *testing.T) {
    s := newTestServer("topsecret")

    req := httptest.NewRequest("POST", "/leads", bytes.NewBufferString(`{}`))
    req.Header.Set("X-Webhook-Secret", "wrong")
    rec := httptest.NewRecorder()

    s.server.Handler.ServeHTTP(rec, req)

    assert.Equal(t, 401, rec.Code)
}

func TestHandleLead_NoSharedSecretConfigured_SkipsAuth(t *testing.T) {
    s := newTestServer("")

    req := httptest.NewRequest("POST", "/leads", bytes.NewBufferString(`not json`))
    rec := httptest.NewRecorder()

    s.server.Handler.ServeHTTP(rec, req)

    // Auth is skipped, but the malformed body still fails validation before
    // the engine would be touched.
    assert.Equal(t, 400, rec.Code)
}

func TestHandleLead_MalformedJSON(t *testing.T) {
    s := newTestServer("topsecret")

    req := httptest.NewRequest("POST", "/leads", bytes.NewBufferString(`{not json`))
    req.Header.Set("X-Webhook-Secret", "topsecret")
    rec := httptest.NewRecorder()

    s.server.Handler.ServeHTTP(rec, req)

    assert.Equal(t, 400, rec.Code)
}

func TestHandleLead_MissingPhone(t *testing.T) {
    s := newTestServer("topsecret")

    payload := leadPayload{
        Name:            "Asha Rao",
        SourceTimestamp: time.Now(),
    }
    body, err := json.Marshal(payload)
    require.NoError(t, err)

    req := httptest.NewRequest("POST", "/leads", bytes.NewReader(body))
    req.Header.Set("X-Webhook-Secret", "topsecret")
    rec := httptest.NewRecorder()

    s.server.Handler.ServeHTTP(rec, req)

    assert.Equal(t, 400, rec.Code)

    var respBody map[string]string
    require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &respBody))
    assert.Contains(t, respBody["error"], "phone is required")
}

func TestHandleLead_MissingSourceTimestamp(t *testing.T) {
    s := newTestServer("topsecret")

    payload := leadPayload{
        Name:  "Asha Rao",
        Phone: "+919876543210",
    }
    body, err := json.Marshal(payload)
    require.NoError(t, err)

    req := httptest.NewRequest("POST", "/leads", bytes.NewReader(body))
    req.Header.Set("X-Webhook-Secret", "topsecret")
    rec := httptest.NewRecorder()

    s.server.Handler.ServeHTTP(rec, req)

    assert.Equal(t, 400, rec.Code)

    var respBody map[string]string
    require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &respBody))
    assert.Contains(t, respBody["error"], "source_timestamp is required")
}
