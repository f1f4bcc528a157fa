package channel

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
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yahir019cx/pool-and-chill-app/internal/health"
	"github.com/Yahir019cx/pool-and-chill-app/internal/sdk"
	"github.com/Yahir019cx/pool-and-chill-app/internal/sdk/sdktest"
	"github.com/Yahir019cx/pool-and-chill-app/internal/session"
	"github.com/Yahir019cx/pool-and-chill-app/internal/verification"
)

const waitFor = 2 * time.Second

type harness struct {
	fake   *sdktest.FakeSDK
	bridge *verification.Bridge
	store  *session.Store
	bc     *Broadcaster
	srv    *httptest.Server
}

func newHarness(t *testing.T, opts Options, bridgeOpts ...verification.Option) *harness {
	t.Helper()
	fake := sdktest.New()
	store := session.NewStore(10)
	tracker := health.NewTracker(0)
	bridge := verification.NewBridge(fake, append([]verification.Option{
		verification.WithLogger(zerolog.Nop()),
		verification.WithObserver(verification.Observers{store, tracker}),
	}, bridgeOpts...)...)
	require.NoError(t, bridge.Initialize(context.Background(), sdk.AppContext{Name: "test"}))

	bc := NewBroadcaster(fake.State(), store, nil, 0, 4)
	s := NewServer(bridge, store, bc, health.NewChecker(tracker), opts)
	srv := httptest.NewServer(s.Handler())

	t.Cleanup(func() {
		srv.Close()
		bc.Stop()
		bridge.Close()
		fake.Close()
	})
	return &harness{fake: fake, bridge: bridge, store: store, bc: bc, srv: srv}
}

func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	snap := readUntil(t, conn, MsgSnapshot)
	var payload SnapshotPayload
	require.NoError(t, json.Unmarshal(snap.Payload, &payload))
	require.Equal(t, ChannelName, payload.Channel)
	return conn
}

// wireMessage mirrors Message with a raw payload for decoding.
type wireMessage struct {
	Type    MessageType     `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
	Error   *ErrorPayload   `json:"error"`
}

func readUntil(t *testing.T, conn *websocket.Conn, typ MessageType) wireMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitFor)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var msg wireMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		if msg.Type == typ {
			return msg
		}
	}
}

func invoke(t *testing.T, conn *websocket.Conn, id, method, token string) {
	t.Helper()
	args, _ := json.Marshal(StartArgs{SessionToken: token})
	require.NoError(t, conn.WriteJSON(Message{Type: MsgInvoke, ID: id, Method: method, Args: args}))
}

func (h *harness) waitPending(t *testing.T) *verification.Request {
	t.Helper()
	require.Eventually(t, func() bool { return h.bridge.Pending() != nil }, waitFor, time.Millisecond)
	return h.bridge.Pending()
}

func TestWSInvokeApproved(t *testing.T) {
	h := newHarness(t, Options{})
	conn := h.dial(t)

	invoke(t, conn, "1", MethodStartVerification, "approve-abc")
	h.waitPending(t)

	h.fake.Emit(sdk.StateLoading(), sdk.StateReady())
	st := readUntil(t, conn, MsgSDKState)
	assert.JSONEq(t, `{"state":"loading"}`, string(st.Payload))
	require.Eventually(t, func() bool { return h.fake.LaunchCount() == 1 }, waitFor, time.Millisecond)

	h.fake.Complete(sdk.RawResult{Kind: sdk.ResultCompleted, Status: "Approved"})
	res := readUntil(t, conn, MsgResult)
	assert.Equal(t, "1", res.ID)
	assert.Nil(t, res.Error)
	assert.JSONEq(t, `"APPROVED"`, string(res.Payload))
}

func TestWSInvokeSDKError(t *testing.T) {
	h := newHarness(t, Options{})
	conn := h.dial(t)

	invoke(t, conn, "7", MethodStartVerification, "sdkerr-abc")
	h.waitPending(t)
	h.fake.Emit(sdk.StateError("session expired"))

	res := readUntil(t, conn, MsgResult)
	require.NotNil(t, res.Error)
	assert.Equal(t, verification.CodeSDKError, res.Error.Code)
	assert.Equal(t, "session expired", res.Error.Message)
	assert.Equal(t, 0, h.fake.LaunchCount())
}

func TestWSInvokeLaunchPolicyReturnsNull(t *testing.T) {
	h := newHarness(t, Options{}, verification.WithResolvePolicy(verification.ResolveOnLaunch))
	conn := h.dial(t)

	invoke(t, conn, "2", MethodStartVerification, "approve-abc")
	h.waitPending(t)
	h.fake.Emit(sdk.StateReady())

	res := readUntil(t, conn, MsgResult)
	assert.Nil(t, res.Error)
	assert.Equal(t, "null", string(res.Payload))
}

func TestWSInvokeBlankToken(t *testing.T) {
	h := newHarness(t, Options{})
	conn := h.dial(t)

	invoke(t, conn, "3", MethodStartVerification, "   ")
	res := readUntil(t, conn, MsgResult)
	require.NotNil(t, res.Error)
	assert.Equal(t, verification.CodeInvalidArgs, res.Error.Code)
	assert.Equal(t, 0, h.fake.StartCount())
}

func TestWSUnknownMethod(t *testing.T) {
	h := newHarness(t, Options{})
	conn := h.dial(t)

	invoke(t, conn, "4", "openCamera", "tok")
	res := readUntil(t, conn, MsgResult)
	require.NotNil(t, res.Error)
	assert.Equal(t, verification.CodeNotImplemented, res.Error.Code)
	assert.Equal(t, "4", res.ID)
}

func TestWSMalformedFrame(t *testing.T) {
	h := newHarness(t, Options{})
	conn := h.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	res := readUntil(t, conn, MsgError)
	require.NotNil(t, res.Error)
	assert.Equal(t, verification.CodeInvalidArgs, res.Error.Code)
}

func TestHTTPStartWaitsForOutcome(t *testing.T) {
	h := newHarness(t, Options{})

	type result struct {
		status int
		body   []byte
	}
	done := make(chan result, 1)
	go func() {
		resp, err := http.Post(h.srv.URL+"/api/verifications", "application/json",
			strings.NewReader(`{"sessionToken":"review-abc"}`))
		if err != nil {
			done <- result{}
			return
		}
		defer resp.Body.Close()
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(resp.Body)
		done <- result{status: resp.StatusCode, body: buf.Bytes()}
	}()

	h.waitPending(t)
	h.fake.Complete(sdk.RawResult{Kind: sdk.ResultCompleted, Status: "In Review"})

	select {
	case r := <-done:
		require.Equal(t, http.StatusOK, r.status, string(r.body))
		var body startResponse
		require.NoError(t, json.Unmarshal(r.body, &body))
		require.NotNil(t, body.Value)
		assert.Equal(t, "IN_REVIEW", *body.Value)
		assert.NotEmpty(t, body.CorrelationID)
	case <-time.After(waitFor):
		t.Fatal("POST never returned")
	}
}

func TestHTTPStartErrors(t *testing.T) {
	h := newHarness(t, Options{})

	resp, err := http.Post(h.srv.URL+"/api/verifications", "application/json", strings.NewReader(`{"sessionToken":""}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Occupy the slot over the websocket, then collide over HTTP.
	conn := h.dial(t)
	invoke(t, conn, "1", MethodStartVerification, "approve-abc")
	h.waitPending(t)

	resp, err = http.Post(h.srv.URL+"/api/verifications", "application/json", strings.NewReader(`{"sessionToken":"approve-2"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	var p ErrorPayload
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&p))
	assert.Equal(t, verification.CodeAlreadyPending, p.Code)
	assert.Equal(t, 1, h.fake.StartCount())
}

func TestHTTPStateAndAttempts(t *testing.T) {
	h := newHarness(t, Options{})
	conn := h.dial(t)

	invoke(t, conn, "1", MethodStartVerification, "approve-secret")
	req := h.waitPending(t)

	resp, err := http.Get(h.srv.URL + "/api/state")
	require.NoError(t, err)
	var st stateResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	resp.Body.Close()
	assert.Equal(t, ChannelName, st.Channel)
	require.NotNil(t, st.Pending)
	assert.Equal(t, req.ID, st.Pending.RequestID)

	h.fake.Complete(sdk.RawResult{Kind: sdk.ResultCancelled})
	readUntil(t, conn, MsgResult)

	resp, err = http.Get(h.srv.URL + "/api/attempts")
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	assert.NotContains(t, buf.String(), "secret")

	var attempts []*session.Attempt
	require.NoError(t, json.Unmarshal(buf.Bytes(), &attempts))
	require.Len(t, attempts, 1)
	assert.Equal(t, session.Cancelled, attempts[0].Status)
	assert.Equal(t, len("approve-secret"), attempts[0].TokenLen)

	resp2, err := http.Get(h.srv.URL + "/api/attempts/" + attempts[0].ID)
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)

	resp3, err := http.Get(h.srv.URL + "/api/attempts/nope")
	require.NoError(t, err)
	resp3.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp3.StatusCode)
}

func TestAttemptBroadcast(t *testing.T) {
	h := newHarness(t, Options{})
	conn := h.dial(t)

	invoke(t, conn, "1", MethodStartVerification, "approve-abc")
	msg := readUntil(t, conn, MsgAttempt)
	var a session.Attempt
	require.NoError(t, json.Unmarshal(msg.Payload, &a))
	assert.Equal(t, session.Pending, a.Status)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t, Options{})

	resp, err := http.Get(h.srv.URL + "/api/health")
	require.NoError(t, err)
	var report health.Report
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, health.StatusHealthy, report.Status)

	resp, err = http.Get(h.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	assert.Contains(t, buf.String(), "didit_channel_clients")
}

func TestAuthRequired(t *testing.T) {
	h := newHarness(t, Options{AuthToken: "s3cret"})

	resp, err := http.Get(h.srv.URL + "/api/state")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, h.srv.URL+"/api/state", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(h.srv.URL + "/api/state?token=s3cret")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	wsURL := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws"
	_, resp, err = websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	h := newHarness(t, Options{RateLimit: 2})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := http.Post(h.srv.URL+"/api/verifications", "application/json", strings.NewReader(`{}`))
		require.NoError(t, err)
		resp.Body.Close()
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{http.StatusBadRequest, http.StatusBadRequest, http.StatusTooManyRequests}, codes)
}

func TestSecurityHeaders(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	securityHeaders(inner).ServeHTTP(rec, req)

	want := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"X-XSS-Protection":        "1; mode=block",
		"Content-Security-Policy": "default-src 'self'",
	}

	for header, expected := range want {
		if got := rec.Header().Get(header); got != expected {
			t.Errorf("header %s = %q, want %q", header, got, expected)
		}
	}
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		host    string
		want    bool
	}{
		{"no origin", nil, "", "example.com", true},
		{"same host", nil, "http://example.com", "example.com", true},
		{"localhost", nil, "http://localhost:5173", "example.com", true},
		{"loopback v6", nil, "http://[::1]:3000", "example.com", true},
		{"foreign", nil, "http://evil.test", "example.com", false},
		{"allowlisted", []string{"https://app.poolandchill.com"}, "https://app.poolandchill.com", "x", true},
		{"allowlist excludes localhost", []string{"https://app.poolandchill.com"}, "http://localhost", "x", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(nil, nil, nil, nil, Options{AllowedOrigins: tt.allowed})
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			r.Host = tt.host
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, s.checkOrigin(r))
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := map[verification.Code]int{
		verification.CodeInvalidArgs:        http.StatusBadRequest,
		verification.CodeAlreadyPending:     http.StatusConflict,
		verification.CodeNotInitialized:     http.StatusServiceUnavailable,
		verification.CodeSDKError:           http.StatusBadGateway,
		verification.CodeVerificationFailed: http.StatusUnprocessableEntity,
		verification.CodeTimeout:            http.StatusGatewayTimeout,
	}
	for code, want := range tests {
		assert.Equal(t, want, statusFor(code), code)
	}
}

func TestResultMessageJSON(t *testing.T) {
	b, err := json.Marshal(resultMessage("9", verification.Launched()))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"result","id":"9","payload":null}`, string(b))

	b, err = json.Marshal(resultMessage("9", verification.Cancelled()))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"result","id":"9","payload":"CANCELLED"}`, string(b))

	b, err = json.Marshal(resultMessage("9", verification.Failed(verification.CodeVerificationFailed, "")))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"result","id":"9","payload":null,"error":{"code":"VERIFICATION_FAILED","message":"Unknown error"}}`, string(b))
}
