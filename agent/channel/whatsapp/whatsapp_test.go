package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/channel"
	contractx "github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/contract"
	errcodex "github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/errcode"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeOrchestrator struct {
	handled  []contractx.Request
	rejected []int
}

func (f *fakeOrchestrator) Handle(ctx context.Context, req contractx.Request) contractx.Result {
	f.handled = append(f.handled, req)
	return contractx.Result{Success: true, RequestID: "req-wa", Response: "Yeah, we deliver!"}
}

func (f *fakeOrchestrator) Reject(ctx context.Context, code errcodex.Entry, req contractx.Request, cause error) contractx.Result {
	f.rejected = append(f.rejected, code.Code)
	return contractx.Result{RequestID: "req-r", Response: code.Message, ErrorCode: code.Code}
}

type fakeSender struct {
	err error
	to  []string
}

func (f *fakeSender) SendText(ctx context.Context, to, text string) error {
	f.to = append(f.to, to)
	return f.err
}

type fakeSink struct {
	records []contractx.ErrorRecord
}

func (f *fakeSink) Record(ctx context.Context, rec contractx.ErrorRecord) {
	f.records = append(f.records, rec)
}

var fixedNow = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

func payload(id, from string, sentAt time.Time, kind string) string {
	return fmt.Sprintf(`{"object":"whatsapp_business_account","entry":[{"changes":[{"field":"messages","value":{"messages":[
		{"id":%q,"from":%q,"timestamp":"%d","type":%q,"text":{"body":"do you deliver?"}}]}}]}]}`,
		id, from, sentAt.Unix(), kind)
}

func newTestAdapter(t *testing.T, sender Sender, sink contractx.ErrorSink) (*fakeOrchestrator, *gin.Engine) {
	t.Helper()
	orch := &fakeOrchestrator{}
	a, err := New(orch, sender, sink, nil, nil, Config{VerifyToken: "verify-me"})
	require.NoError(t, err)
	a.now = func() time.Time { return fixedNow }
	r := gin.New()
	a.Register(r)
	return orch, r
}

func post(r http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/whatsapp/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestVerifyHandshake(t *testing.T) {
	_, r := newTestAdapter(t, &fakeSender{}, &fakeSink{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/whatsapp/webhook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=12345", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "12345", w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/whatsapp/webhook?hub.mode=subscribe&hub.verify_token=nope&hub.challenge=12345", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestWebhookAnswersFreshMessage(t *testing.T) {
	sender := &fakeSender{}
	orch, r := newTestAdapter(t, sender, &fakeSink{})

	w := post(r, payload("wamid.1", "256700000001", fixedNow.Add(-time.Minute), "text"))
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, orch.handled, 1)
	assert.Equal(t, "whatsapp_256700000001", orch.handled[0].UserID)
	assert.Equal(t, "do you deliver?", orch.handled[0].Text)
	assert.Equal(t, []string{"256700000001"}, sender.to)
}

func TestWebhookRejectsStaleMessageBeforeResolving(t *testing.T) {
	sender := &fakeSender{}
	orch, r := newTestAdapter(t, sender, &fakeSink{})

	w := post(r, payload("wamid.2", "256700000002", fixedNow.Add(-25*time.Hour), "text"))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, []int{errcodex.WhatsAppSessionExpired.Code}, orch.rejected)
	assert.Empty(t, orch.handled, "no tier may run for a message outside the window")
	assert.Empty(t, sender.to)
}

func TestWebhookWindowBoundary(t *testing.T) {
	orch, r := newTestAdapter(t, &fakeSender{}, &fakeSink{})

	post(r, payload("wamid.3", "256700000003", fixedNow.Add(-24*time.Hour), "text"))
	assert.Len(t, orch.handled, 1, "exactly 24h old is still inside the window")
}

func TestWebhookRecordsDeliveryFailure(t *testing.T) {
	sink := &fakeSink{}
	sender := &fakeSender{err: fmt.Errorf("%w: status=400", channel.ErrSendFailed)}
	_, r := newTestAdapter(t, sender, sink)

	post(r, payload("wamid.4", "256700000004", fixedNow, "text"))
	require.Len(t, sink.records, 1)
	assert.Equal(t, errcodex.WhatsAppDeliveryFailed.Code, sink.records[0].ErrorCode)
	assert.Equal(t, "req-wa", sink.records[0].RequestID)
}

func TestWebhookIgnoresOtherTraffic(t *testing.T) {
	orch, r := newTestAdapter(t, &fakeSender{}, &fakeSink{})

	assert.Equal(t, http.StatusNotFound, post(r, `{"object":"page"}`).Code)
	assert.Equal(t, http.StatusOK, post(r, payload("wamid.5", "1", fixedNow, "image")).Code)
	post(r, payload("wamid.6", "1", fixedNow, "text"))
	post(r, payload("wamid.6", "1", fixedNow, "text"))

	assert.Len(t, orch.handled, 1)
}

func TestGraphClientSendText(t *testing.T) {
	var got outbound
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/PHONE/messages", r.URL.Path)
		assert.Equal(t, "Bearer TOKEN", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		if got.To == "bad" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, `{"messages":[{"id":"wamid.out"}]}`)
	}))
	defer server.Close()

	client, err := NewGraphClient(Config{AccessToken: "TOKEN", PhoneNumberID: "PHONE", APIBaseURL: server.URL}, server.Client())
	require.NoError(t, err)

	require.NoError(t, client.SendText(context.Background(), "256700000001", "hi"))
	assert.Equal(t, "whatsapp", got.MessagingProduct)
	assert.Equal(t, "hi", got.Text.Body)

	err = client.SendText(context.Background(), "bad", "hi")
	assert.True(t, errors.Is(err, channel.ErrSendFailed))

	_, err = NewGraphClient(Config{}, nil)
	assert.ErrorIs(t, err, channel.ErrNotConfigured)
}
