package webhook

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeEngine struct {
	gotSender string
	gotText   string
	reply     string
}

func (f *fakeEngine) Process(_ context.Context, senderID, text string) string {
	f.gotSender, f.gotText = senderID, text
	return f.reply
}

type fakeSender struct {
	sent map[string]string
	err  error
}

func (f *fakeSender) SendText(_ context.Context, to, body string) error {
	if f.sent == nil {
		f.sent = make(map[string]string)
	}
	f.sent[to] = body
	return f.err
}

// inlineDispatcher runs jobs synchronously so tests observe side effects.
type inlineDispatcher struct{}

func (inlineDispatcher) Dispatch(ctx context.Context, _ string, run func(ctx context.Context)) {
	run(ctx)
}

func newTestHandler(reply string) (*Handler, *fakeEngine, *fakeSender) {
	engine := &fakeEngine{reply: reply}
	sender := &fakeSender{}
	return NewHandler("verify-secret", engine, sender, inlineDispatcher{}), engine, sender
}

func TestVerifyChallengeAccepted(t *testing.T) {
	h, _, _ := newTestHandler("")
	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/webhook?hub.mode=subscribe&hub.verify_token=verify-secret&hub.challenge=12345")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "12345" {
		t.Errorf("challenge echo = %q", body)
	}
}

func TestVerifyBadTokenRejected(t *testing.T) {
	h, _, _ := newTestHandler("")
	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

const textDelivery = `{
  "entry": [{
    "changes": [{
      "value": {
        "messages": [{
          "from": "23059998877",
          "id": "wamid.HBgLMjMwNTk5OTg4NzcVAgARGBJGQkU3",
          "type": "text",
          "text": {"body": "hi"}
        }]
      }
    }]
  }]
}`

func TestReceiveTextMessageRunsTurnAndReplies(t *testing.T) {
	h, engine, sender := newTestHandler("👋 Hello!")
	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/webhook", "application/json", strings.NewReader(textDelivery))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "EVENT_RECEIVED" {
		t.Fatalf("ack = %d %q", resp.StatusCode, body)
	}

	if engine.gotSender != "23059998877" || engine.gotText != "hi" {
		t.Errorf("engine got %q / %q", engine.gotSender, engine.gotText)
	}
	if sender.sent["23059998877"] != "👋 Hello!" {
		t.Errorf("sent = %v", sender.sent)
	}
}

func TestReceiveIgnoresNonTextMessages(t *testing.T) {
	h, engine, sender := newTestHandler("should not be sent")
	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	payload := `{"entry":[{"changes":[{"value":{"messages":[{"from":"23059998877","id":"wamid.X","type":"image"}]}}]}]}`
	resp, err := http.Post(srv.URL+"/webhook", "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if engine.gotSender != "" {
		t.Errorf("engine should not run for non-text messages")
	}
	if len(sender.sent) != 0 {
		t.Errorf("nothing should be sent, got %v", sender.sent)
	}
}

func TestReceiveMalformedPayloadStillAcknowledged(t *testing.T) {
	h, _, _ := newTestHandler("")
	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/webhook", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "EVENT_RECEIVED" {
		t.Fatalf("ack = %d %q", resp.StatusCode, body)
	}
}

func TestManualSendEndpoint(t *testing.T) {
	h, _, sender := newTestHandler("")
	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/send-text", "application/json",
		strings.NewReader(`{"to":"23059998877","body":"service notice"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if sender.sent["23059998877"] != "service notice" {
		t.Errorf("sent = %v", sender.sent)
	}

	resp, err = http.Post(srv.URL+"/api/send-text", "application/json", strings.NewReader(`{"to":""}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing fields should be rejected, status = %d", resp.StatusCode)
	}
}
