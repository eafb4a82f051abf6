package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"nasdaq-drop-alerts/internal/engine"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testNotification() Notification {
	return Notification{
		Subject:   "NASDAQ Alert: 1 abnormal drop(s)",
		CycleID:   "cycle-1",
		CreatedAt: time.Date(2026, 8, 19, 15, 0, 0, 0, time.UTC),
		Alerts: []Alert{
			{
				Symbol:         "AAPL",
				Rule:           engine.RuleRelativeDrop,
				Message:        "AAPL fell -6% vs previous close",
				ChangePercent:  decimal.NewFromInt(-6),
				CurrentPrice:   decimal.NewFromInt(94),
				ReferencePrice: decimal.NewFromInt(100),
				ReferenceLabel: "previous close",
			},
		},
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("路径应包含 sendMessage, 实际 %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), testNotification()); err != nil {
		t.Fatalf("Telegram Notify 应成功: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id 不正确: %#v", received)
	}
	if !strings.Contains(received["text"], "AAPL") || !strings.Contains(received["text"], "RELATIVE_DROP") {
		t.Fatalf("text 应包含告警内容: %q", received["text"])
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), testNotification()); err == nil {
		t.Fatal("ok=false 应报错")
	}
}

func TestEmailNotifierComposesMessage(t *testing.T) {
	notifier := NewEmailNotifier(EmailOptions{
		Host: "smtp.example.com",
		Port: 587,
		From: "alerts@example.com",
		To:   []string{"ops@example.com"},
	}, testLogger())

	var sentTo []string
	var sentBody string
	notifier.send = func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
		if addr != "smtp.example.com:587" {
			t.Fatalf("unexpected addr %s", addr)
		}
		sentTo = to
		sentBody = string(msg)
		return nil
	}

	if err := notifier.Notify(context.Background(), testNotification()); err != nil {
		t.Fatalf("email notify should succeed: %v", err)
	}
	if len(sentTo) != 1 || sentTo[0] != "ops@example.com" {
		t.Fatalf("unexpected recipients: %v", sentTo)
	}
	if !strings.Contains(sentBody, "Subject: NASDAQ Alert") || !strings.Contains(sentBody, "AAPL") {
		t.Fatalf("mail body incomplete: %q", sentBody)
	}
}

func TestEmailNotifierMissingConfig(t *testing.T) {
	notifier := NewEmailNotifier(EmailOptions{}, testLogger())
	if err := notifier.Notify(context.Background(), testNotification()); err == nil {
		t.Fatal("unconfigured email channel should error")
	}
}

type stubNotifier struct {
	err   error
	calls int
}

func (s *stubNotifier) Notify(ctx context.Context, note Notification) error {
	s.calls++
	return s.err
}

func TestMultiDeliversDespitePartialFailure(t *testing.T) {
	failing := &stubNotifier{err: errors.New("down")}
	working := &stubNotifier{}

	multi := NewMulti(testLogger(), failing, working)
	if err := multi.Notify(context.Background(), testNotification()); err != nil {
		t.Fatalf("one working channel should be enough: %v", err)
	}
	if failing.calls != 1 || working.calls != 1 {
		t.Fatalf("both channels should be attempted: %d/%d", failing.calls, working.calls)
	}
}

func TestMultiFailsWhenAllChannelsFail(t *testing.T) {
	multi := NewMulti(testLogger(), &stubNotifier{err: errors.New("down")})
	if err := multi.Notify(context.Background(), testNotification()); err == nil {
		t.Fatal("all channels failing should surface an error")
	}
}

func TestRenderTextRoundsAtBoundary(t *testing.T) {
	note := testNotification()
	note.Alerts[0].ChangePercent = decimal.RequireFromString("-6.3333333")

	text := renderText(note)
	if !strings.Contains(text, "-6.33%") {
		t.Fatalf("percent should be rendered at two decimals: %q", text)
	}
	if strings.Contains(text, "-6.3333") {
		t.Fatalf("full-precision value leaked into output: %q", text)
	}
}
