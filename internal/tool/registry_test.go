package tool

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRegistryCall(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	reg.Register("echo", func(ctx context.Context, params map[string]any) (map[string]any, error) {
		return map[string]any{"status": "ok", "event": params[EventNameParam]}, nil
	})

	res, err := reg.Call(context.Background(), "echo", map[string]any{EventNameParam: "ping"})
	if err != nil {
		t.Fatalf("Call error: %v", err)
	}
	if res["status"] != "ok" || res["event"] != "ping" {
		t.Fatalf("result = %v", res)
	}
}

func TestRegistryNotFoundListsTools(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	reg.Register("mail_send", nil)
	reg.Register("noop", nil)

	_, err := reg.Call(context.Background(), "missing", nil)
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("error %T, want *NotFoundError", err)
	}
	if nf.Name != "missing" {
		t.Fatalf("Name = %q", nf.Name)
	}
	msg := err.Error()
	if !strings.Contains(msg, "mail_send") || !strings.Contains(msg, "noop") {
		t.Fatalf("error does not list available tools: %s", msg)
	}
}

func TestRegistryAsyncHandlerBlocksUntilDone(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	reg.Register("slow", func(ctx context.Context, params map[string]any) (map[string]any, error) {
		done := make(chan map[string]any, 1)
		go func() {
			time.Sleep(10 * time.Millisecond)
			done <- map[string]any{"status": "sent"}
		}()
		select {
		case res := <-done:
			return res, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	res, err := reg.Call(context.Background(), "slow", nil)
	if err != nil {
		t.Fatalf("Call error: %v", err)
	}
	if res["status"] != "sent" {
		t.Fatalf("result = %v", res)
	}
}

func TestRegistryListSorted(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	reg.Register("b", nil)
	reg.Register("a", nil)
	reg.Register("c", nil)
	got := reg.List()
	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Fatalf("List = %v", got)
	}
}
