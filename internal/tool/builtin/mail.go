// Package builtin registers the tools aepd ships with. Real mail backends
// (SMTP, OAuth flows) live outside this repo; the mail tool here is the
// mock sender used for demos and tests.
package builtin

import (
	"context"
	"fmt"

	"aep/internal/tool"
	"aep/pkg/logx"
)

// RegisterMail adds the "mail_send" mock tool. It validates the usual
// mail parameters, logs what would have been sent and reports success.
func RegisterMail(reg *tool.Registry, log logx.Logger) {
	reg.Register("mail_send", func(ctx context.Context, params map[string]any) (map[string]any, error) {
		to := Recipients(params["to"])
		if len(to) == 0 {
			return map[string]any{"status": "error"}, fmt.Errorf("mail_send: no recipients")
		}
		subject, _ := params["subject"].(string)
		body, _ := params["body"].(string)
		event, _ := params[tool.EventNameParam].(string)

		log.Info("mail_send (mock)",
			logx.String("event", event),
			logx.Int("recipients", len(to)),
			logx.String("subject", subject),
			logx.Int("body_bytes", len(body)))

		return map[string]any{
			"status":     "sent",
			"mock":       true,
			"recipients": len(to),
		}, nil
	})
}

// Recipients coerces a "to" parameter into a list of addresses. Resolved
// .txt references arrive as []string, YAML lists as []any, inline values
// as a single string.
func Recipients(v any) []string {
	switch x := v.(type) {
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if x == "" {
			return nil
		}
		return []string{x}
	default:
		return nil
	}
}
