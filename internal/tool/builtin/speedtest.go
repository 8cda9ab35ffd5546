package builtin

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/showwin/speedtest-go/speedtest"

	"aep/internal/tool"
	"aep/pkg/logx"
)

const speedtestTimeout = 3 * time.Minute

// RegisterSpeedtest adds the "speedtest" tool, a schedulable network
// health check. It pings the closest servers, runs the full test against
// the best one and returns the measured numbers.
func RegisterSpeedtest(reg *tool.Registry, log logx.Logger) {
	reg.Register("speedtest", func(ctx context.Context, params map[string]any) (map[string]any, error) {
		ctx, cancel := context.WithTimeout(ctx, speedtestTimeout)
		defer cancel()

		// Avoid the package-level speedtest.Fetch* helpers; the default
		// client retains large snapshots across runs.
		st := speedtest.New()
		defer func() {
			st.Snapshots().Clean()
			st.Reset()
		}()

		servers, err := st.FetchServerListContext(ctx)
		if err != nil {
			return map[string]any{"status": "error"}, fmt.Errorf("speedtest: fetch server list: %w", err)
		}
		if a := servers.Available(); a != nil {
			servers = *a
		}
		if len(servers) == 0 {
			return map[string]any{"status": "error"}, fmt.Errorf("speedtest: no servers available")
		}

		sort.Slice(servers, func(i, j int) bool {
			return servers[i].Distance < servers[j].Distance
		})
		candidates := servers
		if len(candidates) > 5 {
			candidates = candidates[:5]
		}

		srv := pickByLatency(ctx, candidates)
		if srv == nil {
			return map[string]any{"status": "error"}, fmt.Errorf("speedtest: all latency tests failed")
		}

		if err := srv.DownloadTestContext(ctx); err != nil {
			return map[string]any{"status": "error"}, fmt.Errorf("speedtest: download: %w", err)
		}
		if err := srv.UploadTestContext(ctx); err != nil {
			return map[string]any{"status": "error"}, fmt.Errorf("speedtest: upload: %w", err)
		}

		event, _ := params[tool.EventNameParam].(string)
		log.Info("speedtest completed",
			logx.String("event", event),
			logx.String("server", srv.Sponsor),
			logx.Int64("latency_ms", srv.Latency.Milliseconds()),
			logx.Any("download_mbps", srv.DLSpeed.Mbps()),
			logx.Any("upload_mbps", srv.ULSpeed.Mbps()))

		return map[string]any{
			"status":        "ok",
			"server":        srv.Sponsor,
			"country":       srv.Country,
			"latency_ms":    srv.Latency.Milliseconds(),
			"download_mbps": srv.DLSpeed.Mbps(),
			"upload_mbps":   srv.ULSpeed.Mbps(),
		}, nil
	})
}

// pickByLatency pings the candidates sequentially and returns the one with
// the lowest measured latency.
func pickByLatency(ctx context.Context, candidates speedtest.Servers) *speedtest.Server {
	var best *speedtest.Server
	for _, s := range candidates {
		if ctx.Err() != nil {
			break
		}
		if err := s.PingTestContext(ctx, nil); err != nil || s.Latency <= 0 {
			continue
		}
		if best == nil || s.Latency < best.Latency {
			best = s
		}
	}
	return best
}
