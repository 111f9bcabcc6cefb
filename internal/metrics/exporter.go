package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vppebpf/cerberus/internal/utils/logger"
)

// Serve exposes /metrics on addr until the context is canceled. The exporter
// is the only observation surface of the core besides the CLI: failures show
// up as the error counter trending upward, nowhere else.
// Serve 在 addr 上暴露 /metrics，直到 context 取消。除 CLI 外，导出器是核心
// 唯一的观测面：故障只会表现为错误计数上升，别无其他通道。
func Serve(ctx context.Context, addr string) error {
	log := logger.Get(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("📊 Metrics exporter listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
