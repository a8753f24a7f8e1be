package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"sitebeacon/internal/collector"
	"sitebeacon/internal/config"
	"sitebeacon/internal/logger"
	"sitebeacon/internal/metrics"
	"sitebeacon/internal/sink"

	zlog "github.com/rs/zerolog/log"
)

func main() {

	// ====================================================================
	// CPU 설정 (Fargate vCPU 특성 대응)
	// ====================================================================
	//
	// Fargate 는 vCPU 단위로 CPU share 가 제한된다.
	// Go 런타임이 GOMAXPROCS 를 default 로 두면 실제 제공량보다
	// 많은 CPU 를 가정하고 busy-loop scheduling 이 발생할 수 있다.
	// Task Definition 에서 GOMAXPROCS 를 vCPU 수에 맞추는 것을 권장.
	// ====================================================================
	if v := os.Getenv("GOMAXPROCS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			runtime.GOMAXPROCS(n)
		}
	} else {
		runtime.GOMAXPROCS(1) // default: 1 logical CPU
	}

	// ====================================================================
	// Config / Logger / Metrics 초기화
	// ====================================================================
	cfg := config.Load()
	logger.Init(cfg)
	m := metrics.New()

	// ====================================================================
	// Archiver 생성 (S3Uploader + Encoder 포함)
	// ====================================================================
	//
	// Archiver 는 collector 의 비동기 처리 엔진.
	// RAW_BUCKET 미설정 시 disabled 로 동작하며, 이 경우 수신 배치는
	// 카운트와 디버그 로그만 남긴다 (로컬/개발 모드).
	//
	// 모든 비동기 goroutine 은 Archiver 아래에서 관리되고
	// SIGTERM 수신 시 graceful 종료가 가능해야 한다.
	// ====================================================================
	arch := sink.NewArchiver(cfg, m)
	arch.Start()

	// ====================================================================
	// HTTP Handler 설정
	// ====================================================================
	//
	// 엔드포인트:
	//  - /v1/events : 파이프라인 배치 수신 (핵심)
	//  - /metrics   : 운영 지표 확인
	//  - /health    : ALB Target Group health check 용
	// ====================================================================
	h := collector.NewHandler(cfg, m, arch)

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/events", h.HandleEvents)
	mux.HandleFunc("/metrics", h.HandleMetrics)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		// ALB 는 단순 문자열로도 health 판단 가능
		w.Write([]byte("ok"))
	})

	// ====================================================================
	// HTTP 서버 설정 (Timeout 매우 중요)
	// ====================================================================
	//
	// 파이프라인이 보내는 배치는 작은 JSON payload 이므로
	// Timeout 을 짧게 잡아 비정상 커넥션의 리소스 점유를 방지한다.
	// ====================================================================
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  8 * time.Second,
		WriteTimeout: 8 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// ====================================================================
	// Graceful Shutdown (ECS/Fargate scale-in 대응)
	// ====================================================================
	//
	// SIGTERM 수신 시:
	//   - HTTP 서버 먼저 멈추고 (더 이상 요청 받지 않음)
	//   - Archiver 종료 (남은 배치 업로드 후 goroutine 안전 종료)
	// ====================================================================
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

		sig := <-sigCh
		zlog.Info().Str("signal", sig.String()).Msg("shutdown signal received")

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := srv.Shutdown(ctx); err != nil {
			zlog.Error().Err(err).Msg("http shutdown")
		}
		cancel()

		zlog.Info().Msg("stopping archiver...")
		arch.Shutdown()
	}()

	// ====================================================================
	// 서버 시작
	// ====================================================================
	zlog.Info().Str("addr", cfg.HTTPAddr).Bool("archive", arch.Enabled()).Msg("collector listening")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		zlog.Fatal().Err(err).Msg("http server terminated")
	}

	// Archiver 가 이미 종료되어 있더라도 다시 호출해도 safe
	arch.Shutdown()
	zlog.Info().Msg("shutdown complete")
}
