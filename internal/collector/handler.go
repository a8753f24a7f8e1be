// internal/collector/handler.go
package collector

import (
	"io"
	"net/http"
	"sync/atomic"

	"sitebeacon/internal/config"
	"sitebeacon/internal/metrics"
	"sitebeacon/internal/sink"
	"sitebeacon/internal/telemetry"

	json "github.com/goccy/go-json"
	zlog "github.com/rs/zerolog/log"
)

type Handler struct {
	cfg      config.Collector
	metrics  *metrics.Metrics
	archiver *sink.Archiver
}

func NewHandler(cfg config.Collector, m *metrics.Metrics, a *sink.Archiver) *Handler {
	return &Handler{
		cfg:      cfg,
		metrics:  m,
		archiver: a,
	}
}

// HandleEvents
//
// 파이프라인 wire format 을 종단하는 수집 엔드포인트.
// flush 1회 = POST 1회, body 는 {"events":[...]} 하나.
//
// 공통 동작:
//  1. 요청 길이 제한 (MaxBodySize)
//  2. goccy 기반 디코딩
//  3. 아카이브 큐(EventCh)에 push (full 이면 503 fail-fast)
//  4. metrics 증가
//
// 파이프라인 쪽은 2xx 만 성공으로 보고 응답 body 를 읽지 않으므로
// 성공 응답은 204 로 고정한다.
//
// 주의: 클라이언트 IP 는 디버그 로그에만 쓰고 이벤트에는 절대
// 붙이지 않는다. 스키마의 개인정보 계약은 collector 까지 이어진다.
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt64(&h.metrics.HTTPRequestsTotal, 1)

	// 허용 메서드 검사
	if r.Method != http.MethodPost && r.Method != http.MethodOptions {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	// OPTIONS 요청은 CORS preflight 로 가정 → 즉시 204
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	// --------------------------------------------------------------------
	// 요청 Body 최대 크기 강제 제한.
	// 비정상적으로 큰 payload 가 메모리를 점유하는 것을 방지.
	// --------------------------------------------------------------------
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodySize)
	defer r.Body.Close()

	// body 를 먼저 전부 읽는다. MaxBytesReader 초과는 여기서 read
	// 에러로 드러나므로 디코딩 에러(400)와 확실히 구분된다.
	body, err := io.ReadAll(r.Body)
	if err != nil {
		atomic.AddInt64(&h.metrics.HTTPRequestsRejectedBodyTooLargeTotal, 1)
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		return
	}

	var payload struct {
		Events []telemetry.Event `json:"events"`
	}

	if err := json.Unmarshal(body, &payload); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	atomic.AddInt64(&h.metrics.EventsReceivedTotal, int64(len(payload.Events)))

	zlog.Debug().
		Int("events", len(payload.Events)).
		Str("client_ip", clientIP(r)).
		Msg("batch received")

	// --------------------------------------------------------------------
	// 아카이브 큐에 push. Queue full → 503 (fail-fast backpressure).
	// 파이프라인은 non-2xx 를 재시도 신호로 해석하므로
	// 배치는 클라이언트 쪽 버퍼에서 살아남는다.
	//
	// all-or-nothing: 재전송 시 이미 수용된 prefix 가 중복되지 않도록
	// 배치는 통째로 들어가거나 통째로 거절된다.
	// --------------------------------------------------------------------
	if !h.archiver.EnqueueBatch(payload.Events) {
		atomic.AddInt64(&h.metrics.HTTPRequestsRejectedQueueFullTotal, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	atomic.AddInt64(&h.metrics.HTTPRequestsAcceptedTotal, 1)
	w.WriteHeader(http.StatusNoContent)
}

// HandleMetrics
//
// collector 상태를 나타내는 카운터 값들을 출력한다.
// Prometheus pull 방식으로도 쉽게 전환 가능.
func (h *Handler) HandleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, h.metrics.String())
}
