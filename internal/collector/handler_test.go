// internal/collector/handler_test.go
package collector

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sitebeacon/internal/config"
	"sitebeacon/internal/metrics"
	"sitebeacon/internal/sink"
	"sitebeacon/internal/telemetry"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCollectorConfig() config.Collector {
	return config.Collector{
		ServiceName:   "test",
		InstanceID:    "test-1",
		HTTPAddr:      ":0",
		MaxBodySize:   1024,
		ChannelSize:   8,
		BatchSize:     10,
		FlushInterval: time.Hour,
		S3Timeout:     time.Second,
		S3AppRetries:  1,
	}
}

// 아카이브가 꺼진 핸들러 (RAW_BUCKET 미설정과 동일한 상태).
func newTestHandler(cfg config.Collector) (*Handler, *metrics.Metrics) {
	m := metrics.New()
	arch := sink.NewArchiverWithUploader(cfg, m, nil)
	return NewHandler(cfg, m, arch), m
}

func postBody(t *testing.T, events []telemetry.Event) *bytes.Reader {
	t.Helper()
	data, err := json.Marshal(struct {
		Events []telemetry.Event `json:"events"`
	}{Events: events})
	require.NoError(t, err)
	return bytes.NewReader(data)
}

func TestHandleEventsAcceptsBatch(t *testing.T) {
	h, m := newTestHandler(testCollectorConfig())

	body := postBody(t, []telemetry.Event{
		{Event: "page_view", Path: "/", Ts: 1},
		{Event: "cta_click", Label: "hero", Path: "/pricing", Ts: 2},
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/events", body)
	rec := httptest.NewRecorder()
	h.HandleEvents(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, int64(1), m.HTTPRequestsTotal)
	assert.Equal(t, int64(1), m.HTTPRequestsAcceptedTotal)
	assert.Equal(t, int64(2), m.EventsReceivedTotal)
}

func TestHandleEventsRejectsMethod(t *testing.T) {
	h, _ := newTestHandler(testCollectorConfig())

	req := httptest.NewRequest(http.MethodGet, "/v1/events", nil)
	rec := httptest.NewRecorder()
	h.HandleEvents(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleEventsCORSPreflight(t *testing.T) {
	h, _ := newTestHandler(testCollectorConfig())

	req := httptest.NewRequest(http.MethodOptions, "/v1/events", nil)
	rec := httptest.NewRecorder()
	h.HandleEvents(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHandleEventsRejectsMalformedBody(t *testing.T) {
	h, _ := newTestHandler(testCollectorConfig())

	req := httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.HandleEvents(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleEventsRejectsOversizedBody(t *testing.T) {
	cfg := testCollectorConfig()
	cfg.MaxBodySize = 16
	h, m := newTestHandler(cfg)

	body := postBody(t, []telemetry.Event{
		{Event: "page_view", Label: strings.Repeat("x", 200), Path: "/", Ts: 1},
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/events", body)
	rec := httptest.NewRecorder()
	h.HandleEvents(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, int64(1), m.HTTPRequestsRejectedBodyTooLargeTotal)
}

// 아카이브 큐가 가득 차면 503. 파이프라인은 non-2xx 를 재시도 신호로
// 해석하므로 이 배치는 클라이언트 버퍼에서 살아남는다.
// 503 은 원자적이어야 한다: 거절된 배치의 일부가 큐를 점유하고 있으면
// 재전송 시 그 prefix 가 중복된다.
func TestHandleEventsQueueFullBackpressure(t *testing.T) {
	cfg := testCollectorConfig()
	cfg.ChannelSize = 1
	cfg.RawBucket = "test-bucket" // 아카이브 on

	m := metrics.New()
	// Start() 하지 않음 → 큐를 비우는 consumer 없음
	arch := sink.NewArchiverWithUploader(cfg, m, noopUploader{})
	h := NewHandler(cfg, m, arch)

	body := postBody(t, []telemetry.Event{
		{Event: "page_view", Path: "/", Ts: 1},
		{Event: "page_view", Path: "/", Ts: 2},
		{Event: "page_view", Path: "/", Ts: 3},
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/events", body)
	rec := httptest.NewRecorder()
	h.HandleEvents(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, int64(1), m.HTTPRequestsRejectedQueueFullTotal)

	// 거절된 배치가 큐를 전혀 점유하지 않았다면, 용량(1)에 맞는
	// 후속 배치는 그대로 수용된다.
	req2 := httptest.NewRequest(http.MethodPost, "/v1/events",
		postBody(t, []telemetry.Event{{Event: "page_view", Path: "/", Ts: 4}}))
	rec2 := httptest.NewRecorder()
	h.HandleEvents(rec2, req2)

	assert.Equal(t, http.StatusNoContent, rec2.Code)
}

func TestHandleMetricsDump(t *testing.T) {
	h, m := newTestHandler(testCollectorConfig())
	m.HTTPRequestsTotal = 42

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.HandleMetrics(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total=42")
}

type noopUploader struct{}

func (noopUploader) UploadBytesWithRetryCtx(ctx context.Context, key string, body []byte) error {
	return nil
}
