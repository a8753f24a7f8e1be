package metrics

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Metrics 는 collector 상태를 나타내는 카운터 모음이다.
type Metrics struct {
	// ======================
	// HTTP 레벨 지표
	// ======================

	// HTTPRequestsTotal
	// - /v1/events 로 들어온 "모든" HTTP 요청 수 (시도 기준).
	// - 메서드 및 성공/실패 여부와 관계없이 진입마다 1씩 증가.
	HTTPRequestsTotal int64

	// HTTPRequestsAcceptedTotal
	// - 배치를 정상 수신(디코딩 성공)한 요청 수.
	// - HTTPRequestsTotal 과의 차이로 수신 실패 규모를 알 수 있다.
	HTTPRequestsAcceptedTotal int64

	// HTTPRequestsRejectedBodyTooLargeTotal
	// - body 가 MaxBodySize 를 초과해 413 으로 거절된 요청 수.
	// - 파이프라인 쪽 CAP/threshold 설정 대비 MaxBodySize 가
	//   현실적인지 점검하는 용도.
	HTTPRequestsRejectedBodyTooLargeTotal int64

	// HTTPRequestsRejectedQueueFullTotal
	// - 아카이브 큐(EventCh)가 가득 차서 503 을 반환한 요청 수.
	// - fail-fast backpressure 가 실제로 동작한 횟수.
	HTTPRequestsRejectedQueueFullTotal int64

	// EventsReceivedTotal
	// - 수신 배치에 포함돼 있던 이벤트 수 누적 합.
	EventsReceivedTotal int64

	// ======================
	// S3 아카이브 지표
	// ======================

	// S3EventsArchivedTotal
	// - S3 에 성공 저장된 "이벤트 수" (배치 수 아님).
	S3EventsArchivedTotal int64

	// S3PutErrorsTotal
	// - PutObject 가 실패한 "시도(attempt)" 횟수.
	//   재시도가 있으면 한 업로드에서 여러 번 증가할 수 있다.
	S3PutErrorsTotal int64

	// ArchiveDroppedEventsTotal
	// - 재시도까지 모두 실패해 최종적으로 버려진 이벤트 수.
	//   (로컬 영속화는 하지 않는다. 이 값의 증가는 곧 데이터 유실.)
	ArchiveDroppedEventsTotal int64
}

func New() *Metrics {
	return &Metrics{}
}

func (m *Metrics) String() string {
	var sb strings.Builder
	sb.Grow(256)

	fmt.Fprintf(&sb, "http_requests_total=%d\n", atomic.LoadInt64(&m.HTTPRequestsTotal))
	fmt.Fprintf(&sb, "http_requests_accepted_total=%d\n", atomic.LoadInt64(&m.HTTPRequestsAcceptedTotal))
	fmt.Fprintf(&sb, "http_requests_rejected_body_too_large_total=%d\n", atomic.LoadInt64(&m.HTTPRequestsRejectedBodyTooLargeTotal))
	fmt.Fprintf(&sb, "http_requests_rejected_queue_full_total=%d\n", atomic.LoadInt64(&m.HTTPRequestsRejectedQueueFullTotal))
	fmt.Fprintf(&sb, "events_received_total=%d\n", atomic.LoadInt64(&m.EventsReceivedTotal))

	fmt.Fprintf(&sb, "s3_events_archived_total=%d\n", atomic.LoadInt64(&m.S3EventsArchivedTotal))
	fmt.Fprintf(&sb, "s3_put_errors_total=%d\n", atomic.LoadInt64(&m.S3PutErrorsTotal))
	fmt.Fprintf(&sb, "archive_dropped_events_total=%d\n", atomic.LoadInt64(&m.ArchiveDroppedEventsTotal))

	return sb.String()
}
