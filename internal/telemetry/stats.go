// internal/telemetry/stats.go
package telemetry

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Stats 는 파이프라인 상태를 나타내는 카운터 모음이다.
//
// 파이프라인은 호스트 앱으로 에러를 절대 던지지 않으므로,
// 전송 실패·overflow drop 같은 이상 상황은 전부 여기에 누적되고
// 운영자는 이 값으로만 상태를 판단한다.
type Stats struct {
	// RecordedTotal
	// - Record() 로 버퍼에 들어간 이벤트 수 (drop 여부 무관, 시도 기준).
	RecordedTotal int64

	// DroppedOldestTotal
	// - CAP 초과로 버려진 이벤트 수 (신규 append / 실패 배치 requeue 합산).
	// - 이 값이 증가한다는 것은 전송이 장기간 실패 중이거나
	//   threshold/CAP 설정이 트래픽 대비 너무 작다는 신호.
	DroppedOldestTotal int64

	// FlushAttemptsTotal / FlushSuccessTotal / FlushFailuresTotal
	// - 실제 Transport 까지 도달한 flush 횟수 기준.
	//   endpoint 미설정 no-op 과 빈 버퍼 flush 는 세지 않는다.
	FlushAttemptsTotal int64
	FlushSuccessTotal  int64
	FlushFailuresTotal int64

	// EventsDeliveredTotal
	// - 2xx 응답으로 전달이 확인된 이벤트 수.
	EventsDeliveredTotal int64

	// EventsRequeuedTotal
	// - 전송 실패로 버퍼에 되돌아간 이벤트 수.
	//   다음 flush 트리거에서 기회적으로 재시도된다.
	EventsRequeuedTotal int64
}

func (s *Stats) String() string {
	var sb strings.Builder
	sb.Grow(256)

	fmt.Fprintf(&sb, "telemetry_recorded_total=%d\n", atomic.LoadInt64(&s.RecordedTotal))
	fmt.Fprintf(&sb, "telemetry_dropped_oldest_total=%d\n", atomic.LoadInt64(&s.DroppedOldestTotal))
	fmt.Fprintf(&sb, "telemetry_flush_attempts_total=%d\n", atomic.LoadInt64(&s.FlushAttemptsTotal))
	fmt.Fprintf(&sb, "telemetry_flush_success_total=%d\n", atomic.LoadInt64(&s.FlushSuccessTotal))
	fmt.Fprintf(&sb, "telemetry_flush_failures_total=%d\n", atomic.LoadInt64(&s.FlushFailuresTotal))
	fmt.Fprintf(&sb, "telemetry_events_delivered_total=%d\n", atomic.LoadInt64(&s.EventsDeliveredTotal))
	fmt.Fprintf(&sb, "telemetry_events_requeued_total=%d\n", atomic.LoadInt64(&s.EventsRequeuedTotal))

	return sb.String()
}

// FlushOutcome 는 flush 한 번의 결과 요약이다.
// Observer 콜백으로 전달되어, "절대 throw 하지 않는다" 계약을
// 깨지 않으면서도 실패를 관측 가능하게 만든다.
type FlushOutcome struct {
	Sent   bool // 2xx 전달 확인 여부
	Events int  // 배치에 포함된 이벤트 수
}
