// internal/sink/key.go
package sink

import (
	"fmt"
	"sync/atomic"
	"time"
)

// key.go
// ------------------------------------------------------------
// 아카이브 객체 이름 규칙.
// 파일명 패턴은 downstream 정렬·조회의 핵심이므로
// 예측 가능한 deterministic 패턴을 유지해야 한다.
//
// 객체 키 구조 (Athena / Glue 파티션 스캔 비용 절감용 표준 구조):
//
//	<prefix>/dt=<YYYY-MM-DD>/hr=<HH>/<unix>_<instance>_<counter>.jsonl.gz
//
// 정렬하면 곧 시간 순 정렬이다.
var objectCounter uint64

// nextCounter
// ------------------------------------------------------------
// 원자적 증가 값으로 여러 goroutine에서 충돌 없이 순차 번호를 생성한다.
// 1,000,000 에서 0으로 wrap-around 하지만 timestamp·instance ID
// 조합으로 전체 키 충돌 가능성은 사실상 0에 가깝다.
func nextCounter() uint64 {
	return atomic.AddUint64(&objectCounter, 1) % 1_000_000
}

// NewObjectKey 는 새 아카이브 객체의 전체 키를 생성한다.
// 파티션은 UTC 기준이다 (collector 는 리전 불문 동일 기준 유지).
func NewObjectKey(prefix, instanceID string) string {
	now := time.Now().UTC()
	return fmt.Sprintf("%s/dt=%s/hr=%s/%d_%s_%06d.jsonl.gz",
		prefix,
		now.Format("2006-01-02"),
		now.Format("15"),
		now.Unix(),
		instanceID,
		nextCounter(),
	)
}
