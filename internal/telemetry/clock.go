// internal/telemetry/clock.go
package telemetry

import (
	"sync/atomic"
	"time"
)

// clock
// ------------------------------------------------------------
// 이벤트 timestamp 전용 시각 소스.
//
// 계약: 한 프로세스 안에서 Record 순서대로 찍힌 timestamp 는
// 절대 역행하지 않는다 (단조 비감소). NTP 보정 등으로 벽시계가
// 뒤로 이동해도, 마지막으로 발급한 값보다 작은 값은 내보내지 않는다.
// 프로세스 재시작 간에는 보장하지 않는다.
type clock struct {
	last atomic.Int64 // 마지막으로 발급한 epoch millis
}

// nowMillis 는 현재 UTC epoch milliseconds 를 반환한다.
// 직전 발급 값보다 작아지는 경우 직전 값을 그대로 재사용한다.
func (c *clock) nowMillis() int64 {
	for {
		now := time.Now().UnixMilli()
		last := c.last.Load()
		if now < last {
			now = last
		}
		if c.last.CompareAndSwap(last, now) {
			return now
		}
	}
}
