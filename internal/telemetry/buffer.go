// internal/telemetry/buffer.go
package telemetry

import "sync"

// DefaultCap 은 버퍼가 보유할 수 있는 이벤트 수의 하드 상한이다.
// flush threshold 와는 독립적인 값으로, 전송 실패가 장기간 지속될 때
// 메모리가 무한히 증가하는 것을 막는 목적만 가진다.
const DefaultCap = 100

// buffer
// ------------------------------------------------------------
// 순서가 보장되는 bounded in-memory 이벤트 시퀀스.
// 파이프라인 전체에서 유일한 공유 mutable 상태이며,
// 반드시 mutex 아래에서만 접근한다.
//
// 정책:
//   - append 후 길이가 cap 을 넘으면 가장 오래된(front) 레코드부터 버린다.
//   - drain 은 swap-and-clear 한 번으로 끝난다. 동시에 들어오는
//     append 와 섞이지 않는 원자적 단계이다.
//   - requeue(전송 실패 배치 복원)도 cap 을 넘기지 못한다.
//     이때도 "출처와 무관하게 가장 오래된 것부터 버린다".
type buffer struct {
	mu  sync.Mutex
	buf []Event
	cap int
}

func newBuffer(capacity int) *buffer {
	if capacity <= 0 {
		capacity = DefaultCap
	}
	return &buffer{
		buf: make([]Event, 0, capacity),
		cap: capacity,
	}
}

// append 는 레코드를 뒤에 붙이고, cap 초과분만큼 front 에서 버린다.
// 반환값은 버려진 레코드 수 (overflow 진단용).
func (b *buffer) append(ev Event) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf = append(b.buf, ev)
	return b.trimLocked()
}

// drain 은 현재 내용 전체의 소유권을 가져가고 버퍼를 비운다.
// 반환된 slice 는 호출자 소유이며 내부 상태와 공유되지 않는다.
func (b *buffer) drain() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.buf) == 0 {
		return nil
	}
	out := b.buf
	b.buf = make([]Event, 0, b.cap)
	return out
}

// requeue 는 전송 실패한 배치를 버퍼 앞쪽에 되돌린다.
// 배치 내부 순서는 유지되고, 배치 레코드는 현재 버퍼 내용보다
// 먼저 기록된 것이므로 전체 시간 순서도 유지된다.
// cap 초과 시 front(=가장 오래된 것)부터 버린다. 실패 배치든
// 신규 레코드든 구분하지 않는다.
func (b *buffer) requeue(batch []Event) int {
	if len(batch) == 0 {
		return 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	merged := make([]Event, 0, len(batch)+len(b.buf))
	merged = append(merged, batch...)
	merged = append(merged, b.buf...)
	b.buf = merged
	return b.trimLocked()
}

// snapshot 은 읽기 전용 복사본을 반환한다.
// 외부에서 내부 상태를 변조할 수 없도록 항상 새 slice 를 만들고,
// Meta map 도 레코드별로 복사한다 (shallow copy 로는 map 이 공유된다).
func (b *buffer) snapshot() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Event, len(b.buf))
	copy(out, b.buf)
	for i := range out {
		if len(out[i].Meta) == 0 {
			continue
		}
		m := make(map[string]string, len(out[i].Meta))
		for k, v := range out[i].Meta {
			m[k] = v
		}
		out[i].Meta = m
	}
	return out
}

// clear 는 조건 없이 버퍼를 비운다. flush 시도는 하지 않는다.
func (b *buffer) clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = b.buf[:0]
}

func (b *buffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

// trimLocked 는 cap 초과분을 front 에서 제거한다. 잠금 상태에서 호출.
func (b *buffer) trimLocked() int {
	over := len(b.buf) - b.cap
	if over <= 0 {
		return 0
	}
	// front 제거 후 새 backing array 로 복사
	// (원본 slice 재참조로 인한 메모리 유지 방지)
	kept := make([]Event, b.cap)
	copy(kept, b.buf[over:])
	b.buf = kept
	return over
}
