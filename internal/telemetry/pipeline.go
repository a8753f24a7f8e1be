// internal/telemetry/pipeline.go
package telemetry

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"

	"sitebeacon/internal/config"
)

// Pipeline
// ------------------------------------------------------------
// 사용 이벤트 수집 파이프라인의 소유 객체.
//
// 과거에는 패키지 전역 버퍼 하나로 운영했지만, 테스트 격리가
// 불가능해서 명시적 인스턴스 + init/teardown 라이프사이클로
// 재구성했다. 호스트 앱은 New() 로 하나 만들어 들고 있다가
// 종료 시 Close() 를 호출하면 된다.
//
// 에러 계약: Record / Flush / Clear / Close 는 어떤 경우에도
// 호스트 앱으로 에러나 panic 을 올리지 않는다. telemetry 가
// 앱 장애의 원인이 되어서는 안 된다. 이상 상황은 Stats 와
// observer 콜백으로만 관측한다.
type Pipeline struct {
	resolve  func() config.Telemetry // 설정 소스 (기본: env 를 매번 읽음)
	pathFn   func() string           // 기록 시점의 앱 내 위치 소스
	observer func(FlushOutcome)      // flush 결과 알림 (선택)

	buf   *buffer
	tp    *transport
	clk   clock
	stats Stats

	// threshold 트리거로 뜨는 백그라운드 flush 는 동시에 1개만 유지한다.
	// (레코드 폭주 시 goroutine 이 무한정 생기는 것 방지)
	autoFlush atomic.Bool
	wg        sync.WaitGroup

	// closeMu 는 "Record 의 closed 검사 + wg.Add" 와 Close 의
	// closed 전환이 교차하지 않도록 막는다. Record 끼리는 RLock 으로
	// 병렬 진행된다.
	closeMu   sync.RWMutex
	closed    atomic.Bool
	closeOnce sync.Once
}

// Option 은 New 의 구성 옵션이다. 운영 기본값은 옵션 없이 동작하고,
// 테스트에서 환경·용량·전송을 바꿔 끼울 때 사용한다.
type Option func(*Pipeline)

// WithPathSource 는 Event.Path 를 채울 소스를 지정한다.
// 호스트 앱의 라우터가 현재 페이지 경로를 돌려주는 함수를 넘긴다.
func WithPathSource(fn func() string) Option {
	return func(p *Pipeline) {
		if fn != nil {
			p.pathFn = fn
		}
	}
}

// WithConfigSource 는 env 대신 사용할 설정 소스를 지정한다.
func WithConfigSource(fn func() config.Telemetry) Option {
	return func(p *Pipeline) {
		if fn != nil {
			p.resolve = fn
		}
	}
}

// WithBufferCap 은 CAP 를 재정의한다. 테스트 전용에 가깝다.
func WithBufferCap(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.buf = newBuffer(n)
		}
	}
}

// WithHTTPClient 는 전송에 사용할 http.Client 를 바꿔 끼운다.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Pipeline) {
		p.tp = newTransport(c)
	}
}

// WithObserver 는 flush 결과를 받아볼 콜백을 등록한다.
// "절대 throw 하지 않는다" 계약을 유지하면서 실패를 관측하는 통로.
func WithObserver(fn func(FlushOutcome)) Option {
	return func(p *Pipeline) {
		p.observer = fn
	}
}

// New 는 비어 있는 파이프라인 인스턴스를 만든다.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		resolve: config.ResolveTelemetry,
		pathFn:  func() string { return "/" },
		buf:     newBuffer(DefaultCap),
		tp:      newTransport(nil),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Record
// ------------------------------------------------------------
// 이벤트 1건을 기록한다. Path 와 Ts 는 여기서 자동으로 채워지며
// 호출자는 넘길 수 없다 (스키마 계약).
//
//   - label 이 빈 문자열이면 직렬화에서 생략된다.
//   - meta 는 복사해서 보관한다. 호출자가 map 을 재사용해도 안전.
//   - 기록 후 길이가 threshold 에 도달하면 백그라운드 flush 를
//     fire-and-forget 으로 띄운다. 호출자는 블록되지 않는다.
//
// 절대 에러를 반환하거나 panic 하지 않는다.
func (p *Pipeline) Record(event, label string, meta map[string]string) {
	if event == "" {
		return
	}

	p.closeMu.RLock()
	defer p.closeMu.RUnlock()
	if p.closed.Load() {
		return
	}

	var m map[string]string
	if len(meta) > 0 {
		m = make(map[string]string, len(meta))
		for k, v := range meta {
			m[k] = v
		}
	}

	dropped := p.buf.append(Event{
		Event: event,
		Label: label,
		Meta:  m,
		Path:  p.pathFn(),
		Ts:    p.clk.nowMillis(),
	})

	atomic.AddInt64(&p.stats.RecordedTotal, 1)
	if dropped > 0 {
		atomic.AddInt64(&p.stats.DroppedOldestTotal, int64(dropped))
	}

	// threshold 도달 → 비동기 flush (동시에 1개만).
	cfg := p.resolve()
	if cfg.Enabled() && p.buf.len() >= cfg.FlushThreshold {
		if p.autoFlush.CompareAndSwap(false, true) {
			p.wg.Add(1)
			go func() {
				defer p.wg.Done()
				defer p.autoFlush.Store(false)
				p.Flush(context.Background())
			}()
		}
	}
}

// Flush
// ------------------------------------------------------------
// 버퍼 내용 전체를 배치 1개로 전송하고 완료(성공/실패)까지 기다린다.
//
// 알고리즘:
//  1. endpoint 미설정/disabled → transport 를 건드리지 않고 즉시 반환.
//     (production-off / 로컬 개발의 정상 상태, 에러 아님)
//  2. drain — 버퍼 swap-and-clear. Record 와의 경합에 대해 원자적.
//  3. 전송 실패 시 배치를 버퍼 앞쪽에 되돌린다 (CAP 적용).
//     다음 flush 트리거에서 재시도된다.
//
// 동시에 호출돼도 안전하다. 나중에 들어온 flush 는 그 시점의
// 버퍼 내용만 다루므로 논리적으로 멱등하다.
func (p *Pipeline) Flush(ctx context.Context) {
	cfg := p.resolve()
	if !cfg.Enabled() {
		return
	}

	batch := p.buf.drain()
	if len(batch) == 0 {
		return
	}

	atomic.AddInt64(&p.stats.FlushAttemptsTotal, 1)

	sent := p.tp.send(ctx, cfg, batch)
	if sent {
		atomic.AddInt64(&p.stats.FlushSuccessTotal, 1)
		atomic.AddInt64(&p.stats.EventsDeliveredTotal, int64(len(batch)))
	} else {
		atomic.AddInt64(&p.stats.FlushFailuresTotal, 1)
		atomic.AddInt64(&p.stats.EventsRequeuedTotal, int64(len(batch)))
		if dropped := p.buf.requeue(batch); dropped > 0 {
			atomic.AddInt64(&p.stats.DroppedOldestTotal, int64(dropped))
		}
	}

	if p.observer != nil {
		p.observer(FlushOutcome{Sent: sent, Events: len(batch)})
	}
}

// Snapshot 은 버퍼의 읽기 전용 복사본을 반환한다.
// 테스트와 진단 용도. 내부 상태 변조 불가.
func (p *Pipeline) Snapshot() []Event {
	return p.buf.snapshot()
}

// Clear 는 버퍼를 조건 없이 비운다. flush 는 시도하지 않는다.
// 테스트 격리와 명시적 리셋 용도.
func (p *Pipeline) Clear() {
	p.buf.clear()
}

// Stats 는 현재 카운터 스냅샷을 반환한다.
func (p *Pipeline) Stats() Stats {
	return Stats{
		RecordedTotal:        atomic.LoadInt64(&p.stats.RecordedTotal),
		DroppedOldestTotal:   atomic.LoadInt64(&p.stats.DroppedOldestTotal),
		FlushAttemptsTotal:   atomic.LoadInt64(&p.stats.FlushAttemptsTotal),
		FlushSuccessTotal:    atomic.LoadInt64(&p.stats.FlushSuccessTotal),
		FlushFailuresTotal:   atomic.LoadInt64(&p.stats.FlushFailuresTotal),
		EventsDeliveredTotal: atomic.LoadInt64(&p.stats.EventsDeliveredTotal),
		EventsRequeuedTotal:  atomic.LoadInt64(&p.stats.EventsRequeuedTotal),
	}
}

// Close
// ------------------------------------------------------------
// 파이프라인 teardown. 여러 번 호출해도 안전하다 (멱등).
//  1. 신규 Record 차단
//  2. 진행 중인 백그라운드 flush 완료 대기
//  3. 남은 배치 최종 1회 best-effort 전송
//
// 실패해도 에러는 올라가지 않는다. 남은 이벤트는 프로세스와 함께
// 사라진다 (영속화는 비목표).
func (p *Pipeline) Close() {
	p.closeOnce.Do(func() {
		p.closeMu.Lock()
		p.closed.Store(true)
		p.closeMu.Unlock()

		p.wg.Wait()
		p.Flush(context.Background())
	})
}
