// internal/sink/archiver.go
package sink

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"sitebeacon/internal/config"
	"sitebeacon/internal/metrics"
	"sitebeacon/internal/telemetry"

	zlog "github.com/rs/zerolog/log"
)

// Uploader 는 Archiver 가 사용하는 업로드 인터페이스이다.
// 운영에서는 S3Uploader, 테스트에서는 fake 로 교체한다.
type Uploader interface {
	UploadBytesWithRetryCtx(ctx context.Context, key string, body []byte) error
}

// Archiver 는 collector 의 비동기 아카이브 파이프라인이다.
// 수신 핸들러가 넘긴 이벤트(EventCh)를 모아서(batch)
//   - gzip+JSONL 로 인코딩
//   - S3 업로드 (재시도까지 실패하면 drop + 카운트)
//
// 하는 전체 흐름을 제어한다.
//
// 주요 구성:
//   - EventCh: HTTP → Archiver 로 이벤트 전달 (백프레셔 핵심)
//   - collectLoop: BatchSize 또는 FlushInterval 마다 묶어서 uploadCh 에 전달
//   - uploadCh: 인코딩/업로드 작업 큐
//   - uploadLoop: 실제 인코딩과 업로드 담당
//
// graceful shutdown 을 지원하며, 남은 배치 처리가 끝나야 종료된다.
type Archiver struct {
	cfg     config.Collector
	metrics *metrics.Metrics
	up      Uploader

	EventCh  chan telemetry.Event
	uploadCh chan []telemetry.Event

	ctx    context.Context
	cancel context.CancelFunc

	wg       sync.WaitGroup
	stopOnce sync.Once

	// enqMu 는 EnqueueBatch 의 "여유 확인 → 투입" 구간을 직렬화한다.
	enqMu sync.Mutex
}

// NewArchiver 는 설정에 따라 아카이버를 구성한다.
// RawBucket 이 비어 있으면 disabled 인스턴스를 반환한다
// (Start/Shutdown 은 no-op, Enqueue 는 항상 true 로 이벤트를 버린다).
func NewArchiver(cfg config.Collector, m *metrics.Metrics) *Archiver {
	var up Uploader
	if cfg.RawBucket != "" {
		up = NewS3Uploader(cfg, m)
	}
	return NewArchiverWithUploader(cfg, m, up)
}

// NewArchiverWithUploader 는 Uploader 를 직접 주입받는 생성자.
// 테스트에서 S3 없이 아카이브 경로를 검증할 때 사용한다.
func NewArchiverWithUploader(cfg config.Collector, m *metrics.Metrics, up Uploader) *Archiver {
	return &Archiver{
		cfg:      cfg,
		metrics:  m,
		up:       up,
		EventCh:  make(chan telemetry.Event, cfg.ChannelSize),
		uploadCh: make(chan []telemetry.Event, 8),
	}
}

// Enabled 는 아카이브 기능이 켜져 있는지 반환한다.
func (a *Archiver) Enabled() bool {
	return a.up != nil
}

// Start 는 두 개의 주요 goroutine 을 실행한다.
//   - collectLoop: 이벤트를 batch 로 모아서 uploadCh 로 전달
//   - uploadLoop: batch 인코딩 + 업로드
func (a *Archiver) Start() {
	if !a.Enabled() {
		return
	}

	a.ctx, a.cancel = context.WithCancel(context.Background())

	a.wg.Add(2)
	go a.collectLoop()
	go a.uploadLoop()
}

// Shutdown 은 graceful shutdown 을 위해 EventCh 를 먼저 닫고
// 모든 goroutine 이 완료될 때까지 대기한다. 여러 번 호출해도 safe.
//
// cancel 은 drain 이 끝난 뒤에 호출한다. 먼저 cancel 하면
// 마지막 batch 의 uploadCh 전달이 ctx.Done 과 경합해서
// 종료 직전 이벤트가 유실될 수 있다.
func (a *Archiver) Shutdown() {
	if !a.Enabled() {
		return
	}
	a.stopOnce.Do(func() {
		close(a.EventCh)
	})
	a.wg.Wait()
	a.cancel()
}

// Enqueue 는 수신 이벤트를 아카이브 큐에 넣는다.
// 큐가 가득 차면 false 를 반환한다 (fail-fast backpressure,
// 핸들러는 503 으로 응답).
func (a *Archiver) Enqueue(ev telemetry.Event) bool {
	if !a.Enabled() {
		return true
	}
	select {
	case a.EventCh <- ev:
		return true
	default:
		return false
	}
}

// EnqueueBatch 는 배치 전체를 all-or-nothing 으로 큐에 넣는다.
//
// 이벤트를 한 건씩 넣다가 중간에 queue full 이 되면, 클라이언트는
// non-2xx 를 보고 배치 전체를 재전송하므로 이미 수용된 prefix 가
// 중복된다. 여유 용량을 먼저 확인하고(reserve) 한 번에 투입(commit)
// 해서 503 을 원자적으로 만든다.
//
// consumer(collectLoop)는 큐를 비우기만 하므로, enqMu 로 producer 를
// 직렬화하면 확인 이후의 투입은 실패할 수 없다.
func (a *Archiver) EnqueueBatch(events []telemetry.Event) bool {
	if !a.Enabled() || len(events) == 0 {
		return true
	}

	a.enqMu.Lock()
	defer a.enqMu.Unlock()

	if len(events) > cap(a.EventCh)-len(a.EventCh) {
		return false
	}
	for _, ev := range events {
		a.EventCh <- ev
	}
	return true
}

// collectLoop 는 EventCh 에서 이벤트를 읽어 batch 로 묶는다.
// BatchSize 도달 또는 FlushInterval 타이머 만료 시 uploadCh 에 전달한다.
//
// flush 는 항상 새로운 batch slice 를 생성하여
// 재사용으로 인한 데이터 오염을 방지한다.
func (a *Archiver) collectLoop() {
	defer a.wg.Done()
	defer close(a.uploadCh)

	batch := make([]telemetry.Event, 0, a.cfg.BatchSize)
	timer := time.NewTimer(a.cfg.FlushInterval)
	defer timer.Stop()

	reset := func() {
		// 타이머가 이미 만료된 상태면 drain
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(a.cfg.FlushInterval)
	}

	flush := func() {
		if len(batch) > 0 {
			select {
			case a.uploadCh <- batch:
			case <-a.ctx.Done():
				return
			}
			// 새로운 slice 로 교체 (기존 slice 재사용 금지)
			batch = make([]telemetry.Event, 0, a.cfg.BatchSize)
		}
	}

	for {
		select {
		case <-a.ctx.Done():
			// 종료 시 남아있는 batch 도 업로드 시도
			flush()
			return

		case ev, ok := <-a.EventCh:
			if !ok {
				// 이벤트 채널 종료 → 남은 batch 처리 후 종료
				flush()
				return
			}
			batch = append(batch, ev)
			if len(batch) >= a.cfg.BatchSize {
				flush()
				reset()
			}

		case <-timer.C:
			// batch 가 비어 있어도 타이머는 반드시 다시 감는다.
			// flush 했을 때만 감으면 idle tick 한 번으로 시간 기반
			// flush 경로가 영구히 죽는다.
			flush()
			reset()
		}
	}
}

// uploadLoop 는 uploadCh 에서 batch 를 받아
//  1. gzip+JSONL 인코딩
//  2. 업로드 (재시도 포함, 최종 실패 시 drop + 카운트)
//
// 를 수행한다. uploadCh 가 닫히면 남은 작업을 마치고 종료된다.
func (a *Archiver) uploadLoop() {
	defer a.wg.Done()

	for batch := range a.uploadCh {
		a.archive(a.ctx, batch)
	}
	zlog.Info().Msg("archiver exiting")
}

// archive 는 하나의 이벤트 배치를 처리한다.
// 영속화는 하지 않으므로 최종 실패는 곧 유실이다. 유실은 반드시
// ArchiveDroppedEventsTotal 로 남긴다.
func (a *Archiver) archive(ctx context.Context, batch []telemetry.Event) {
	if len(batch) == 0 {
		return
	}

	data, err := EncodeBatchJSONLGZ(batch)
	if err != nil {
		// 인코딩 실패는 매우 드문 경우. 복구 수단이 없으므로 drop.
		zlog.Error().Err(err).Int("events", len(batch)).Msg("batch encode failed, dropping")
		atomic.AddInt64(&a.metrics.ArchiveDroppedEventsTotal, int64(len(batch)))
		return
	}

	key := NewObjectKey(a.cfg.RawPrefix, a.cfg.InstanceID)

	if err := a.up.UploadBytesWithRetryCtx(ctx, key, data); err != nil {
		zlog.Error().Err(err).Str("key", key).Int("events", len(batch)).Msg("archive upload failed, dropping")
		atomic.AddInt64(&a.metrics.ArchiveDroppedEventsTotal, int64(len(batch)))
		return
	}

	atomic.AddInt64(&a.metrics.S3EventsArchivedTotal, int64(len(batch)))
}
