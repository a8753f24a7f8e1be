// internal/telemetry/pipeline_test.go
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"sitebeacon/internal/config"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedConfig 는 env 를 건드리지 않고 파이프라인 설정을 고정한다.
func fixedConfig(endpoint string, threshold int) func() config.Telemetry {
	return func() config.Telemetry {
		return config.Telemetry{
			Endpoint:       endpoint,
			FlushThreshold: threshold,
			SendTimeout:    2 * time.Second,
		}
	}
}

// captureServer 는 수집 엔드포인트 역할을 하는 테스트 서버.
// fail 플래그로 장애 상황을 흉내 낸다.
type captureServer struct {
	srv  *httptest.Server
	fail atomic.Bool
	hits atomic.Int64

	mu      sync.Mutex
	batches [][]Event
}

func newCaptureServer(t *testing.T) *captureServer {
	t.Helper()

	cs := &captureServer{}
	cs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs.hits.Add(1)

		if cs.fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		var p batchPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		cs.mu.Lock()
		cs.batches = append(cs.batches, p.Events)
		cs.mu.Unlock()

		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(cs.srv.Close)
	return cs
}

func (cs *captureServer) received() []Event {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	var out []Event
	for _, b := range cs.batches {
		out = append(out, b...)
	}
	return out
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestRecordFillsDerivedFields(t *testing.T) {
	p := New(
		WithConfigSource(fixedConfig("", 10)),
		WithPathSource(func() string { return "/docs/install" }),
	)
	defer p.Close()

	p.Record(EventPageView, "", nil)

	snap := p.Snapshot()
	require.Len(t, snap, 1)

	rec := snap[0]
	assert.Equal(t, "page_view", rec.Event)
	assert.Equal(t, "/docs/install", rec.Path)
	assert.Greater(t, rec.Ts, int64(0))
	assert.Empty(t, rec.Label)
	assert.Nil(t, rec.Meta)
}

func TestRecordWithLabelAndMeta(t *testing.T) {
	p := New(WithConfigSource(fixedConfig("", 10)))
	defer p.Close()

	meta := map[string]string{"tier": "team", "source": "docs"}
	p.Record(EventCTAClick, "pricing_hero", meta)

	// 호출자가 map 을 재사용해도 기록된 레코드는 영향받지 않는다.
	meta["tier"] = "tampered"

	snap := p.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "pricing_hero", snap[0].Label)
	assert.Equal(t, map[string]string{"tier": "team", "source": "docs"}, snap[0].Meta)
}

func TestTimestampsMonotonicAcrossRecords(t *testing.T) {
	p := New(WithConfigSource(fixedConfig("", 1000)))
	defer p.Close()

	for i := 0; i < 200; i++ {
		p.Record(EventPageView, "", nil)
	}

	snap := p.Snapshot()
	for i := 1; i < len(snap); i++ {
		assert.GreaterOrEqual(t, snap[i].Ts, snap[i-1].Ts)
	}
}

func TestFlushWithoutEndpointNeverTouchesTransport(t *testing.T) {
	var calls atomic.Int64
	client := &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		calls.Add(1)
		return nil, errors.New("must not be called")
	})}

	p := New(
		WithConfigSource(fixedConfig("", 10)), // endpoint 미설정 = 전송 꺼짐
		WithHTTPClient(client),
	)
	defer p.Close()

	p.Record(EventPageView, "", nil)
	p.Flush(context.Background())

	assert.Equal(t, int64(0), calls.Load())
	// no-op flush 는 버퍼를 건드리지 않는다
	assert.Len(t, p.Snapshot(), 1)
}

func TestFlushSuccessEmptiesBuffer(t *testing.T) {
	cs := newCaptureServer(t)
	p := New(WithConfigSource(fixedConfig(cs.srv.URL, 100)))

	p.Record(EventPageView, "", nil)
	p.Record(EventDocsView, "sidebar", nil)
	p.Record(EventInstallCopy, "", map[string]string{"platform": "linux"})
	p.Flush(context.Background())

	assert.Empty(t, p.Snapshot())

	got := cs.received()
	require.Len(t, got, 3)
	assert.Equal(t, []string{"page_view", "docs_view", "install_copy"},
		[]string{got[0].Event, got[1].Event, got[2].Event})

	st := p.Stats()
	assert.Equal(t, int64(1), st.FlushSuccessTotal)
	assert.Equal(t, int64(3), st.EventsDeliveredTotal)
	p.Close()
}

func TestFlushFailureRebuffersInOrder(t *testing.T) {
	cs := newCaptureServer(t)
	cs.fail.Store(true)

	p := New(WithConfigSource(fixedConfig(cs.srv.URL, 100)))
	defer p.Close()

	p.Record(EventPageView, "a", nil)
	p.Record(EventPageView, "b", nil)
	p.Flush(context.Background()) // 실패 → re-buffer, 에러는 올라오지 않는다

	snap := p.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "a", snap[0].Label)
	assert.Equal(t, "b", snap[1].Label)

	// 실패 배치 뒤에 새 레코드가 이어진다
	p.Record(EventPageView, "c", nil)

	// 엔드포인트 복구 → 다음 flush 에서 전체가 순서대로 전달
	cs.fail.Store(false)
	p.Flush(context.Background())

	assert.Empty(t, p.Snapshot())
	got := cs.received()
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a", "b", "c"},
		[]string{got[0].Label, got[1].Label, got[2].Label})

	st := p.Stats()
	assert.Equal(t, int64(1), st.FlushFailuresTotal)
	assert.Equal(t, int64(2), st.EventsRequeuedTotal)
}

func TestThresholdTriggersBackgroundFlush(t *testing.T) {
	cs := newCaptureServer(t)

	done := make(chan FlushOutcome, 1)
	p := New(
		WithConfigSource(fixedConfig(cs.srv.URL, 3)),
		WithObserver(func(o FlushOutcome) { done <- o }),
	)
	defer p.Close()

	// threshold 미만에서는 전송이 일어나지 않는다
	p.Record(EventPageView, "", nil)
	p.Record(EventPageView, "", nil)
	assert.Equal(t, int64(0), cs.hits.Load())

	// threshold 도달 → 백그라운드 flush. Record 자체는 블록되지 않는다.
	p.Record(EventPageView, "", nil)

	select {
	case o := <-done:
		assert.True(t, o.Sent)
		assert.Equal(t, 3, o.Events)
	case <-time.After(2 * time.Second):
		t.Fatal("background flush did not complete")
	}

	assert.Empty(t, p.Snapshot())
}

func TestBoundedMemoryUnderSustainedFailure(t *testing.T) {
	cs := newCaptureServer(t)
	cs.fail.Store(true)

	const bufCap = 20
	p := New(
		WithConfigSource(fixedConfig(cs.srv.URL, 5)),
		WithBufferCap(bufCap),
	)

	for i := 0; i < 150; i++ {
		p.Record(EventPageView, fmt.Sprintf("r%d", i), nil)
		assert.LessOrEqual(t, len(p.Snapshot()), bufCap)
	}
	p.Flush(context.Background())
	assert.LessOrEqual(t, len(p.Snapshot()), bufCap)

	st := p.Stats()
	assert.Equal(t, int64(150), st.RecordedTotal)
	assert.Greater(t, st.DroppedOldestTotal, int64(0))
	p.Close()
}

func TestConcurrentRecordsStayBounded(t *testing.T) {
	cs := newCaptureServer(t)
	cs.fail.Store(true)

	const bufCap = 25
	p := New(
		WithConfigSource(fixedConfig(cs.srv.URL, 5)),
		WithBufferCap(bufCap),
	)

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				p.Record(EventPageView, "", nil)
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, len(p.Snapshot()), bufCap)
	p.Close()
}

func TestClearEmptiesUnconditionally(t *testing.T) {
	p := New(WithConfigSource(fixedConfig("", 10)))
	defer p.Close()

	for i := 0; i < 7; i++ {
		p.Record(EventPageView, "", nil)
	}
	p.Clear()

	assert.Empty(t, p.Snapshot())
}

func TestCloseFlushesAndIsIdempotent(t *testing.T) {
	cs := newCaptureServer(t)
	p := New(WithConfigSource(fixedConfig(cs.srv.URL, 100)))

	p.Record(EventPageView, "", nil)
	p.Record(EventSignupRedirect, "", nil)

	p.Close()
	p.Close() // 멱등

	assert.Len(t, cs.received(), 2)

	// teardown 이후 Record 는 no-op
	p.Record(EventPageView, "", nil)
	assert.Empty(t, p.Snapshot())
}
