// internal/telemetry/transport.go
package telemetry

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"sitebeacon/internal/config"
	"sitebeacon/internal/pool"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	zlog "github.com/rs/zerolog/log"
)

// transport
// ------------------------------------------------------------
// 배치 1개를 수집 엔드포인트로 전송하는 컴포넌트.
//
// 계약:
//   - flush 1회 = HTTP POST 1회. transport 내부 재시도는 없다.
//     실패 배치는 버퍼로 되돌아가 다음 flush 트리거에서
//     기회적으로 재전송된다 (백그라운드 타이머 없음).
//   - 네트워크 에러든 non-2xx 응답이든 구분 없이 동일한 실패 신호.
//     호출자에게는 bool 하나만 올라간다.
//   - 절대 무한정 블록하지 않는다. 시도당 SendTimeout 적용.
type transport struct {
	client *http.Client
}

func newTransport(client *http.Client) *transport {
	if client == nil {
		client = &http.Client{}
	}
	return &transport{client: client}
}

// send 는 배치를 {"events":[...]} JSON body 로 1회 POST 한다.
// 2xx 응답이면 true. 응답 body 는 무시한다.
func (t *transport) send(ctx context.Context, cfg config.Telemetry, batch []Event) bool {
	// ------------------------------------------------------------
	// 1) payload 인코딩 — pool 버퍼 재사용.
	//    gzip 모드면 goccy encoder 를 gzip writer 에 직결한다.
	// ------------------------------------------------------------
	buf := pool.BufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer pool.PutBuffer(buf)

	if cfg.Gzip {
		gz := pool.GzipPool.Get().(*gzip.Writer)
		gz.Reset(buf)

		if err := json.NewEncoder(gz).Encode(batchPayload{Events: batch}); err != nil {
			_ = gz.Close()
			pool.GzipPool.Put(gz)
			zlog.Warn().Err(err).Msg("telemetry: batch encode failed")
			return false
		}
		if err := gz.Close(); err != nil {
			pool.GzipPool.Put(gz)
			zlog.Warn().Err(err).Msg("telemetry: gzip close failed")
			return false
		}
		pool.GzipPool.Put(gz)
	} else {
		if err := json.NewEncoder(buf).Encode(batchPayload{Events: batch}); err != nil {
			zlog.Warn().Err(err).Msg("telemetry: batch encode failed")
			return false
		}
	}

	// ------------------------------------------------------------
	// 2) 전송 — 시도당 timeout. shutdown ctx 와 함께 cancel-safe.
	// ------------------------------------------------------------
	ctx2, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx2, http.MethodPost, cfg.Endpoint, bytes.NewReader(buf.Bytes()))
	if err != nil {
		zlog.Warn().Err(err).Str("endpoint", cfg.Endpoint).Msg("telemetry: bad endpoint")
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.Gzip {
		req.Header.Set("Content-Encoding", "gzip")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		// 미전달 신호로만 취급. 호스트 앱 로그를 오염시키지 않도록 debug.
		zlog.Debug().Err(err).Msg("telemetry: send failed")
		return false
	}
	defer resp.Body.Close()

	// 응답 body 는 계약상 무시. keep-alive 재사용을 위해 drain 만 한다.
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		zlog.Debug().Int("status", resp.StatusCode).Msg("telemetry: endpoint rejected batch")
		return false
	}
	return true
}
