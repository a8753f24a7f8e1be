// internal/sink/encoder.go
package sink

import (
	"bytes"

	"sitebeacon/internal/pool"
	"sitebeacon/internal/telemetry"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
)

// EncodeBatchJSONLGZ 는 수신한 이벤트 배치를 JSONL 형식으로
// 줄 단위 인코딩한 뒤 gzip 압축해 반환한다.
//
// 반환값:
// - data: 압축된 결과의 byte slice (호출자 소유)
// - err: 인코딩 과정 중 오류 발생 시
func EncodeBatchJSONLGZ(events []telemetry.Event) ([]byte, error) {

	// gzip 결과를 담을 버퍼와 writer 를 pool 에서 가져온다.
	buf := pool.BufferPool.Get().(*bytes.Buffer)
	buf.Reset()

	gz := pool.GzipPool.Get().(*gzip.Writer)
	gz.Reset(buf)

	// goccy encoder 를 gzip writer 에 직결해 이벤트마다 한 줄씩 기록.
	enc := json.NewEncoder(gz)
	for i := range events {
		if err := enc.Encode(&events[i]); err != nil {
			_ = gz.Close()
			pool.GzipPool.Put(gz)
			pool.PutBuffer(buf)
			return nil, err
		}
	}

	// gzip footer flush & close. Close() 시 압축 스트림이 완성된다.
	if err := gz.Close(); err != nil {
		pool.GzipPool.Put(gz)
		pool.PutBuffer(buf)
		return nil, err
	}
	pool.GzipPool.Put(gz)

	// pool 버퍼는 재사용되므로 caller 소유의 새 slice 로 복사해 반환.
	raw := buf.Bytes()
	data := make([]byte, len(raw))
	copy(data, raw)

	pool.PutBuffer(buf)
	return data, nil
}
