// internal/config/config_test.go
package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResolveTelemetryDefaults(t *testing.T) {
	t.Setenv("TELEMETRY_ENDPOINT", "")
	t.Setenv("TELEMETRY_FLUSH_THRESHOLD", "")
	t.Setenv("TELEMETRY_SEND_TIMEOUT", "")
	t.Setenv("TELEMETRY_GZIP", "")
	t.Setenv("TELEMETRY_DISABLED", "")

	cfg := ResolveTelemetry()

	assert.Empty(t, cfg.Endpoint)
	assert.Equal(t, DefaultFlushThreshold, cfg.FlushThreshold)
	assert.Equal(t, DefaultSendTimeout, cfg.SendTimeout)
	assert.False(t, cfg.Gzip)
	assert.False(t, cfg.Disabled)

	// endpoint 미설정 = 전송 꺼짐. 에러 상태가 아니다.
	assert.False(t, cfg.Enabled())
}

func TestResolveTelemetryFromEnv(t *testing.T) {
	t.Setenv("TELEMETRY_ENDPOINT", "https://beacon.example.com/v1/events")
	t.Setenv("TELEMETRY_FLUSH_THRESHOLD", "25")
	t.Setenv("TELEMETRY_SEND_TIMEOUT", "1500ms")
	t.Setenv("TELEMETRY_GZIP", "true")

	cfg := ResolveTelemetry()

	assert.Equal(t, "https://beacon.example.com/v1/events", cfg.Endpoint)
	assert.Equal(t, 25, cfg.FlushThreshold)
	assert.Equal(t, 1500*time.Millisecond, cfg.SendTimeout)
	assert.True(t, cfg.Gzip)
	assert.True(t, cfg.Enabled())
}

// 잘못된 값은 조용히 기본값으로 대체된다. telemetry 설정 오류가
// 호스트 앱을 죽이거나 로그를 오염시켜서는 안 된다.
func TestResolveTelemetryInvalidValuesFallBack(t *testing.T) {
	t.Setenv("TELEMETRY_FLUSH_THRESHOLD", "not-a-number")
	assert.Equal(t, DefaultFlushThreshold, ResolveTelemetry().FlushThreshold)

	t.Setenv("TELEMETRY_FLUSH_THRESHOLD", "0")
	assert.Equal(t, DefaultFlushThreshold, ResolveTelemetry().FlushThreshold)

	t.Setenv("TELEMETRY_FLUSH_THRESHOLD", "-3")
	assert.Equal(t, DefaultFlushThreshold, ResolveTelemetry().FlushThreshold)

	t.Setenv("TELEMETRY_SEND_TIMEOUT", "soon")
	assert.Equal(t, DefaultSendTimeout, ResolveTelemetry().SendTimeout)
}

// 해석은 lazy 다. env 가 바뀌면 다음 호출에서 즉시 반영된다 (캐시 없음).
func TestResolveTelemetryIsLazy(t *testing.T) {
	t.Setenv("TELEMETRY_ENDPOINT", "")
	assert.False(t, ResolveTelemetry().Enabled())

	t.Setenv("TELEMETRY_ENDPOINT", "https://beacon.example.com/v1/events")
	assert.True(t, ResolveTelemetry().Enabled())

	t.Setenv("TELEMETRY_ENDPOINT", "")
	assert.False(t, ResolveTelemetry().Enabled())
}

func TestTelemetryKillSwitch(t *testing.T) {
	t.Setenv("TELEMETRY_ENDPOINT", "https://beacon.example.com/v1/events")
	t.Setenv("TELEMETRY_DISABLED", "true")

	cfg := ResolveTelemetry()
	assert.True(t, cfg.Disabled)
	assert.False(t, cfg.Enabled())
}

func TestCollectorLoadDefaults(t *testing.T) {
	t.Setenv("RAW_BUCKET", "")
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("MAX_BODY_SIZE", "")

	cfg := Load()

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, int64(256*1024), cfg.MaxBodySize)
	assert.Empty(t, cfg.RawBucket) // 아카이브 꺼짐
	assert.NotEmpty(t, cfg.InstanceID)
}

func TestCollectorLoadOverrides(t *testing.T) {
	t.Setenv("RAW_BUCKET", "")
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("BATCH_SIZE", "100")
	t.Setenv("FLUSH_INTERVAL", "5s")

	cfg := Load()

	assert.Equal(t, ":9999", cfg.HTTPAddr)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.FlushInterval)
}
