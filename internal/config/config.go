// internal/config/config.go
package config

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// ------------------------------------------------------------
// 이 파일은 두 종류의 설정을 다룬다.
//
//  1. Telemetry — 사이트에 내장되는 수집 파이프라인 설정.
//     env 가 없어도 절대 실패하지 않는다. endpoint 미설정은
//     "전송 꺼짐" 이라는 정상 운영 모드이지 에러가 아니다.
//     매 호출마다 env 를 다시 읽는다 (lazy, 캐시 없음) —
//     테스트가 env 를 바꾸면 즉시 반영되어야 하기 때문.
//
//  2. Collector — 수집 엔드포인트 서버(cmd/collector) 설정.
//     서버 쪽은 잘못된 설정으로 떠 있으면 안 되므로
//     기존 must* fail-fast 패턴을 유지한다.
// ------------------------------------------------------------

// Telemetry 파이프라인 기본값.
const (
	DefaultFlushThreshold = 10              // 이 개수가 쌓이면 자동 flush
	DefaultSendTimeout    = 5 * time.Second // flush 1회당 HTTP timeout
)

// Telemetry 는 파이프라인이 매 동작 시점에 해석하는 설정 스냅샷이다.
type Telemetry struct {
	Endpoint       string        // 수집 엔드포인트 URL. 빈 값 = 전송 꺼짐
	FlushThreshold int           // 자동 flush 트리거 길이
	SendTimeout    time.Duration // 전송 1회 timeout
	Gzip           bool          // 요청 body gzip 압축 여부
	Disabled       bool          // kill switch (TELEMETRY_DISABLED)
}

// Enabled 는 실제 전송이 일어나야 하는 상태인지를 반환한다.
func (t Telemetry) Enabled() bool {
	return t.Endpoint != "" && !t.Disabled
}

// ResolveTelemetry 는 호출 시점의 프로세스 환경으로부터 설정을 해석한다.
// 어떤 값이 잘못되어 있어도 기본값으로 조용히 대체한다.
// telemetry 가 호스트 앱의 장애 원인이 되어서는 안 되기 때문이다.
func ResolveTelemetry() Telemetry {
	return Telemetry{
		Endpoint:       strings.TrimSpace(os.Getenv("TELEMETRY_ENDPOINT")),
		FlushThreshold: envPositiveInt("TELEMETRY_FLUSH_THRESHOLD", DefaultFlushThreshold),
		SendTimeout:    envDuration("TELEMETRY_SEND_TIMEOUT", DefaultSendTimeout),
		Gzip:           envBool("TELEMETRY_GZIP"),
		Disabled:       envBool("TELEMETRY_DISABLED"),
	}
}

// envPositiveInt / envDuration / envBool
// telemetry 전용 lenient 헬퍼. 형식이 잘못되면 기본값.
func envPositiveInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// ------------------------------------------------------------
// Collector (cmd/collector) 설정
// ------------------------------------------------------------

// Collector
//
// 수집 서버 실행 시 필요한 env 값 보관 구조체.
// 모든 값은 프로세스 시작 시점에 Load() 로 초기화되며
// 이후에는 변경되지 않는 불변(read-only) 설정이다.
type Collector struct {

	// ---------------------------
	// 서버 식별자 / 네트워크
	// ---------------------------

	ServiceName string // 로그 공통 필드용 서비스 이름
	InstanceID  string // collector 프로세스 고유 ID (호스트명 기반, 실패 시 랜덤 hex)
	HTTPAddr    string // HTTP 서버 bind 주소 (예: ":8080")

	// ---------------------------
	// 요청 처리 파라미터
	// ---------------------------

	MaxBodySize int64 // 단일 요청 body 최대 크기 (바이트)
	ChannelSize int   // archive 대기 큐(EventCh) 버퍼 크기

	// ---------------------------
	// S3 아카이브 (선택)
	// --------------------------------------------
	// RawBucket 이 비어 있으면 아카이브 기능 전체가 꺼진다.
	// 로컬/개발 환경에서는 수신 카운트와 디버그 로그만 남긴다.
	//
	// Retry 정책 단일화: AWS SDK retry 는 코드에서 0으로 고정하고
	// 재시도 횟수는 애플리케이션 레벨(S3AppRetries)만 사용한다.
	// --------------------------------------------

	AWSRegion     string        // AWS 리전
	RawBucket     string        // 배치 아카이브 대상 버킷 (빈 값 = 아카이브 꺼짐)
	RawPrefix     string        // 아카이브 prefix (예: raw)
	BatchSize     int           // N개 이벤트가 모이면 아카이브
	FlushInterval time.Duration // 시간 기반 아카이브 주기
	S3Timeout     time.Duration // PutObject 시도당 timeout
	S3AppRetries  int           // 업로드 재시도 횟수 (SDK retry 는 항상 0)

	// ---------------------------
	// 로깅
	// ---------------------------

	LogLevel   string // zerolog 레벨 (debug/info/warn/error)
	LogPretty  bool   // true 면 사람이 읽는 콘솔 출력
	LogSampleN uint32 // Debug/Info 샘플링 비율 (N개 중 1개 기록, 0/1 = 샘플링 없음)
}

// Load
//
// 환경 변수 기반으로 Collector 설정을 초기화한다.
// 로컬 실행이 편하도록 대부분 기본값을 가지며,
// S3 아카이브를 켠 경우(RAW_BUCKET 설정)에만 관련 env 를 must 로 강제한다.
func Load() Collector {
	c := Collector{
		ServiceName: envStr("SERVICE_NAME", "sitebeacon-collector"),
		InstanceID:  fallbackInstanceID(),
		HTTPAddr:    envStr("HTTP_ADDR", ":8080"),

		MaxBodySize: envInt64Def("MAX_BODY_SIZE", 256*1024),
		ChannelSize: envIntDef("CHANNEL_SIZE", 1024),

		RawBucket:     os.Getenv("RAW_BUCKET"),
		RawPrefix:     envStr("RAW_PREFIX", "raw"),
		BatchSize:     envIntDef("BATCH_SIZE", 500),
		FlushInterval: envDurDef("FLUSH_INTERVAL", 30*time.Second),
		S3Timeout:     envDurDef("S3_TIMEOUT", 5*time.Second),
		S3AppRetries:  envIntDef("S3_APP_RETRIES", 3),

		LogLevel:   envStr("LOG_LEVEL", "info"),
		LogPretty:  envBool("LOG_PRETTY"),
		LogSampleN: uint32(envIntDef("LOG_SAMPLE_N", 0)),
	}

	// 아카이브를 켰다면 리전은 반드시 있어야 한다 (fail-fast).
	if c.RawBucket != "" {
		c.AWSRegion = must("AWS_REGION")
	}

	return c
}

// must / envStr / envIntDef / envInt64Def / envDurDef
//
// 공통 패턴.
// must 는 필수 env 가 없으면 즉시 로그 출력 후 종료(fail-fast).
// 런타임 중 설정 오류를 겪지 않도록 하기 위한 보호 전략.
func must(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("missing required env: %s", key)
	}
	return v
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntDef(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("invalid int env %s=%q: %v", key, v, err)
	}
	return n
}

func envInt64Def(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Fatalf("invalid int64 env %s=%q: %v", key, v, err)
	}
	return n
}

func envDurDef(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatalf("invalid duration env %s=%q: %v", key, v, err)
	}
	return d
}

// fallbackInstanceID
//
// collector 인스턴스를 식별하는 고유 값.
//   - 기본: hostname (ECS/Fargate에서는 task-id 형태로 고유)
//   - fallback: 12자리 랜덤 hex
func fallbackInstanceID() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	var b [6]byte
	if _, err := rand.Read(b[:]); err == nil {
		return hex.EncodeToString(b[:])
	}
	return strconv.FormatInt(time.Now().UnixNano(), 10)
}
