// internal/logger/log.go
package logger

import (
	"io"
	"os"
	"strings"

	"sitebeacon/internal/config"

	stdlog "log"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Init
//
// collector 시작 시 한 번만 호출되는 로거 초기화 함수.
// Config 설정(환경변수)에 따라 개발용 콘솔 출력 또는
// 운영용 JSON 로그로 자동 전환한다.
//
// [주요 기능]
//
//  1. 로그 포맷 자동 전환:
//     - 개발 환경 (LOG_PRETTY=true): 색상 있는 텍스트 출력 (가독성 위주)
//     - 운영 환경: JSON 포맷 (CloudWatch 등 검색/분석 위주)
//
//  2. 공통 필드 자동 추가:
//     - 모든 로그에 "service", "instance" 가 붙는다.
//     - 서버가 여러 대일 때 어느 인스턴스의 로그인지 즉시 식별 가능.
//
//  3. 로그 샘플링 (비용 절감):
//     - Debug/Info 는 LOG_SAMPLE_N 에 따라 일부만 기록.
//     - Warn/Error 는 절대 버리지 않고 100% 기록.
func Init(cfg config.Collector) {

	// 1) 로그 레벨 결정
	level := zerolog.InfoLevel
	if l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.LogLevel))); err == nil {
		level = l
	}
	zerolog.SetGlobalLevel(level)

	// 2) 출력 방식 결정 (사람 vs 기계)
	var w io.Writer
	if cfg.LogPretty {
		w = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05", // 개발 중엔 시간만 보여도 충분
		}
	} else {
		w = os.Stdout
	}

	// 3) 기본 Logger 생성 (공통 태그 부착)
	base := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Str("instance", cfg.InstanceID).
		Logger()

	// 4) 샘플링 설정
	logger := base
	if cfg.LogSampleN > 1 {
		logger = base.Sample(&zerolog.LevelSampler{
			DebugSampler: &zerolog.BasicSampler{N: cfg.LogSampleN},
			InfoSampler:  &zerolog.BasicSampler{N: cfg.LogSampleN},
			// Warn/Error: 샘플링하지 않음 (nil).
		})
	}

	// 5) 전역 Logger 교체
	zlog.Logger = logger

	// 표준 라이브러리 log 를 쓰는 코드도 zerolog 설정을 따르도록 연결.
	stdlog.SetFlags(0)
	stdlog.SetOutput(zlog.Logger)
}
