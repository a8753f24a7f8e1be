// internal/telemetry/event.go
package telemetry

// Event
// ------------------------------------------------------------
// 사이트에서 발생한 단일 사용 이벤트 구조체.
// telemetry 파이프라인 전체에서 데이터의 "기본 단위"가 된다.
// Record → Buffer → Flush → Transport 까지 그대로 전달된다.
//
// 개인정보 계약 (schema-level privacy guard):
//   - 이 구조체는 "닫힌 필드 집합"이다. 이메일, 이름, 전화번호,
//     비밀번호, 사용자 ID 같은 식별 정보를 담을 필드 자체가 없다.
//   - 호출자는 여기 정의된 필드 외에는 어떤 값도 추가할 수 없으므로,
//     런타임 스캐너 없이 스키마만으로 계약이 보장된다.
//   - Meta 는 사전에 합의된 안전한 key 집합(tier, channel, platform,
//     version_target, source 등)만 사용한다.
type Event struct {
	Event string            `json:"event"`           // 이벤트 이름 (사전 합의된 vocabulary)
	Label string            `json:"label,omitempty"` // 선택: UI surface 등 자유 qualifier
	Meta  map[string]string `json:"meta,omitempty"`  // 선택: 구조화된 부가 컨텍스트
	Path  string            `json:"path"`            // 기록 시점의 앱 내 위치 (자동 채움)
	Ts    int64             `json:"ts"`              // 기록 시각 (UTC epoch millis, 단조 비감소)
}

// 이벤트 이름 vocabulary.
// ------------------------------------------------------------
// 컴파일 타임에 닫혀 있지는 않지만(새 이벤트 추가 가능),
// 호출부는 반드시 아래처럼 사전 합의된 이름만 사용해야 한다.
// 집계 쿼리가 이름 문자열에 의존하기 때문이다.
const (
	EventPageView       = "page_view"
	EventCTAClick       = "cta_click"
	EventPricingView    = "pricing_view"
	EventDocsView       = "docs_view"
	EventSignupRedirect = "signup_redirect"
	EventInstallCopy    = "install_copy"
)

// batchPayload 는 flush 한 번에 전송되는 wire format 전체이다.
//
//	{"events": [Event, ...]}
type batchPayload struct {
	Events []Event `json:"events"`
}
