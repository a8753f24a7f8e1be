// internal/sink/s3.go
package sink

import (
	"bytes"
	"context"
	"io"
	"log"
	"sync/atomic"
	"time"

	"sitebeacon/internal/config"
	"sitebeacon/internal/metrics"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsCfgLib "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Uploader 는 아카이브 객체(gzip JSONL 배치)를 S3 에 올린다.
//
// 모든 업로드는 컨텍스트 기반(timeout + cancel-safe)으로 이루어지며,
// 재시도(backoff) 로직을 포함한다. SDK retry 는 0으로 고정하고
// 재시도 횟수는 애플리케이션 레벨(S3AppRetries)만 사용한다.
type S3Uploader struct {
	cfg     config.Collector
	metrics *metrics.Metrics
	client  *s3.Client
}

// NewS3Uploader 는 AWS SDK Config 를 초기화하고 S3 client 를 생성한다.
// 실패 시 fatal 로그 후 즉시 종료한다 (아카이브를 켠 운영 환경에서는 필수).
func NewS3Uploader(cfg config.Collector, m *metrics.Metrics) *S3Uploader {
	awsCfg, err := awsCfgLib.LoadDefaultConfig(
		context.TODO(),
		awsCfgLib.WithRegion(cfg.AWSRegion),
	)
	if err != nil {
		log.Fatalf("[FATAL] failed to load AWS config: %v", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.RetryMaxAttempts = 0
	})

	return &S3Uploader{
		cfg:     cfg,
		metrics: m,
		client:  client,
	}
}

// UploadBytesWithRetryCtx
// -----------------------
// 메모리에 있는 gzip+JSONL 바이트 배열을 S3로 업로드한다.
// - 각 시도는 S3Timeout 적용
// - retry + exponential backoff 포함
// - shutdown-safe: ctx.Done() 시 즉시 중단
//
// body 는 매 재시도마다 reader 를 새로 만들어야 하므로 bytes.NewReader 사용.
func (u *S3Uploader) UploadBytesWithRetryCtx(
	ctx context.Context,
	key string,
	body []byte,
) error {

	var lastErr error
	backoff := 200 * time.Millisecond

	for attempt := 1; attempt <= u.cfg.S3AppRetries; attempt++ {

		// shutdown 체크
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		reader := bytes.NewReader(body)

		if err := u.putObject(ctx, key, reader, int64(len(body))); err == nil {
			return nil
		} else {
			lastErr = err
			atomic.AddInt64(&u.metrics.S3PutErrorsTotal, 1)
		}

		// backoff 적용 (최대 2초)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
			if backoff > 2*time.Second {
				backoff = 2 * time.Second
			}
		}
	}

	return lastErr
}

// putObject
// ---------
// 실제 AWS S3 PutObject 호출을 수행한다.
// - retries 는 caller 에서 제어하며 여기서는 1회 호출만 담당
// - 각 호출은 컨텍스트 기반 S3Timeout 을 가진다
func (u *S3Uploader) putObject(
	ctx context.Context,
	key string,
	body io.Reader,
	size int64,
) error {

	ctx2, cancel := context.WithTimeout(ctx, u.cfg.S3Timeout)
	defer cancel()

	_, err := u.client.PutObject(ctx2, &s3.PutObjectInput{
		Bucket:        aws.String(u.cfg.RawBucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
	})

	return err
}
