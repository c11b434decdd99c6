package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"roomstay/internal/app/policies"
	domainpayment "roomstay/internal/domain/payment"
)

// Archive keeps every raw gateway payload as its own object, keyed by order
// and arrival time, in a private S3-compatible bucket.
type Archive struct {
	bucket         string
	prefix         string
	client         *minio.Client
	logger         *slog.Logger
	now            func() time.Time
	bucketInitOnce sync.Once
	bucketInitErr  error
}

func NewArchive(endpoint string, useSSL bool, accessKey, secretKey, bucket string, logger *slog.Logger) (*Archive, error) {
	cleanEndpoint := strings.TrimSpace(endpoint)
	if cleanEndpoint == "" {
		return nil, errors.New("s3: endpoint is required")
	}
	if bucket = strings.TrimSpace(bucket); bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}
	minioClient, err := minio.New(parseEndpoint(cleanEndpoint), &minio.Options{
		Creds:  credentials.NewStaticV4(strings.TrimSpace(accessKey), strings.TrimSpace(secretKey), ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("s3: create client: %w", err)
	}
	return &Archive{
		bucket: bucket,
		prefix: "gateway-payloads",
		client: minioClient,
		logger: logger,
		now:    time.Now,
	}, nil
}

func (a *Archive) Archive(ctx context.Context, orderID domainpayment.OrderID, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	if err := a.ensureBucket(ctx); err != nil {
		return err
	}
	key := ObjectKey(a.prefix, orderID, a.now())
	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("s3: put object: %w", err)
	}
	if a.logger != nil {
		a.logger.Debug("gateway payload archived", "bucket", a.bucket, "key", key)
	}
	return nil
}

// ObjectKey is prefix/order/<utc timestamp>.json.
func ObjectKey(prefix string, orderID domainpayment.OrderID, at time.Time) string {
	order := url.PathEscape(strings.TrimSpace(string(orderID)))
	return fmt.Sprintf("%s/%s/%s.json", strings.Trim(prefix, "/"), order, at.UTC().Format("20060102T150405.000000000Z"))
}

func (a *Archive) ensureBucket(ctx context.Context) error {
	a.bucketInitOnce.Do(func() {
		exists, err := a.client.BucketExists(ctx, a.bucket)
		if err != nil {
			a.bucketInitErr = fmt.Errorf("s3: check bucket: %w", err)
			return
		}
		if exists {
			return
		}
		if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
			a.bucketInitErr = fmt.Errorf("s3: create bucket: %w", err)
		}
	})
	return a.bucketInitErr
}

func parseEndpoint(endpoint string) string {
	if parsed, err := url.Parse(endpoint); err == nil && parsed.Host != "" {
		return parsed.Host
	}
	return endpoint
}

// NoopArchive drops payloads when no bucket is configured.
type NoopArchive struct{}

func (NoopArchive) Archive(context.Context, domainpayment.OrderID, []byte) error {
	return nil
}

var (
	_ policies.PayloadArchive = (*Archive)(nil)
	_ policies.PayloadArchive = NoopArchive{}
)
