//go:build integration

package s3

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/marmos91/storagebox/pkg/backend"
	"github.com/marmos91/storagebox/pkg/backend/backendtest"
)

// localstackHelper manages the Localstack container for S3 integration tests.
type localstackHelper struct {
	container testcontainers.Container
	endpoint  string
	client    *s3.Client
}

var (
	sharedHelper  *localstackHelper
	bucketCounter atomic.Int64
)

func TestMain(m *testing.M) {
	helper, err := newLocalstackHelper()
	if err != nil {
		fmt.Fprintf(os.Stderr, "localstack: %v\n", err)
		os.Exit(1)
	}
	sharedHelper = helper

	code := m.Run()
	helper.cleanup()
	os.Exit(code)
}

// newLocalstackHelper starts a Localstack container or connects to an
// existing one named by LOCALSTACK_ENDPOINT.
func newLocalstackHelper() (*localstackHelper, error) {
	ctx := context.Background()

	if endpoint := os.Getenv("LOCALSTACK_ENDPOINT"); endpoint != "" {
		helper := &localstackHelper{endpoint: endpoint}
		return helper, helper.createClient()
	}

	req := testcontainers.ContainerRequest{
		Image:        "localstack/localstack:3.0",
		ExposedPorts: []string{"4566/tcp"},
		Env: map[string]string{
			"SERVICES":              "s3",
			"DEFAULT_REGION":        "us-east-1",
			"EAGER_SERVICE_LOADING": "1",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("4566/tcp"),
			wait.ForHTTP("/_localstack/health").
				WithPort("4566/tcp").
				WithStartupTimeout(60*time.Second),
		),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start localstack container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "4566")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	helper := &localstackHelper{
		container: container,
		endpoint:  fmt.Sprintf("http://%s:%s", host, port.Port()),
	}
	return helper, helper.createClient()
}

// createClient creates an S3 client configured for Localstack.
func (lh *localstackHelper) createClient() error {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion("us-east-1"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			"test", "test", "",
		)),
	)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}

	lh.client = s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = &lh.endpoint
		o.UsePathStyle = true
	})
	return nil
}

// newBucket creates a uniquely named bucket.
func (lh *localstackHelper) newBucket(t *testing.T) string {
	t.Helper()

	name := fmt.Sprintf("storagebox-test-%d-%d", time.Now().UnixNano(), bucketCounter.Add(1))
	_, err := lh.client.CreateBucket(t.Context(), &s3.CreateBucketInput{
		Bucket: aws.String(name),
	})
	if err != nil {
		t.Fatalf("failed to create test bucket: %v", err)
	}
	return name
}

// cleanup terminates the container if we started one.
func (lh *localstackHelper) cleanup() {
	if lh.container != nil {
		_ = lh.container.Terminate(context.Background())
	}
}

func newTestStore(t *testing.T, downloadURLs bool) *Store {
	t.Helper()

	s, err := NewFromConfig(t.Context(), Config{
		Bucket:          sharedHelper.newBucket(t),
		Region:          "us-east-1",
		Endpoint:        sharedHelper.endpoint,
		KeyPrefix:       "objects/",
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		ForcePathStyle:  true,
		DownloadURLs:    downloadURLs,
		SpoolDir:        t.TempDir(),
	})
	if err != nil {
		t.Fatalf("NewFromConfig failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore(t *testing.T) {
	backendtest.Run(t, func(t *testing.T) backend.Backend {
		return newTestStore(t, false)
	})
}

func TestStore_KeyPrefix(t *testing.T) {
	s := newTestStore(t, false)
	uri := backendtest.Upload(t.Context(), t, s, "prefixed")

	_, err := sharedHelper.client.HeadObject(t.Context(), &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String("objects/" + uri),
	})
	if err != nil {
		t.Errorf("object not stored under key prefix: %v", err)
	}
}

func TestStore_PresignedDownload(t *testing.T) {
	s := newTestStore(t, true)
	if !s.DownloadURLsEnabled() {
		t.Fatal("DownloadURLsEnabled() = false")
	}

	uri := backendtest.Upload(t.Context(), t, s, "presigned body")
	url, err := s.GetDownloadURL(t.Context(), uri, "report final.txt", backend.DispositionAttachment, "text/plain")
	if err != nil {
		t.Fatalf("GetDownloadURL failed: %v", err)
	}
	if !strings.Contains(url, "X-Amz-Expires=120") {
		t.Errorf("presigned URL does not carry the default TTL: %s", url)
	}

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET presigned URL: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "presigned body" {
		t.Errorf("body = %q", body)
	}
	if got := resp.Header.Get("Content-Disposition"); !strings.Contains(got, "report final.txt") {
		t.Errorf("Content-Disposition = %q", got)
	}
	if got := resp.Header.Get("Content-Type"); got != "text/plain" {
		t.Errorf("Content-Type = %q", got)
	}
}

func TestStore_DownloadURLsDisabled(t *testing.T) {
	s := newTestStore(t, false)
	if _, ok := backend.DownloadURLs(s); ok {
		t.Error("DownloadURLs reported the capability while disabled")
	}
}
