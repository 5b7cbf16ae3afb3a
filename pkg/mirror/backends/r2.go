package backends

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dxforge/forge/pkg/mirror"
)

const r2Name = "r2"

// R2 uploads to a Cloudflare R2 bucket through the S3 API. Connection
// details live in the bundle's Extra blob: the access key pair, the
// bucket and the account endpoint.
type R2 struct {
	Creds      CredentialSource
	HTTPClient *http.Client // optional, for tests

	mu     sync.Mutex
	client *s3.Client
	bucket string
}

type r2Credentials struct {
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	Bucket          string `json:"bucket"`
	Endpoint        string `json:"endpoint"`
}

func (r *R2) Name() string { return r2Name }

// CanHandle accepts everything; object storage has no media-type
// restrictions.
func (r *R2) CanHandle(string) bool { return true }

// Upload puts the payload under a key derived from the filename.
func (r *R2) Upload(ctx context.Context, data io.Reader, meta mirror.Metadata) (*mirror.Target, error) {
	client, bucket, err := r.s3Client(ctx)
	if err != nil {
		return nil, err
	}

	key := strings.TrimPrefix(meta.Filename, "/")
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          data,
		ContentType:   aws.String(meta.MediaType),
		ContentLength: aws.Int64(meta.Size),
	})
	if err != nil {
		return nil, &mirror.UploadError{Backend: r2Name, Step: "put-object", Err: err}
	}

	return &mirror.Target{
		Backend: r2Name,
		Key:     key,
		URL:     fmt.Sprintf("s3://%s/%s", bucket, key),
	}, nil
}

// s3Client builds the S3 client on first use and reuses it afterwards.
func (r *R2) s3Client(ctx context.Context) (*s3.Client, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil {
		return r.client, r.bucket, nil
	}

	bundle, err := loadBundle(r.Creds, r2Name)
	if err != nil {
		return nil, "", err
	}

	creds := r2Credentials{AccessKeyID: bundle.AccessToken}
	if len(bundle.Extra) > 0 {
		if err := json.Unmarshal(bundle.Extra, &creds); err != nil {
			return nil, "", &mirror.UploadError{Backend: r2Name, Step: "credentials", Err: err}
		}
	}
	if creds.AccessKeyID == "" {
		creds.AccessKeyID = bundle.AccessToken
	}
	if creds.SecretAccessKey == "" || creds.Bucket == "" || creds.Endpoint == "" {
		return nil, "", &mirror.UploadError{
			Backend: r2Name, Step: "credentials",
			Err: fmt.Errorf("extra must carry secret_access_key, bucket and endpoint"),
		}
	}

	configOptions := []func(*awsConfig.LoadOptions) error{
		// R2 ignores the region but the SDK requires one.
		awsConfig.WithRegion("auto"),
		awsConfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			creds.AccessKeyID, creds.SecretAccessKey, "")),
	}
	if r.HTTPClient != nil {
		configOptions = append(configOptions, awsConfig.WithHTTPClient(r.HTTPClient))
	}

	cfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, "", &mirror.UploadError{Backend: r2Name, Step: "credentials", Err: err}
	}

	r.client = s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(creds.Endpoint)
		o.UsePathStyle = true
	})
	r.bucket = creds.Bucket
	return r.client, r.bucket, nil
}
