package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/tanq16/chunkget/internal/engine"
	"github.com/tanq16/chunkget/internal/utils"
)

const Scheme = "s3"

type objectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Client serves s3://bucket/key URLs as a range-capable source. Ranged
// reads come back as 206 responses carrying the object's Content-Range.
type Client struct {
	api objectGetter
}

func NewClient(ctx context.Context, profile string) (*Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRetryMode(aws.RetryModeAdaptive),
	}
	if profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("error loading AWS config: %w", err)
	}
	return &Client{api: s3.NewFromConfig(cfg)}, nil
}

// ParseURL splits s3://bucket/key into its bucket and key.
func ParseURL(rawURL string) (bucket, key string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid S3 URL: %w", err)
	}
	if u.Scheme != Scheme {
		return "", "", fmt.Errorf("invalid S3 URL %q: scheme must be s3", rawURL)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return "", "", fmt.Errorf("invalid S3 URL %q: expected s3://bucket/key", rawURL)
	}
	return bucket, key, nil
}

func (c *Client) Get(ctx context.Context, rawURL string, rangeHeader string) (*engine.Response, error) {
	log := utils.GetLogger("s3")
	bucket, key, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	input := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if rangeHeader != "" {
		input.Range = aws.String(rangeHeader)
	}
	out, err := c.api.GetObject(ctx, input)
	if err != nil {
		var respErr *awshttp.ResponseError
		if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusRequestedRangeNotSatisfiable &&
			strings.HasPrefix(rangeHeader, "bytes=0-") {
			log.Debug().Str("bucket", bucket).Str("key", key).Msg("Range not satisfiable, treating object as empty")
			return &engine.Response{
				StatusCode: http.StatusRequestedRangeNotSatisfiable,
				Header:     http.Header{"Content-Range": []string{"bytes */0"}},
				Body:       io.NopCloser(strings.NewReader("")),
			}, nil
		}
		return nil, fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}

	header := http.Header{}
	status := http.StatusOK
	if out.ContentRange != nil && *out.ContentRange != "" {
		header.Set("Content-Range", *out.ContentRange)
		status = http.StatusPartialContent
	}
	if out.ContentLength != nil {
		header.Set("Content-Length", fmt.Sprintf("%d", *out.ContentLength))
	}
	if out.ETag != nil {
		header.Set("ETag", *out.ETag)
	}
	return &engine.Response{
		StatusCode: status,
		Header:     header,
		Body:       out.Body,
	}, nil
}
