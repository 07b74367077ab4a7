package s3

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

type fakeGetter struct {
	inputs []*s3.GetObjectInput
	out    *s3.GetObjectOutput
	err    error
}

func (f *fakeGetter) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.inputs = append(f.inputs, params)
	return f.out, f.err
}

func TestParseURL(t *testing.T) {
	tests := []struct {
		raw    string
		bucket string
		key    string
		ok     bool
	}{
		{"s3://bucket/key.bin", "bucket", "key.bin", true},
		{"s3://bucket/nested/dir/file.iso", "bucket", "nested/dir/file.iso", true},
		{"s3://bucket/", "", "", false},
		{"s3://bucket/folder/", "", "", false},
		{"https://bucket/key", "", "", false},
		{"s3:///key", "", "", false},
	}
	for _, tt := range tests {
		bucket, key, err := ParseURL(tt.raw)
		if tt.ok {
			if err != nil {
				t.Errorf("ParseURL(%q): unexpected error %v", tt.raw, err)
				continue
			}
			if bucket != tt.bucket || key != tt.key {
				t.Errorf("ParseURL(%q) = %q, %q; want %q, %q", tt.raw, bucket, key, tt.bucket, tt.key)
			}
		} else if err == nil {
			t.Errorf("ParseURL(%q): expected error", tt.raw)
		}
	}
}

func TestGetRangedObject(t *testing.T) {
	fake := &fakeGetter{out: &s3.GetObjectOutput{
		Body:          io.NopCloser(strings.NewReader("hello")),
		ContentRange:  aws.String("bytes 10-14/100"),
		ContentLength: aws.Int64(5),
	}}
	client := &Client{api: fake}

	resp, err := client.Get(context.Background(), "s3://bucket/data.bin", "bytes=10-14")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusPartialContent {
		t.Errorf("expected status 206, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Range"); got != "bytes 10-14/100" {
		t.Errorf("unexpected Content-Range %q", got)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "hello" {
		t.Errorf("unexpected body %q", body)
	}
	if len(fake.inputs) != 1 {
		t.Fatalf("expected 1 GetObject call, got %d", len(fake.inputs))
	}
	in := fake.inputs[0]
	if aws.ToString(in.Bucket) != "bucket" || aws.ToString(in.Key) != "data.bin" {
		t.Errorf("unexpected object %s/%s", aws.ToString(in.Bucket), aws.ToString(in.Key))
	}
	if aws.ToString(in.Range) != "bytes=10-14" {
		t.Errorf("unexpected range %q", aws.ToString(in.Range))
	}
}

func TestGetWithoutRange(t *testing.T) {
	fake := &fakeGetter{out: &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader("all"))}}
	client := &Client{api: fake}

	resp, err := client.Get(context.Background(), "s3://bucket/data.bin", "")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
	if fake.inputs[0].Range != nil {
		t.Errorf("expected no range, got %q", aws.ToString(fake.inputs[0].Range))
	}
}

func TestGetEmptyObjectProbe(t *testing.T) {
	fake := &fakeGetter{err: &awshttp.ResponseError{
		ResponseError: &smithyhttp.ResponseError{
			Response: &smithyhttp.Response{Response: &http.Response{StatusCode: http.StatusRequestedRangeNotSatisfiable}},
			Err:      errors.New("InvalidRange"),
		},
	}}
	client := &Client{api: fake}

	resp, err := client.Get(context.Background(), "s3://bucket/empty", "bytes=0-0")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusRequestedRangeNotSatisfiable {
		t.Errorf("expected status 416, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Range"); got != "bytes */0" {
		t.Errorf("unexpected Content-Range %q", got)
	}
}

func TestGetError(t *testing.T) {
	fake := &fakeGetter{err: errors.New("access denied")}
	client := &Client{api: fake}

	if _, err := client.Get(context.Background(), "s3://bucket/key", "bytes=0-9"); err == nil {
		t.Fatal("expected error")
	}
}
