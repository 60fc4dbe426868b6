package objectstore

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func TestParseTarget(t *testing.T) {
	t.Setenv(AzureSASEnv, "?sv=2024&sig=abc")

	tests := []struct {
		name       string
		raw        string
		scheme     Scheme
		bucket     string
		key        string
		serviceURL string
	}{
		{"s3", "s3://exports/2026/sales.csv", SchemeS3, "exports", "2026/sales.csv", ""},
		{"azblob", "azblob://acct/dumps/run1/out.txt", SchemeAzure, "dumps", "run1/out.txt",
			"https://acct.blob.core.windows.net/?sv=2024&sig=abc"},
		{"sas url", "https://acct.blob.core.windows.net/dumps/out.txt?sv=1&sig=x", SchemeAzure, "dumps", "out.txt",
			"https://acct.blob.core.windows.net/?sv=1&sig=x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTarget(tt.raw)
			if err != nil {
				t.Fatalf("ParseTarget(%q) error: %v", tt.raw, err)
			}
			if got.Scheme != tt.scheme || got.Bucket != tt.bucket || got.Key != tt.key {
				t.Errorf("got %+v", got)
			}
			if got.ServiceURL != tt.serviceURL {
				t.Errorf("ServiceURL = %q, want %q", got.ServiceURL, tt.serviceURL)
			}
		})
	}
}

func TestParseTargetRejects(t *testing.T) {
	t.Setenv(AzureSASEnv, "")

	for _, raw := range []string{
		"s3://bucket",
		"s3:///key",
		"azblob://acct/container/blob",
		"azblob://acct/container",
		"https://example.com/a/b",
		"https://acct.blob.core.windows.net/c/b",
		"ftp://host/file",
	} {
		if _, err := ParseTarget(raw); err == nil {
			t.Errorf("ParseTarget(%q) should fail", raw)
		}
	}
}

func TestTargetStringHidesSAS(t *testing.T) {
	tgt, err := ParseTarget("https://acct.blob.core.windows.net/dumps/out.txt?sv=1&sig=secret")
	if err != nil {
		t.Fatal(err)
	}
	if s := tgt.String(); strings.Contains(s, "secret") {
		t.Errorf("String() leaks SAS token: %s", s)
	}
}

type fakeS3 struct {
	input *s3.PutObjectInput
	body  string
	err   error
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	b, _ := io.ReadAll(in.Body)
	f.body = string(b)
	return &s3.PutObjectOutput{}, f.err
}

type fakeBlob struct {
	container, blob string
	body            string
}

func (f *fakeBlob) UploadFile(ctx context.Context, container, blob string, file *os.File, _ *azblob.UploadFileOptions) (azblob.UploadFileResponse, error) {
	f.container, f.blob = container, blob
	b, _ := io.ReadAll(file)
	f.body = string(b)
	return azblob.UploadFileResponse{}, nil
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.txt")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPublishS3(t *testing.T) {
	fake := &fakeS3{}
	p := NewPublisher(nil, nil)
	p.newS3 = func(ctx context.Context) (s3Putter, error) { return fake, nil }

	path := writeTemp(t, "a,b\n1,2\n")
	if err := p.Publish(context.Background(), path, "s3://exports/sales.csv"); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if aws.ToString(fake.input.Bucket) != "exports" || aws.ToString(fake.input.Key) != "sales.csv" {
		t.Errorf("wrong destination: %s/%s", aws.ToString(fake.input.Bucket), aws.ToString(fake.input.Key))
	}
	if aws.ToInt64(fake.input.ContentLength) != 8 {
		t.Errorf("ContentLength = %d, want 8", aws.ToInt64(fake.input.ContentLength))
	}
	if fake.body != "a,b\n1,2\n" {
		t.Errorf("body = %q", fake.body)
	}
}

func TestPublishAzure(t *testing.T) {
	fake := &fakeBlob{}
	var gotURL string
	p := NewPublisher(nil, nil)
	p.newAzure = func(serviceURL string) (blobUploader, error) {
		gotURL = serviceURL
		return fake, nil
	}

	path := writeTemp(t, "row\n")
	err := p.Publish(context.Background(), path, "https://acct.blob.core.windows.net/dumps/out.txt?sig=x")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if gotURL != "https://acct.blob.core.windows.net/?sig=x" {
		t.Errorf("service URL = %q", gotURL)
	}
	if fake.container != "dumps" || fake.blob != "out.txt" || fake.body != "row\n" {
		t.Errorf("got %+v", fake)
	}
}

func TestPublishErrorsNamePath(t *testing.T) {
	fake := &fakeS3{err: errors.New("access denied")}
	p := NewPublisher(nil, nil)
	p.newS3 = func(ctx context.Context) (s3Putter, error) { return fake, nil }

	path := writeTemp(t, "x")
	err := p.Publish(context.Background(), path, "s3://b/k")
	if err == nil || !strings.Contains(err.Error(), path) || !strings.Contains(err.Error(), "access denied") {
		t.Errorf("unexpected error: %v", err)
	}

	err = p.Publish(context.Background(), filepath.Join(t.TempDir(), "missing"), "s3://b/k")
	if err == nil || !strings.Contains(err.Error(), "missing") {
		t.Errorf("expected open error naming the path, got %v", err)
	}
}
