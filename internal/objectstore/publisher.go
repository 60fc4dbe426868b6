package objectstore

import (
	"context"
	"fmt"
	nethttp "net/http"
	"os"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/gridconnect/gridconnect/internal/constants"
	"github.com/gridconnect/gridconnect/internal/logging"
)

// s3Putter is the part of *s3.Client used for publication.
type s3Putter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// blobUploader is the part of *azblob.Client used for publication.
type blobUploader interface {
	UploadFile(ctx context.Context, containerName string, blobName string, file *os.File, o *azblob.UploadFileOptions) (azblob.UploadFileResponse, error)
}

// Publisher copies local files into object stores.
// The HTTP client is shared with the SDK clients so proxy settings apply to them too.
type Publisher struct {
	httpClient *nethttp.Client
	logger     *logging.Logger

	newS3    func(ctx context.Context) (s3Putter, error)
	newAzure func(serviceURL string) (blobUploader, error)
}

// NewPublisher returns a Publisher that sends requests through httpClient.
func NewPublisher(httpClient *nethttp.Client, logger *logging.Logger) *Publisher {
	if logger == nil {
		logger = logging.NewNop()
	}
	p := &Publisher{httpClient: httpClient, logger: logger}
	p.newS3 = p.s3Client
	p.newAzure = p.azureClient
	return p
}

// Publish uploads the file at localPath to the target described by rawTarget.
func (p *Publisher) Publish(ctx context.Context, localPath, rawTarget string) error {
	target, err := ParseTarget(rawTarget)
	if err != nil {
		return err
	}

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", localPath, err)
	}

	start := time.Now()
	switch target.Scheme {
	case SchemeS3:
		err = p.putS3(ctx, f, info.Size(), target)
	case SchemeAzure:
		err = p.putAzure(ctx, f, target)
	default:
		err = fmt.Errorf("unsupported scheme %q", target.Scheme)
	}
	if err != nil {
		return fmt.Errorf("failed to publish %s to %s: %w", localPath, target, err)
	}

	p.logger.Info().
		Str("target", target.String()).
		Int64("bytes", info.Size()).
		Dur("took", time.Since(start)).
		Msg("Published file")
	return nil
}

func (p *Publisher) putS3(ctx context.Context, f *os.File, size int64, t *Target) error {
	client, err := p.newS3(ctx)
	if err != nil {
		return err
	}
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(t.Bucket),
		Key:           aws.String(t.Key),
		Body:          f,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String("text/plain"),
	})
	return err
}

func (p *Publisher) putAzure(ctx context.Context, f *os.File, t *Target) error {
	client, err := p.newAzure(t.ServiceURL)
	if err != nil {
		return err
	}
	_, err = client.UploadFile(ctx, t.Bucket, t.Key, f, &azblob.UploadFileOptions{
		BlockSize:   constants.PublishBlockSize,
		Concurrency: constants.PublishConcurrency,
	})
	return err
}

// s3Client loads credentials and region from the usual AWS sources (environment,
// shared config, instance metadata).
func (p *Publisher) s3Client(ctx context.Context) (s3Putter, error) {
	opts := []func(*config.LoadOptions) error{}
	if p.httpClient != nil {
		opts = append(opts, config.WithHTTPClient(p.httpClient))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

func (p *Publisher) azureClient(serviceURL string) (blobUploader, error) {
	var opts azblob.ClientOptions
	if p.httpClient != nil {
		opts.ClientOptions = azcore.ClientOptions{Transport: p.httpClient}
	}
	client, err := azblob.NewClientWithNoCredential(serviceURL, &opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}
	return client, nil
}
