// Package objectstore publishes downloaded files to S3 or Azure Blob Storage.
package objectstore

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Scheme identifies the object store a target lives in.
type Scheme string

const (
	SchemeS3    Scheme = "s3"
	SchemeAzure Scheme = "azblob"
)

// AzureSASEnv names the environment variable holding the SAS token for azblob:// targets.
const AzureSASEnv = "GRIDCONNECT_AZURE_SAS"

// Target is a parsed publication destination.
//
// S3 targets have the form s3://bucket/key. Azure targets are either
// azblob://account/container/blob (SAS token taken from GRIDCONNECT_AZURE_SAS) or a
// blob SAS URL https://account.blob.core.windows.net/container/blob?sv=...
type Target struct {
	Scheme Scheme
	// Bucket is the S3 bucket or the Azure container.
	Bucket string
	// Key is the S3 object key or the Azure blob name.
	Key string
	// ServiceURL is the Azure account endpoint including its SAS query.
	ServiceURL string
}

func (t *Target) String() string {
	switch t.Scheme {
	case SchemeS3:
		return fmt.Sprintf("s3://%s/%s", t.Bucket, t.Key)
	default:
		u, err := url.Parse(t.ServiceURL)
		if err != nil {
			return fmt.Sprintf("azblob://%s/%s", t.Bucket, t.Key)
		}
		return fmt.Sprintf("%s://%s/%s/%s", u.Scheme, u.Host, t.Bucket, t.Key)
	}
}

// ParseTarget parses raw into a Target.
func ParseTarget(raw string) (*Target, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid publish target %q: %w", raw, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "s3":
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || key == "" {
			return nil, fmt.Errorf("invalid S3 target %q: expected s3://bucket/key", raw)
		}
		return &Target{Scheme: SchemeS3, Bucket: u.Host, Key: key}, nil

	case "azblob":
		container, blob, ok := splitContainer(u.Path)
		if u.Host == "" || !ok {
			return nil, fmt.Errorf("invalid Azure target %q: expected azblob://account/container/blob", raw)
		}
		sas := strings.TrimPrefix(os.Getenv(AzureSASEnv), "?")
		if sas == "" {
			return nil, fmt.Errorf("azure target %q needs a SAS token in %s", raw, AzureSASEnv)
		}
		return &Target{
			Scheme:     SchemeAzure,
			Bucket:     container,
			Key:        blob,
			ServiceURL: fmt.Sprintf("https://%s.blob.core.windows.net/?%s", u.Host, sas),
		}, nil

	case "https":
		if !strings.Contains(u.Host, ".blob.") {
			return nil, fmt.Errorf("unsupported publish target %q: https targets must be Azure blob URLs", raw)
		}
		container, blob, ok := splitContainer(u.Path)
		if !ok {
			return nil, fmt.Errorf("invalid Azure blob URL %q: expected /container/blob", raw)
		}
		if u.RawQuery == "" {
			return nil, fmt.Errorf("azure blob URL %q carries no SAS token", raw)
		}
		return &Target{
			Scheme:     SchemeAzure,
			Bucket:     container,
			Key:        blob,
			ServiceURL: fmt.Sprintf("https://%s/?%s", u.Host, u.RawQuery),
		}, nil

	default:
		return nil, fmt.Errorf("unsupported publish target %q: use s3://, azblob:// or an Azure blob SAS URL", raw)
	}
}

func splitContainer(path string) (container, blob string, ok bool) {
	container, blob, ok = strings.Cut(strings.TrimPrefix(path, "/"), "/")
	return container, blob, ok && container != "" && blob != ""
}
