package constants

import (
	"time"
)

// Chunk sizing
const (
	// MB is the unit used for user-facing chunk sizes.
	MB = 1024 * 1024

	// DefaultChunkSizeMB - chunk size used when neither the config file nor a flag sets one.
	DefaultChunkSizeMB = 1

	// MinChunkSizeMB / MaxChunkSizeMB - bounds accepted by the platform's chunk slots.
	// Upload and sink chunk sizes outside this range are rejected by config validation.
	MinChunkSizeMB = 1
	MaxChunkSizeMB = 50

	// DefaultConcurrency - number of chunk uploads in flight at once.
	// Reads from the source file stay sequential regardless of this value.
	DefaultConcurrency = 1

	// MaxConcurrency - upper bound for --concurrency.
	MaxConcurrency = 8
)

// Download materialization
const (
	// PartialFilePrefix - prefix of the sibling temp file a download is written to
	// before being renamed onto the target path.
	PartialFilePrefix = ".partial."
)

// Task status polling
const (
	// InitialPollInterval - first sleep between status fetches.
	InitialPollInterval = 1 * time.Second

	// MediumPollInterval - sleep used once MediumPollThreshold of wait time has passed.
	MediumPollInterval  = 10 * time.Second
	MediumPollThreshold = 10 * time.Second

	// LongPollInterval - sleep used once LongPollThreshold of wait time has passed.
	LongPollInterval  = 60 * time.Second
	LongPollThreshold = 60 * time.Second

	// MaxStatusFailures - consecutive status-fetch failures tolerated before the
	// run is abandoned. The first attempt plus these retries gives 31 attempts.
	MaxStatusFailures = 30
)

// Retry configuration
const (
	// DefaultMaxRetryCount - retries for transient transport and database failures.
	DefaultMaxRetryCount = 3

	// MinMaxRetryCount / MaxMaxRetryCount - clamp range for the configured retry count.
	MinMaxRetryCount = 3
	MaxMaxRetryCount = 15

	// DefaultRetryBase - base interval of the exponential backoff.
	DefaultRetryBase = 5 * time.Second

	// MinRetryBase / MaxRetryBase - clamp range for the configured base interval.
	MinRetryBase = 1 * time.Second
	MaxRetryBase = 60 * time.Second

	// DefaultRetryMultiplier - growth factor applied per attempt.
	DefaultRetryMultiplier = 1.5

	// DefaultRetryCap - no computed interval exceeds this.
	DefaultRetryCap = 2 * time.Minute
)

// API rate limiting
const (
	// APIRatePerSec - sustained request rate toward the platform API.
	APIRatePerSec = 5.0

	// APIBurstCapacity - requests allowed back-to-back before throttling applies.
	APIBurstCapacity = 50.0
)

// HTTP client timeouts
const (
	HTTPDialTimeout           = 30 * time.Second
	HTTPDialKeepAlive         = 30 * time.Second
	HTTPIdleConnTimeout       = 90 * time.Second
	HTTPTLSHandshakeTimeout   = 30 * time.Second
	HTTPExpectContinueTimeout = 1 * time.Second

	// HTTPClientTimeout - overall timeout for a single API request, including chunk bodies.
	HTTPClientTimeout = 300 * time.Second
)

// Service defaults
const (
	// DefaultAPIBaseURL - platform API root used when no override is configured.
	DefaultAPIBaseURL = "https://api.gridconnect.io"

	// DefaultLocale - locale sent with task creation requests.
	DefaultLocale = "en_US"
)

// Object store publication
const (
	// PublishBlockSize - Azure block size used when publishing a downloaded file.
	PublishBlockSize = 8 * 1024 * 1024

	// PublishConcurrency - blocks uploaded in parallel during publication.
	PublishConcurrency = 4
)
