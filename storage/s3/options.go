package s3

import (
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/cache"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/storage/s3/internal/s3api"
)

// Environment variables read by FromEnv.
const (
	EnvEndpoint = "AWS_S3_ENDPOINT_URL"
	EnvRegion   = "AWS_REGION"
)

type handlerConfig struct {
	scheme    string
	endpoint  string
	pathStyle bool
	region    string
	client    s3api.S3API
	awsConfig *aws.Config
	cache     *cache.Cache
	logger    *slog.Logger
}

// Option configures a Handler.
type Option func(*handlerConfig)

// WithScheme sets the URI scheme the handler serves. Default is "s3".
func WithScheme(scheme string) Option {
	return func(c *handlerConfig) {
		if scheme != "" {
			c.scheme = scheme
		}
	}
}

// WithEndpoint sets a custom S3-compatible endpoint URL.
// Endpoints in the virtual-hosted allow-list are always addressed in
// virtual-hosted style. Other endpoints keep the SDK default unless
// WithPathStyle is set.
func WithEndpoint(endpoint string) Option {
	return func(c *handlerConfig) {
		c.endpoint = endpoint
	}
}

// WithPathStyle addresses buckets in path style, as MinIO and LocalStack
// expect. It applies only together with WithEndpoint and has no effect on
// endpoints in the virtual-hosted allow-list.
func WithPathStyle(enabled bool) Option {
	return func(c *handlerConfig) {
		c.pathStyle = enabled
	}
}

// WithRegion sets the AWS region.
// If not specified, uses the default AWS region from the credential chain.
func WithRegion(region string) Option {
	return func(c *handlerConfig) {
		c.region = region
	}
}

// WithClient uses client instead of building one on first use.
// This is primarily used for testing with mocked clients.
func WithClient(client s3api.S3API) Option {
	return func(c *handlerConfig) {
		c.client = client
	}
}

// WithAWSConfig uses cfg instead of loading the default AWS configuration.
func WithAWSConfig(cfg *aws.Config) Option {
	return func(c *handlerConfig) {
		c.awsConfig = cfg
	}
}

// WithCache sets the content cache fetched objects are stored in.
func WithCache(ch *cache.Cache) Option {
	return func(c *handlerConfig) {
		c.cache = ch
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *handlerConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// FromEnv reads the endpoint from AWS_S3_ENDPOINT_URL and the region from
// AWS_REGION. Unset variables leave the current values alone.
func FromEnv() Option {
	return func(c *handlerConfig) {
		if v := os.Getenv(EnvEndpoint); v != "" {
			c.endpoint = v
		}
		if v := os.Getenv(EnvRegion); v != "" {
			c.region = v
		}
	}
}
