package objectstore

import "time"

// Config configures the S3 (or S3-compatible) bucket invoice PDFs are
// archived to.
type Config struct {
	Bucket         string        `env:"S3_BUCKET"`
	Region         string        `env:"S3_REGION" envDefault:"eu-west-2"`
	AccessKeyID    string        `env:"S3_ACCESS_KEY_ID"`
	SecretKey      string        `env:"S3_SECRET_KEY"`
	Endpoint       string        `env:"S3_ENDPOINT"`
	ForcePathStyle bool          `env:"S3_FORCE_PATH_STYLE" envDefault:"false"`
	Prefix         string        `env:"S3_PREFIX" envDefault:"invoices/"`
	UploadTimeout  time.Duration `env:"S3_UPLOAD_TIMEOUT" envDefault:"30s"`
}

// Enabled reports whether a bucket is configured.
func (c Config) Enabled() bool {
	return c.Bucket != ""
}
