// Package storage maps opaque object keys to public URLs.
package storage

import (
	"fmt"
	"strings"
)

const defaultRegion = "us-east-1"

// URLResolver builds public S3 URLs for product image keys.
type URLResolver struct {
	bucket string
	region string
}

func NewURLResolver(bucket, region string) *URLResolver {
	return &URLResolver{bucket: strings.TrimSpace(bucket), region: strings.TrimSpace(region)}
}

// Configured reports whether a bucket is set.
func (r *URLResolver) Configured() bool {
	return r != nil && r.bucket != ""
}

// PublicURL returns "" when no bucket is configured or the key is empty.
func (r *URLResolver) PublicURL(key string) string {
	key = strings.TrimLeft(key, "/")
	if !r.Configured() || key == "" {
		return ""
	}
	if r.region == "" || r.region == defaultRegion {
		return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", r.bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", r.bucket, r.region, key)
}
