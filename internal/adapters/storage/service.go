// Package storage archives raw inbound webhook payloads in S3-compatible
// object storage.
package storage

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Config defines the configuration interface for storage.
type Config interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinIOMaxFileSize() int64
	GetMinioBucketWebhookArchive() string
	IsMinIOEnabled() bool
}

const (
	archivePrefix      = "calendly"
	archiveContentType = "application/json"
)

// ArchiveKey builds calendly/YYYY/MM/DD/<event>-<id>.json from the UTC
// receive time. Characters outside [a-z0-9._-] in event become "_".
func ArchiveKey(event string, receivedAt time.Time, id uuid.UUID) string {
	day := receivedAt.UTC().Format("2006/01/02")
	return archivePrefix + "/" + day + "/" + safeSegment(event) + "-" + id.String() + ".json"
}

func safeSegment(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "unknown"
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
