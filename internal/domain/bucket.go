// Package domain contains the core business entities for the Alexander engine.
package domain

import (
	"regexp"
	"time"
)

// VersioningState represents the versioning state of a bucket.
type VersioningState string

const (
	// VersioningUnversioned means versioning has never been enabled.
	// Objects are overwritten in place on PUT and removed on DELETE.
	VersioningUnversioned VersioningState = "Unversioned"

	// VersioningEnabled means versioning is active.
	// Each PUT creates a new version, DELETE creates a delete marker.
	VersioningEnabled VersioningState = "Enabled"

	// VersioningSuspended means versioning was enabled but is now paused.
	// New writes occupy the "null" version slot, existing versions are preserved.
	VersioningSuspended VersioningState = "Suspended"
)

// bucketNameRegex validates S3-compliant bucket names.
// Rules: 3-63 characters, lowercase letters, numbers, hyphens, periods.
// Must start and end with letter or number.
var bucketNameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

// Bucket is the unit of isolation for keys: it owns its entry index and
// all blobs referenced by its entries.
type Bucket struct {
	// ID is the unique identifier for the bucket.
	ID int64 `json:"id"`

	// Name is the globally unique bucket name.
	// Constraints: 3-63 characters, lowercase, alphanumeric with hyphens/periods.
	Name string `json:"name"`

	// Versioning is the bucket's versioning state.
	// Once Enabled it can only move to Suspended, never back to Unversioned.
	Versioning VersioningState `json:"versioning"`

	// MFADelete records whether MFA-Delete is flagged on the bucket.
	// Stored independently of versioning transitions.
	MFADelete bool `json:"mfa_delete"`

	// ObjectLock holds the bucket's Object Lock configuration, if any.
	// Once enabled it cannot be disabled.
	ObjectLock *ObjectLockConfig `json:"object_lock,omitempty"`

	// Seq is the bucket's monotonic write sequence counter.
	// Every committed entry takes the next value; it records commit order.
	Seq int64 `json:"-"`

	// CreatedAt is the timestamp when the bucket was created.
	CreatedAt time.Time `json:"created_at"`
}

// NewBucket creates a new Bucket with default values.
func NewBucket(name string) *Bucket {
	return &Bucket{
		Name:       name,
		Versioning: VersioningUnversioned,
		CreatedAt:  time.Now().UTC(),
	}
}

// IsVersioningEnabled returns true if versioning is currently active.
func (b *Bucket) IsVersioningEnabled() bool {
	return b.Versioning == VersioningEnabled
}

// IsVersioningEverEnabled returns true if versioning was ever enabled.
func (b *Bucket) IsVersioningEverEnabled() bool {
	return b.Versioning == VersioningEnabled || b.Versioning == VersioningSuspended
}

// CanTransitionTo reports whether the bucket's versioning state may move to
// the target state. The only forbidden move is back to Unversioned once
// versioning has ever been enabled.
func (b *Bucket) CanTransitionTo(target VersioningState) bool {
	switch target {
	case VersioningEnabled, VersioningSuspended:
		return true
	case VersioningUnversioned:
		return !b.IsVersioningEverEnabled()
	default:
		return false
	}
}

// ObjectLockConfig is a bucket's Object Lock configuration.
type ObjectLockConfig struct {
	// Enabled is true once Object Lock has been turned on for the bucket.
	Enabled bool `json:"enabled"`

	// DefaultRetention, when set, is stamped onto every new data version
	// written while the bucket is versioning-Enabled.
	DefaultRetention *DefaultRetention `json:"default_retention,omitempty"`
}

// DefaultRetention describes bucket-level default retention.
// Exactly one of Days or Years is positive.
type DefaultRetention struct {
	Mode  RetentionMode `json:"mode"`
	Days  int           `json:"days,omitempty"`
	Years int           `json:"years,omitempty"`
}

// Duration converts the default retention period to a time.Duration.
// Years follow the S3 convention of 365 days.
func (d DefaultRetention) Duration() time.Duration {
	if d.Years > 0 {
		return time.Duration(d.Years) * 365 * 24 * time.Hour
	}
	return time.Duration(d.Days) * 24 * time.Hour
}

// Validate checks the default retention for a valid mode and period.
func (d DefaultRetention) Validate() error {
	if d.Mode != RetentionGovernance && d.Mode != RetentionCompliance {
		return ErrInvalidRetention
	}
	if d.Days < 0 || d.Years < 0 {
		return ErrInvalidRetention
	}
	if (d.Days > 0) == (d.Years > 0) {
		return ErrInvalidRetention
	}
	return nil
}

// ValidateBucketName checks if the bucket name follows S3 naming conventions.
func ValidateBucketName(name string) error {
	if len(name) < 3 || len(name) > 63 {
		return ErrBucketNameLength
	}

	if !bucketNameRegex.MatchString(name) {
		return ErrBucketNameFormat
	}

	// Additional checks for IP-like names
	if isIPAddress(name) {
		return ErrBucketNameIPFormat
	}

	return nil
}

// isIPAddress checks if the string looks like an IP address.
func isIPAddress(s string) bool {
	ipRegex := regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}$`)
	return ipRegex.MatchString(s)
}
