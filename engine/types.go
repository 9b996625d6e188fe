// Package engine exposes the embeddable object-store engine: buckets,
// versioned objects, delete markers, Object Lock, listings, and batch
// deletes with S3 semantics. A transport facade calls these operations
// in-process; the engine assumes a single trusted caller.
package engine

import (
	"io"
	"time"
)

// VersioningState is a bucket's versioning state.
type VersioningState string

const (
	// VersioningUnversioned means versioning has never been enabled.
	VersioningUnversioned VersioningState = "Unversioned"

	// VersioningEnabled means versioning is active.
	VersioningEnabled VersioningState = "Enabled"

	// VersioningSuspended means versioning is paused; new writes take the
	// "null" version slot.
	VersioningSuspended VersioningState = "Suspended"
)

// NullVersionID is the literal version ID of entries written while a bucket
// is Unversioned or Suspended.
const NullVersionID = "null"

// RetentionMode is an Object Lock retention mode.
type RetentionMode string

const (
	// RetentionGovernance allows privileged callers to bypass the lock.
	RetentionGovernance RetentionMode = "GOVERNANCE"

	// RetentionCompliance cannot be bypassed, shortened, or downgraded.
	RetentionCompliance RetentionMode = "COMPLIANCE"
)

// Retention is a time-bounded deletion protection on a data version.
type Retention struct {
	Mode        RetentionMode `json:"mode"`
	RetainUntil time.Time     `json:"retain_until"`
}

// DefaultRetention is a bucket-level default stamped onto new versions.
// Exactly one of Days or Years is positive.
type DefaultRetention struct {
	Mode  RetentionMode `json:"mode"`
	Days  int           `json:"days,omitempty"`
	Years int           `json:"years,omitempty"`
}

// ObjectLockConfig is a bucket's Object Lock configuration.
type ObjectLockConfig struct {
	Enabled          bool              `json:"enabled"`
	DefaultRetention *DefaultRetention `json:"default_retention,omitempty"`
}

// BucketInfo describes a bucket.
type BucketInfo struct {
	Name       string          `json:"name"`
	Versioning VersioningState `json:"versioning"`
	MFADelete  bool            `json:"mfa_delete"`
	ObjectLock bool            `json:"object_lock"`
	CreatedAt  time.Time       `json:"created_at"`
}

// VersioningInfo is the result of GetBucketVersioning.
type VersioningInfo struct {
	State     VersioningState `json:"state"`
	MFADelete bool            `json:"mfa_delete"`
}

// Conditions carries conditional request predicates. The engine always
// accepts them; enforcement is gated by the Conditional config flag.
type Conditions struct {
	IfMatch           []string
	IfNoneMatch       []string
	IfModifiedSince   *time.Time
	IfUnmodifiedSince *time.Time
}

// PutObjectInput describes a PutObject request.
type PutObjectInput struct {
	Bucket      string
	Key         string
	Body        io.Reader
	Size        int64 // -1 when unknown
	ContentType string
	Metadata    map[string]string
	Conditions  *Conditions
}

// PutObjectResult is the outcome of a PutObject.
type PutObjectResult struct {
	// ETag is the lowercase hex content tag, unquoted; the facade adds
	// the wire quotes.
	ETag      string `json:"etag"`
	VersionID string `json:"version_id"`
	Size      int64  `json:"size"`
}

// GetObjectInput describes a GetObject or HeadObject request.
type GetObjectInput struct {
	Bucket     string
	Key        string
	VersionID  string // Optional
	Conditions *Conditions
}

// Object is a retrieved object body plus metadata.
// Body is nil for HeadObject results and must be closed otherwise.
type Object struct {
	Body           io.ReadCloser     `json:"-"`
	ContentLength  int64             `json:"content_length"`
	ContentType    string            `json:"content_type"`
	ETag           string            `json:"etag"`
	LastModified   time.Time         `json:"last_modified"`
	VersionID      string            `json:"version_id"`
	IsDeleteMarker bool              `json:"is_delete_marker"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// DeleteObjectInput describes a DeleteObject request.
type DeleteObjectInput struct {
	Bucket           string
	Key              string
	VersionID        string // Optional; set for a permanent delete
	BypassGovernance bool
	Conditions       *Conditions
}

// DeleteObjectResult is the outcome of a DeleteObject.
type DeleteObjectResult struct {
	DeleteMarker bool   `json:"delete_marker"`
	VersionID    string `json:"version_id,omitempty"`
}

// ObjectIdentifier names one object in a batch delete.
type ObjectIdentifier struct {
	Key       string `json:"key"`
	VersionID string `json:"version_id,omitempty"`
}

// DeleteObjectsInput describes a batch delete request.
type DeleteObjectsInput struct {
	Bucket           string
	Objects          []ObjectIdentifier
	Quiet            bool
	BypassGovernance bool
}

// DeletedObject is one successful batch-delete outcome.
type DeletedObject struct {
	Key                   string `json:"key"`
	VersionID             string `json:"version_id,omitempty"`
	DeleteMarker          bool   `json:"delete_marker"`
	DeleteMarkerVersionID string `json:"delete_marker_version_id,omitempty"`
}

// DeleteErrorEntry is one failed batch-delete outcome.
type DeleteErrorEntry struct {
	Key       string `json:"key"`
	VersionID string `json:"version_id,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// DeleteObjectsResult holds both outcome lists of a batch delete.
type DeleteObjectsResult struct {
	Deleted []DeletedObject    `json:"deleted"`
	Errors  []DeleteErrorEntry `json:"errors"`
}

// CopyObjectInput describes a CopyObject request.
type CopyObjectInput struct {
	SourceBucket    string
	SourceKey       string
	SourceVersionID string // Optional
	DestBucket      string
	DestKey         string
	ContentType     string            // Optional override with REPLACE
	Metadata        map[string]string // Optional override with REPLACE
	// MetadataDirective is COPY (default) or REPLACE.
	MetadataDirective string
}

// CopyObjectResult is the outcome of a CopyObject.
type CopyObjectResult struct {
	ETag         string    `json:"etag"`
	LastModified time.Time `json:"last_modified"`
	VersionID    string    `json:"version_id"`
}

// ListObjectsInput describes a current-view listing request.
type ListObjectsInput struct {
	Bucket            string
	Prefix            string
	Delimiter         string
	Marker            string
	ContinuationToken string
	MaxKeys           int
}

// ObjectSummary is one current-view listing row.
type ObjectSummary struct {
	Key          string    `json:"key"`
	ETag         string    `json:"etag"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// ListObjectsResult is one page of the current view.
type ListObjectsResult struct {
	Name                  string          `json:"name"`
	Prefix                string          `json:"prefix,omitempty"`
	Delimiter             string          `json:"delimiter,omitempty"`
	MaxKeys               int             `json:"max_keys"`
	IsTruncated           bool            `json:"is_truncated"`
	Contents              []ObjectSummary `json:"contents"`
	CommonPrefixes        []string        `json:"common_prefixes,omitempty"`
	NextMarker            string          `json:"next_marker,omitempty"`
	NextContinuationToken string          `json:"next_continuation_token,omitempty"`
	KeyCount              int             `json:"key_count"`
}

// ListVersionsInput describes a version listing request.
type ListVersionsInput struct {
	Bucket          string
	Prefix          string
	Delimiter       string
	KeyMarker       string
	VersionIDMarker string
	MaxKeys         int
}

// VersionSummary is one version listing row: a data version or a delete
// marker.
type VersionSummary struct {
	Key            string    `json:"key"`
	VersionID      string    `json:"version_id"`
	IsLatest       bool      `json:"is_latest"`
	IsDeleteMarker bool      `json:"is_delete_marker"`
	ETag           string    `json:"etag,omitempty"`
	Size           int64     `json:"size,omitempty"`
	LastModified   time.Time `json:"last_modified"`
}

// ListVersionsResult is one page of the version listing.
type ListVersionsResult struct {
	Name                string           `json:"name"`
	Prefix              string           `json:"prefix,omitempty"`
	Delimiter           string           `json:"delimiter,omitempty"`
	MaxKeys             int              `json:"max_keys"`
	IsTruncated         bool             `json:"is_truncated"`
	Versions            []VersionSummary `json:"versions"`
	CommonPrefixes      []string         `json:"common_prefixes,omitempty"`
	NextKeyMarker       string           `json:"next_key_marker,omitempty"`
	NextVersionIDMarker string           `json:"next_version_id_marker,omitempty"`
}

// PutRetentionInput describes a PutObjectRetention request.
type PutRetentionInput struct {
	Bucket           string
	Key              string
	VersionID        string     // Optional
	Retention        *Retention // Nil clears, subject to replacement rules
	BypassGovernance bool
}

// PutLegalHoldInput describes a PutObjectLegalHold request.
type PutLegalHoldInput struct {
	Bucket    string
	Key       string
	VersionID string // Optional
	Hold      bool
}
