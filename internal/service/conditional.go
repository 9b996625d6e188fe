package service

import (
	"strings"
	"time"

	"github.com/prn-tf/alexander-engine/internal/domain"
)

// Conditions carries the conditional request predicates of a read or write.
// The engine always accepts them; enforcement is gated by the conditional
// feature flag, and when disabled they behave as if absent.
type Conditions struct {
	// IfMatch succeeds only when the current latest data version's ETag
	// equals one of the given tags ("*" matches any existing version).
	IfMatch []string

	// IfNoneMatch on writes: "*" requires the key to have no current data
	// version. On reads: a matching ETag yields NotModified.
	IfNoneMatch []string

	// IfModifiedSince requires the latest entry to be newer on reads.
	IfModifiedSince *time.Time

	// IfUnmodifiedSince requires the latest entry to be no newer.
	IfUnmodifiedSince *time.Time
}

// IsZero reports whether no condition is set.
func (c *Conditions) IsZero() bool {
	return c == nil ||
		(len(c.IfMatch) == 0 && len(c.IfNoneMatch) == 0 &&
			c.IfModifiedSince == nil && c.IfUnmodifiedSince == nil)
}

// matchesETag reports whether etag matches one of the candidate tags.
// Tags may arrive quoted; "*" matches any non-empty etag.
func matchesETag(etag string, tags []string) bool {
	if etag == "" {
		return false
	}
	for _, tag := range tags {
		tag = strings.Trim(tag, `"`)
		if tag == "*" || tag == etag {
			return true
		}
	}
	return false
}

// checkWriteConditions evaluates conditions against the key's current state
// before a PUT or DELETE. current is the latest entry, nil when the key has
// none; a delete-marker latest counts as "no current data version".
func checkWriteConditions(cond *Conditions, current *domain.Entry) error {
	if cond.IsZero() {
		return nil
	}

	var etag string
	var exists bool
	if current != nil && !current.IsDeleteMarker {
		etag = current.ETag
		exists = true
	}

	if len(cond.IfMatch) > 0 {
		if !exists || !matchesETag(etag, cond.IfMatch) {
			return domain.ErrPreconditionFailed
		}
	}

	if len(cond.IfNoneMatch) > 0 {
		if exists && matchesETag(etag, cond.IfNoneMatch) {
			return domain.ErrPreconditionFailed
		}
	}

	if cond.IfUnmodifiedSince != nil && current != nil {
		if current.CreatedAt.After(*cond.IfUnmodifiedSince) {
			return domain.ErrPreconditionFailed
		}
	}

	return nil
}

// checkReadConditions evaluates conditions against the entry served by a
// GET or HEAD.
func checkReadConditions(cond *Conditions, entry *domain.Entry) error {
	if cond.IsZero() {
		return nil
	}

	if len(cond.IfMatch) > 0 && !matchesETag(entry.ETag, cond.IfMatch) {
		return domain.ErrPreconditionFailed
	}

	if len(cond.IfNoneMatch) > 0 && matchesETag(entry.ETag, cond.IfNoneMatch) {
		return domain.ErrNotModified
	}

	if cond.IfUnmodifiedSince != nil && entry.CreatedAt.After(*cond.IfUnmodifiedSince) {
		return domain.ErrPreconditionFailed
	}

	if cond.IfModifiedSince != nil && !entry.CreatedAt.After(*cond.IfModifiedSince) {
		return domain.ErrNotModified
	}

	return nil
}
