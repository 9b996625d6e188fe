package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestValidateBucketName(t *testing.T) {
	valid := []string{"abc", "my-bucket", "my.bucket.01", "a1b"}
	for _, name := range valid {
		require.NoError(t, ValidateBucketName(name), name)
	}

	require.ErrorIs(t, ValidateBucketName("ab"), ErrBucketNameLength)
	require.ErrorIs(t, ValidateBucketName(string(make([]byte, 64))), ErrBucketNameLength)
	require.ErrorIs(t, ValidateBucketName("My-Bucket"), ErrBucketNameFormat)
	require.ErrorIs(t, ValidateBucketName("-bucket"), ErrBucketNameFormat)
	require.ErrorIs(t, ValidateBucketName("bucket_"), ErrBucketNameFormat)
	require.ErrorIs(t, ValidateBucketName("192.168.1.1"), ErrBucketNameIPFormat)
}

func TestValidateObjectKey(t *testing.T) {
	require.NoError(t, ValidateObjectKey("a"))
	require.NoError(t, ValidateObjectKey("photos/2024/cat.jpg"))
	require.ErrorIs(t, ValidateObjectKey(""), ErrObjectKeyEmpty)

	long := make([]byte, MaxKeyLength+1)
	for i := range long {
		long[i] = 'k'
	}
	require.ErrorIs(t, ValidateObjectKey(string(long)), ErrObjectKeyTooLong)
	require.NoError(t, ValidateObjectKey(string(long[:MaxKeyLength])))
}

func TestVersioningTransitions(t *testing.T) {
	b := NewBucket("test-bucket")
	require.Equal(t, VersioningUnversioned, b.Versioning)
	require.True(t, b.CanTransitionTo(VersioningEnabled))

	b.Versioning = VersioningEnabled
	require.True(t, b.CanTransitionTo(VersioningSuspended))
	require.False(t, b.CanTransitionTo(VersioningUnversioned))

	b.Versioning = VersioningSuspended
	require.True(t, b.CanTransitionTo(VersioningEnabled))
	require.False(t, b.CanTransitionTo(VersioningUnversioned))
}

func TestNewVersionID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewVersionID()
		require.Len(t, id, 32)
		for _, c := range id {
			require.True(t, (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f'))
		}
		require.False(t, seen[id])
		seen[id] = true
	}
}

func TestRetentionCanReplaceWith(t *testing.T) {
	now := time.Now().UTC()
	until := now.Add(24 * time.Hour)

	compliance := &Retention{Mode: RetentionCompliance, RetainUntil: until}

	// Compliance may be extended but never shortened, removed, or downgraded.
	require.True(t, compliance.CanReplaceWith(&Retention{Mode: RetentionCompliance, RetainUntil: until.Add(time.Hour)}, now, false))
	require.False(t, compliance.CanReplaceWith(&Retention{Mode: RetentionCompliance, RetainUntil: until.Add(-time.Hour)}, now, false))
	require.False(t, compliance.CanReplaceWith(&Retention{Mode: RetentionGovernance, RetainUntil: until.Add(time.Hour)}, now, false))
	require.False(t, compliance.CanReplaceWith(nil, now, true))

	governance := &Retention{Mode: RetentionGovernance, RetainUntil: until}

	// Governance may be loosened only with bypass asserted.
	require.False(t, governance.CanReplaceWith(nil, now, false))
	require.True(t, governance.CanReplaceWith(nil, now, true))
	require.False(t, governance.CanReplaceWith(&Retention{Mode: RetentionGovernance, RetainUntil: until.Add(-time.Hour)}, now, false))
	require.True(t, governance.CanReplaceWith(&Retention{Mode: RetentionGovernance, RetainUntil: until.Add(time.Hour)}, now, false))

	// Expired retention imposes nothing.
	expired := &Retention{Mode: RetentionCompliance, RetainUntil: now.Add(-time.Hour)}
	require.True(t, expired.CanReplaceWith(nil, now, false))
}

func TestBlocksPermanentDelete(t *testing.T) {
	now := time.Now().UTC()

	dm := &Entry{IsDeleteMarker: true, LegalHold: true}
	require.False(t, dm.BlocksPermanentDelete(now, false))

	held := &Entry{LegalHold: true}
	require.True(t, held.BlocksPermanentDelete(now, true))

	compliance := &Entry{Retention: &Retention{Mode: RetentionCompliance, RetainUntil: now.Add(time.Hour)}}
	require.True(t, compliance.BlocksPermanentDelete(now, true))

	governance := &Entry{Retention: &Retention{Mode: RetentionGovernance, RetainUntil: now.Add(time.Hour)}}
	require.True(t, governance.BlocksPermanentDelete(now, false))
	require.False(t, governance.BlocksPermanentDelete(now, true))

	// Expired retention with a lingering legal hold still blocks.
	expiredHeld := &Entry{
		LegalHold: true,
		Retention: &Retention{Mode: RetentionCompliance, RetainUntil: now.Add(-time.Hour)},
	}
	require.True(t, expiredHeld.BlocksPermanentDelete(now, false))
	expiredHeld.LegalHold = false
	require.False(t, expiredHeld.BlocksPermanentDelete(now, false))
}

func TestDefaultRetentionValidate(t *testing.T) {
	require.NoError(t, DefaultRetention{Mode: RetentionGovernance, Days: 30}.Validate())
	require.NoError(t, DefaultRetention{Mode: RetentionCompliance, Years: 1}.Validate())
	require.Error(t, DefaultRetention{Mode: RetentionGovernance}.Validate())
	require.Error(t, DefaultRetention{Mode: RetentionGovernance, Days: 1, Years: 1}.Validate())
	require.Error(t, DefaultRetention{Mode: "INVALID", Days: 1}.Validate())
}

func TestErrorCodes(t *testing.T) {
	require.Equal(t, CodeNoSuchBucket, Code(ErrBucketNotFound))
	require.Equal(t, CodeNoSuchKey, Code(ErrObjectNotFound))
	require.Equal(t, CodeNoSuchVersion, Code(ErrVersionNotFound))
	require.Equal(t, CodeAccessDenied, Code(ErrAccessDenied))
	require.Equal(t, CodeInternalError, Code(ErrInternal))
	require.Equal(t, CodeNoSuchBucket, Code(NewDomainError(ErrBucketNotFound, "lookup", "vb")))

	require.Equal(t, 404, HTTPStatus(CodeNoSuchKey))
	require.Equal(t, 409, HTTPStatus(CodeBucketNotEmpty))
	require.Equal(t, 405, HTTPStatus(CodeMethodNotAllowed))
	require.Equal(t, 304, HTTPStatus(CodeNotModified))
	require.Equal(t, 403, HTTPStatus(CodeAccessDenied))
	require.Equal(t, 400, HTTPStatus(CodeInvalidRetention))
}
