package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-engine/engine"
)

// Handler serves the gateway's JSON endpoints by delegating to the engine.
type Handler struct {
	engine      *engine.Engine
	maxBodySize int64
	logger      zerolog.Logger
}

// NewHandler creates a new gateway handler.
func NewHandler(eng *engine.Engine, maxBodySize int64, logger zerolog.Logger) *Handler {
	return &Handler{
		engine:      eng,
		maxBodySize: maxBodySize,
		logger:      logger.With().Str("component", "gateway").Logger(),
	}
}

// errorBody is the JSON error envelope.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError maps an engine error onto the wire.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	code := engine.ErrorCode(err)
	status := engine.HTTPStatus(code)
	if status == http.StatusNotModified {
		w.WriteHeader(status)
		return
	}
	writeJSON(w, status, errorBody{Code: code, Message: err.Error()})
}

// writeJSON serializes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// objectKey extracts the wildcard object key from the route.
func objectKey(r *http.Request) string {
	key := chi.URLParam(r, "*")
	return strings.TrimSuffix(key, "/")
}

// conditionsFrom parses conditional headers.
func conditionsFrom(r *http.Request) *engine.Conditions {
	cond := &engine.Conditions{}
	if v := r.Header.Get("If-Match"); v != "" {
		cond.IfMatch = splitHeaderList(v)
	}
	if v := r.Header.Get("If-None-Match"); v != "" {
		cond.IfNoneMatch = splitHeaderList(v)
	}
	if v := r.Header.Get("If-Modified-Since"); v != "" {
		if t, err := http.ParseTime(v); err == nil {
			cond.IfModifiedSince = &t
		}
	}
	if v := r.Header.Get("If-Unmodified-Since"); v != "" {
		if t, err := http.ParseTime(v); err == nil {
			cond.IfUnmodifiedSince = &t
		}
	}
	if len(cond.IfMatch) == 0 && len(cond.IfNoneMatch) == 0 &&
		cond.IfModifiedSince == nil && cond.IfUnmodifiedSince == nil {
		return nil
	}
	return cond
}

// splitHeaderList splits a comma-separated header value.
func splitHeaderList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// =============================================================================
// Bucket Endpoints
// =============================================================================

// Health reports engine liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Health(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Code: "Unhealthy", Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GCStats reports the garbage collector's backlog.
func (h *Handler) GCStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.GCStats(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ListBuckets lists all buckets.
func (h *Handler) ListBuckets(w http.ResponseWriter, r *http.Request) {
	buckets, err := h.engine.ListBuckets(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"buckets": buckets})
}

// CreateBucket creates a bucket.
func (h *Handler) CreateBucket(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "bucket")
	objectLock := r.URL.Query().Get("object_lock") == "true"

	if err := h.engine.CreateBucket(r.Context(), name, objectLock); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"bucket": name})
}

// DeleteBucket deletes an empty bucket.
func (h *Handler) DeleteBucket(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DeleteBucket(r.Context(), chi.URLParam(r, "bucket")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HeadBucket checks bucket existence.
func (h *Handler) HeadBucket(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.HeadBucket(r.Context(), chi.URLParam(r, "bucket")); err != nil {
		w.WriteHeader(engine.HTTPStatus(engine.ErrorCode(err)))
		return
	}
	w.WriteHeader(http.StatusOK)
}

// versioningRequest is the PutVersioning payload.
type versioningRequest struct {
	State     string `json:"state"`
	MFADelete *bool  `json:"mfa_delete,omitempty"`
}

// PutVersioning sets the bucket versioning state.
func (h *Handler) PutVersioning(w http.ResponseWriter, r *http.Request) {
	var req versioningRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "MalformedJSON", Message: err.Error()})
		return
	}

	err := h.engine.PutBucketVersioning(r.Context(), chi.URLParam(r, "bucket"), engine.VersioningState(req.State), req.MFADelete)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetVersioning returns the bucket versioning state.
func (h *Handler) GetVersioning(w http.ResponseWriter, r *http.Request) {
	info, err := h.engine.GetBucketVersioning(r.Context(), chi.URLParam(r, "bucket"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// PutObjectLockConfig stores the bucket Object Lock configuration.
func (h *Handler) PutObjectLockConfig(w http.ResponseWriter, r *http.Request) {
	var cfg engine.ObjectLockConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "MalformedJSON", Message: err.Error()})
		return
	}

	if err := h.engine.PutObjectLockConfiguration(r.Context(), chi.URLParam(r, "bucket"), cfg); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetObjectLockConfig returns the bucket Object Lock configuration.
func (h *Handler) GetObjectLockConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.engine.GetObjectLockConfiguration(r.Context(), chi.URLParam(r, "bucket"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// =============================================================================
// Object Endpoints
// =============================================================================

// PutObject stores an object from the request body.
func (h *Handler) PutObject(w http.ResponseWriter, r *http.Request) {
	body := io.Reader(r.Body)
	if h.maxBodySize > 0 {
		body = io.LimitReader(r.Body, h.maxBodySize)
	}

	metadata := map[string]string{}
	for name, values := range r.Header {
		lower := strings.ToLower(name)
		if strings.HasPrefix(lower, "x-meta-") && len(values) > 0 {
			metadata[strings.TrimPrefix(lower, "x-meta-")] = values[0]
		}
	}

	res, err := h.engine.PutObject(r.Context(), engine.PutObjectInput{
		Bucket:      chi.URLParam(r, "bucket"),
		Key:         objectKey(r),
		Body:        body,
		Size:        r.ContentLength,
		ContentType: r.Header.Get("Content-Type"),
		Metadata:    metadata,
		Conditions:  conditionsFrom(r),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("ETag", `"`+res.ETag+`"`)
	writeJSON(w, http.StatusOK, res)
}

// GetObject streams an object body.
func (h *Handler) GetObject(w http.ResponseWriter, r *http.Request) {
	obj, err := h.engine.GetObject(r.Context(), engine.GetObjectInput{
		Bucket:     chi.URLParam(r, "bucket"),
		Key:        objectKey(r),
		VersionID:  r.URL.Query().Get("version_id"),
		Conditions: conditionsFrom(r),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	defer obj.Body.Close()

	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(obj.ContentLength, 10))
	w.Header().Set("ETag", `"`+obj.ETag+`"`)
	w.Header().Set("Last-Modified", obj.LastModified.UTC().Format(http.TimeFormat))
	w.Header().Set("X-Version-Id", obj.VersionID)
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, obj.Body); err != nil {
		h.logger.Error().Err(err).Msg("failed to stream object body")
	}
}

// HeadObject returns object metadata in headers.
func (h *Handler) HeadObject(w http.ResponseWriter, r *http.Request) {
	obj, err := h.engine.HeadObject(r.Context(), engine.GetObjectInput{
		Bucket:     chi.URLParam(r, "bucket"),
		Key:        objectKey(r),
		VersionID:  r.URL.Query().Get("version_id"),
		Conditions: conditionsFrom(r),
	})
	if err != nil {
		w.WriteHeader(engine.HTTPStatus(engine.ErrorCode(err)))
		return
	}

	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(obj.ContentLength, 10))
	w.Header().Set("ETag", `"`+obj.ETag+`"`)
	w.Header().Set("Last-Modified", obj.LastModified.UTC().Format(http.TimeFormat))
	w.Header().Set("X-Version-Id", obj.VersionID)
	w.WriteHeader(http.StatusOK)
}

// DeleteObject deletes an object or one version.
func (h *Handler) DeleteObject(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.DeleteObject(r.Context(), engine.DeleteObjectInput{
		Bucket:           chi.URLParam(r, "bucket"),
		Key:              objectKey(r),
		VersionID:        r.URL.Query().Get("version_id"),
		BypassGovernance: r.URL.Query().Get("bypass_governance") == "true",
		Conditions:       conditionsFrom(r),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// deleteObjectsRequest is the batch delete payload.
type deleteObjectsRequest struct {
	Objects          []engine.ObjectIdentifier `json:"objects"`
	Quiet            bool                      `json:"quiet"`
	BypassGovernance bool                      `json:"bypass_governance"`
}

// DeleteObjects deletes a batch of objects.
func (h *Handler) DeleteObjects(w http.ResponseWriter, r *http.Request) {
	var req deleteObjectsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "MalformedJSON", Message: err.Error()})
		return
	}

	res, err := h.engine.DeleteObjects(r.Context(), engine.DeleteObjectsInput{
		Bucket:           chi.URLParam(r, "bucket"),
		Objects:          req.Objects,
		Quiet:            req.Quiet,
		BypassGovernance: req.BypassGovernance,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListObjects lists the current view.
func (h *Handler) ListObjects(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	maxKeys, _ := strconv.Atoi(q.Get("max_keys"))

	res, err := h.engine.ListObjects(r.Context(), engine.ListObjectsInput{
		Bucket:            chi.URLParam(r, "bucket"),
		Prefix:            q.Get("prefix"),
		Delimiter:         q.Get("delimiter"),
		Marker:            q.Get("marker"),
		ContinuationToken: q.Get("continuation_token"),
		MaxKeys:           maxKeys,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListVersions lists all entries including delete markers.
func (h *Handler) ListVersions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	maxKeys, _ := strconv.Atoi(q.Get("max_keys"))

	res, err := h.engine.ListVersions(r.Context(), engine.ListVersionsInput{
		Bucket:          chi.URLParam(r, "bucket"),
		Prefix:          q.Get("prefix"),
		Delimiter:       q.Get("delimiter"),
		KeyMarker:       q.Get("key_marker"),
		VersionIDMarker: q.Get("version_id_marker"),
		MaxKeys:         maxKeys,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// =============================================================================
// Object Lock Endpoints
// =============================================================================

// retentionRequest is the PutRetention payload.
type retentionRequest struct {
	Mode        string     `json:"mode,omitempty"`
	RetainUntil *time.Time `json:"retain_until,omitempty"`
}

// PutRetention sets or clears retention on a version.
func (h *Handler) PutRetention(w http.ResponseWriter, r *http.Request) {
	var req retentionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "MalformedJSON", Message: err.Error()})
		return
	}

	var retention *engine.Retention
	if req.Mode != "" && req.RetainUntil != nil {
		retention = &engine.Retention{
			Mode:        engine.RetentionMode(req.Mode),
			RetainUntil: *req.RetainUntil,
		}
	}

	err := h.engine.PutObjectRetention(r.Context(), engine.PutRetentionInput{
		Bucket:           chi.URLParam(r, "bucket"),
		Key:              objectKey(r),
		VersionID:        r.URL.Query().Get("version_id"),
		Retention:        retention,
		BypassGovernance: r.URL.Query().Get("bypass_governance") == "true",
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetRetention returns the retention of a version.
func (h *Handler) GetRetention(w http.ResponseWriter, r *http.Request) {
	retention, err := h.engine.GetObjectRetention(r.Context(),
		chi.URLParam(r, "bucket"), objectKey(r), r.URL.Query().Get("version_id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if retention == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"retention": nil})
		return
	}
	writeJSON(w, http.StatusOK, retention)
}

// legalHoldRequest is the PutLegalHold payload.
type legalHoldRequest struct {
	Status string `json:"status"` // "ON" or "OFF"
}

// PutLegalHold toggles the legal hold on a version.
func (h *Handler) PutLegalHold(w http.ResponseWriter, r *http.Request) {
	var req legalHoldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "MalformedJSON", Message: err.Error()})
		return
	}

	err := h.engine.PutObjectLegalHold(r.Context(), engine.PutLegalHoldInput{
		Bucket:    chi.URLParam(r, "bucket"),
		Key:       objectKey(r),
		VersionID: r.URL.Query().Get("version_id"),
		Hold:      strings.EqualFold(req.Status, "ON"),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetLegalHold returns the legal hold state of a version.
func (h *Handler) GetLegalHold(w http.ResponseWriter, r *http.Request) {
	hold, err := h.engine.GetObjectLegalHold(r.Context(),
		chi.URLParam(r, "bucket"), objectKey(r), r.URL.Query().Get("version_id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	status := "OFF"
	if hold {
		status = "ON"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}
