// Package errors defines the failure kinds of the packaging pipeline and how they are classified.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Kind identifies a pipeline failure.
type Kind string

const (
	KindSourceUnreadable             Kind = "SOURCE_UNREADABLE"
	KindVariantEncodeFailed          Kind = "VARIANT_ENCODE_FAILED"
	KindStoreUnavailable             Kind = "STORE_UNAVAILABLE"
	KindPermissionDenied             Kind = "PERMISSION_DENIED"
	KindConcurrentProcessingRejected Kind = "CONCURRENT_PROCESSING_REJECTED"
	KindClaimLost                    Kind = "CLAIM_LOST"
	KindInvalidConfig                Kind = "INVALID_CONFIG"
	KindAssetNotFound                Kind = "ASSET_NOT_FOUND"
	KindInternal                     Kind = "INTERNAL"
)

// Severity indicates how an error should be handled by callers.
type Severity string

const (
	SeverityRetryable Severity = "retryable"
	SeverityFatal     Severity = "fatal"
)

func (s Severity) IsRetryable() bool {
	return s == SeverityRetryable
}

func (s Severity) IsFatal() bool {
	return s == SeverityFatal
}

// Stage names the pipeline phase an error came from.
type Stage string

const (
	StageClaim   Stage = "claim"
	StageProbe   Stage = "probe"
	StageEncode  Stage = "encode"
	StagePublish Stage = "publish"
	StagePersist Stage = "persist"
)

// PipelineError is the error type returned by encoder, publisher and orchestrator.
type PipelineError struct {
	Kind     Kind
	Message  string
	Severity Severity
	Stage    Stage
	AssetID  string
	Variant  string
	Cause    error
}

func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

func (e *PipelineError) IsRetryable() bool {
	return e.Severity.IsRetryable()
}

func (e *PipelineError) IsFatal() bool {
	return e.Severity.IsFatal()
}

// Is matches on Kind so sentinel comparisons work through wrapping.
func (e *PipelineError) Is(target error) bool {
	other, ok := target.(*PipelineError)
	if !ok {
		return false
	}
	return other.Kind == e.Kind && other.Message == "" && other.Cause == nil
}

// WithAsset records the asset the error belongs to.
func (e *PipelineError) WithAsset(assetID string) *PipelineError {
	e.AssetID = assetID
	return e
}

// WithStage records the stage the error happened in.
func (e *PipelineError) WithStage(stage Stage) *PipelineError {
	e.Stage = stage
	return e
}

// Sentinels for errors.Is comparisons.
var (
	ErrSourceUnreadable             = &PipelineError{Kind: KindSourceUnreadable}
	ErrVariantEncodeFailed          = &PipelineError{Kind: KindVariantEncodeFailed}
	ErrStoreUnavailable             = &PipelineError{Kind: KindStoreUnavailable}
	ErrPermissionDenied             = &PipelineError{Kind: KindPermissionDenied}
	ErrConcurrentProcessingRejected = &PipelineError{Kind: KindConcurrentProcessingRejected}
	ErrClaimLost                    = &PipelineError{Kind: KindClaimLost}
	ErrAssetNotFound                = &PipelineError{Kind: KindAssetNotFound}
	ErrInvalidConfig                = &PipelineError{Kind: KindInvalidConfig}
)

func newError(kind Kind, severity Severity, stage Stage, message string, cause error) *PipelineError {
	return &PipelineError{
		Kind:     kind,
		Message:  message,
		Severity: severity,
		Stage:    stage,
		Cause:    cause,
	}
}

// SourceUnreadable reports a source that cannot be probed or decoded.
func SourceUnreadable(message string, cause error) *PipelineError {
	return newError(KindSourceUnreadable, SeverityFatal, StageProbe, message, cause)
}

// VariantEncodeFailed reports a failed quality rung; the whole asset fails with it.
func VariantEncodeFailed(variant string, cause error) *PipelineError {
	e := newError(KindVariantEncodeFailed, SeverityFatal, StageEncode, fmt.Sprintf("encoding variant %s failed", variant), cause)
	e.Variant = variant
	return e
}

// StoreUnavailable reports a transient object store failure.
func StoreUnavailable(message string, cause error) *PipelineError {
	return newError(KindStoreUnavailable, SeverityRetryable, StagePublish, message, cause)
}

// PermissionDenied reports a credential or bucket policy rejection.
func PermissionDenied(message string, cause error) *PipelineError {
	return newError(KindPermissionDenied, SeverityFatal, StagePublish, message, cause)
}

// ConcurrentProcessingRejected reports that another run for the asset is in flight.
func ConcurrentProcessingRejected(assetID string) *PipelineError {
	e := newError(KindConcurrentProcessingRejected, SeverityFatal, StageClaim, fmt.Sprintf("asset %s is already processing", assetID), nil)
	e.AssetID = assetID
	return e
}

// ClaimLost reports that a run no longer owns its asset: the claim expired and
// was taken over, or the asset left processing underneath it.
func ClaimLost(assetID string) *PipelineError {
	e := newError(KindClaimLost, SeverityFatal, StagePersist, fmt.Sprintf("asset %s is no longer claimed by this run", assetID), nil)
	e.AssetID = assetID
	return e
}

// AssetNotFound reports an unknown asset id.
func AssetNotFound(assetID string, cause error) *PipelineError {
	e := newError(KindAssetNotFound, SeverityFatal, StageClaim, fmt.Sprintf("asset %s not found", assetID), cause)
	e.AssetID = assetID
	return e
}

// InvalidConfig reports a rejected encoding configuration.
func InvalidConfig(message string, cause error) *PipelineError {
	return newError(KindInvalidConfig, SeverityFatal, StageClaim, message, cause)
}

// Internal wraps an unexpected failure at a stage.
func Internal(stage Stage, message string, cause error) *PipelineError {
	return newError(KindInternal, SeverityFatal, stage, message, cause)
}

// KindOf returns the pipeline kind in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}

// IsRetryable reports whether err is a retryable pipeline error.
func IsRetryable(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.IsRetryable()
	}
	return false
}

// Classify converts an arbitrary error from a stage into a PipelineError.
// Deadlines and cancellations become fatal errors of the stage's own kind.
func Classify(stage Stage, err error) *PipelineError {
	if err == nil {
		return nil
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		if pe.Stage == "" {
			pe.Stage = stage
		}
		return pe
	}
	deadline := errors.Is(err, context.DeadlineExceeded)
	cancelled := errors.Is(err, context.Canceled)
	switch stage {
	case StageProbe:
		return SourceUnreadable("source could not be read", err)
	case StageEncode:
		if deadline {
			return newError(KindVariantEncodeFailed, SeverityFatal, stage, "encoding deadline exceeded", err)
		}
		if cancelled {
			return newError(KindVariantEncodeFailed, SeverityFatal, stage, "encoding cancelled", err)
		}
		return newError(KindVariantEncodeFailed, SeverityFatal, stage, "encoding failed", err)
	case StagePublish:
		if deadline {
			return newError(KindStoreUnavailable, SeverityFatal, stage, "publish deadline exceeded", err)
		}
		if cancelled {
			return newError(KindStoreUnavailable, SeverityFatal, stage, "publish cancelled", err)
		}
		return StoreUnavailable("object store request failed", err)
	default:
		return Internal(stage, "unexpected failure", err)
	}
}
