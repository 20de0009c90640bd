// Package errcode classifies a raw execution failure into the
// {error_code, transient, retry_after_ms} shape the retry policy and
// run summary both key off of (spec §4.12).
package errcode

import (
	"time"

	"github.com/cometlocal/cometlocal/internal/cometerr"
)

// Phase identifies which executor state machine phase raised the error.
type Phase string

const (
	PhaseRelocate Phase = "relocate"
	PhaseOpen     Phase = "open"
	PhaseUpload   Phase = "upload"
	PhaseVerify   Phase = "verify"
	PhaseAny      Phase = "any"
)

// Exception is a coarse categorization of the raw failure the executor
// observed, independent of phase.
type Exception string

const (
	ExceptionKeyAbsentAfterScan   Exception = "key_absent_after_full_scan"
	ExceptionTimeoutOpeningForm   Exception = "timeout_opening_detail_form"
	ExceptionNetworkOrTimeout     Exception = "network_or_timeout"
	ExceptionListFailedToRefresh Exception = "list_failed_to_refresh"
	ExceptionGridParseMismatch    Exception = "grid_parse_mismatch"
	ExceptionSessionLost          Exception = "session_lost"
)

// Classification is the output of Classify: what the retry policy and
// run summary both consume.
type Classification struct {
	ErrorCode     string
	Transient     bool
	MaxRetries    int
	RetryAfterMS  int
}

// SingleRetryErrorCodes get exactly 1 retry regardless of the default
// for their phase when classified as transient (spec §4.12); a
// non-transient classification of the same code keeps its own
// MaxRetries.
var SingleRetryErrorCodes = map[string]bool{
	cometerr.CodeItemNotFoundBeforeUpload: true,
	cometerr.CodeTimeoutUpload:            true,
}

// Context carries the state the classifier needs beyond phase+exception:
// whether the upload network call had already been attempted when the
// failure occurred (spec §4.12: "network/timeout AND !upload_attempted"
// vs "... AND upload_attempted").
type Context struct {
	UploadAttempted bool
}

// Classify implements the phase/exception table of spec §4.12.
func Classify(phase Phase, exception Exception, ctx Context) Classification {
	switch {
	case exception == ExceptionGridParseMismatch:
		return Classification{ErrorCode: cometerr.CodeGridParseMismatch, Transient: false}
	case exception == ExceptionSessionLost:
		return Classification{ErrorCode: cometerr.CodeSessionLost, Transient: false}
	}

	switch phase {
	case PhaseRelocate:
		if exception == ExceptionKeyAbsentAfterScan {
			return Classification{ErrorCode: cometerr.CodeItemNotFoundBeforeUpload, Transient: true, MaxRetries: 1, RetryAfterMS: 2000}
		}
	case PhaseOpen:
		if exception == ExceptionTimeoutOpeningForm {
			return Classification{ErrorCode: cometerr.CodeTimeoutOpenDetail, Transient: true, MaxRetries: 2, RetryAfterMS: 3000}
		}
	case PhaseUpload:
		if exception == ExceptionNetworkOrTimeout {
			if ctx.UploadAttempted {
				return Classification{ErrorCode: cometerr.CodeTimeoutUpload, Transient: false, MaxRetries: 0}
			}
			return Classification{ErrorCode: cometerr.CodeTimeoutUpload, Transient: true, MaxRetries: 1, RetryAfterMS: 3000}
		}
	case PhaseVerify:
		if exception == ExceptionListFailedToRefresh {
			return Classification{ErrorCode: cometerr.CodeVerifyListRefreshFailed, Transient: true, MaxRetries: 2, RetryAfterMS: 2000}
		}
	}

	// Unrecognized combination: treat as non-transient so the
	// executor never retries a failure it can't classify.
	return Classification{ErrorCode: cometerr.CodeSessionLost, Transient: false}
}

// MaxRetriesFor applies the SingleRetryErrorCodes override on top of a
// transient classification's own MaxRetries. Non-transient
// classifications (e.g. timeout_upload after the upload was attempted)
// keep their own MaxRetries.
func MaxRetriesFor(c Classification) int {
	if !c.Transient {
		return c.MaxRetries
	}
	if SingleRetryErrorCodes[c.ErrorCode] {
		return 1
	}
	return c.MaxRetries
}

// Backoff returns the retry_after_ms duration as a time.Duration.
func Backoff(c Classification) time.Duration {
	return time.Duration(c.RetryAfterMS) * time.Millisecond
}
