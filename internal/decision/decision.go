// Package decision turns a matcher result into one of the four plan-item
// dispositions, applying the minimum-confidence threshold and
// collecting any blocking issues that keep an otherwise-matched item
// out of AUTO_UPLOAD (spec §4.8).
package decision

import "github.com/cometlocal/cometlocal/internal/model"

// DefaultMinConfidence is used when a caller does not supply its own
// threshold (matching.min_confidence is unset, config.applyDefaults
// picks the same value).
const DefaultMinConfidence = 0.80

// Input is everything the decision needs about one matched or
// unmatched pending requirement.
type Input struct {
	Matched       *model.Document
	Confidence    float64
	ReasonCode    string
	MinConfidence float64           // threshold a match must clear for AUTO_UPLOAD; 0 means DefaultMinConfidence
	PresetForced  *model.PackAction // set when an applicable preset (spec §4.10) forces an action
}

// Decide implements spec §4.8: NO_MATCH when nothing survived the
// matcher, REVIEW_REQUIRED when a match exists but confidence falls
// short of the threshold, AUTO_UPLOAD otherwise, and DO_NOT_UPLOAD
// when a preset explicitly forces a skip.
func Decide(in Input) (model.Decision, string, []string) {
	if in.PresetForced != nil && *in.PresetForced == model.ActionSkip {
		return model.DecisionDoNotUpload, "", nil
	}

	if in.Matched == nil {
		return model.DecisionNoMatch, in.ReasonCode, nil
	}

	threshold := in.MinConfidence
	if threshold == 0 {
		threshold = DefaultMinConfidence
	}

	var blocking []string
	if in.Confidence < threshold {
		blocking = append(blocking, "confidence_below_threshold")
	}

	if in.PresetForced != nil && *in.PresetForced == model.ActionForceUpload {
		return model.DecisionAutoUpload, "", nil
	}

	if len(blocking) > 0 {
		return model.DecisionReviewRequired, "", blocking
	}

	return model.DecisionAutoUpload, "", nil
}
