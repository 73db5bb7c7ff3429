package render

// The stream-copy versus re-encode policy is kept as an explicit decision
// table so it can be tested independently of the pipeline.

// ExtractReencode decides whether a single keep-segment extraction must
// re-encode. Stream-copy is constrained to keyframe boundaries, so very
// short segments and overlay jobs take the slow path.
func ExtractReencode(overlays bool, segmentDuration, minCopySegment float64) bool {
	if overlays {
		return true
	}
	return segmentDuration < minCopySegment
}

// ConcatReencode decides whether the final concatenation must re-encode.
// Overlay compositing always re-encodes; joining multiple segments or any
// segment below the copy threshold makes stream-copy unreliable; mixed
// source formats force normalization.
func ConcatReencode(overlays bool, segmentCount int, shortestSegment, minCopySegment float64, mixedFormats bool) bool {
	switch {
	case overlays:
		return true
	case segmentCount > 1:
		return true
	case shortestSegment < minCopySegment:
		return true
	case mixedFormats:
		return true
	}
	return false
}
