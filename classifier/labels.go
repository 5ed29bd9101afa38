// Package classifier maps feature tensors to emotion labels.
package classifier

// DefaultLabel is returned whenever a clip is silent or cannot be scored.
const DefaultLabel = "neutral"

// DefaultLabels is the label order used when an artifact carries none.
var DefaultLabels = []string{"neutral", "calm", "happy", "sad", "angry", "fearful", "disgust", "surprised"}

// Labels is an ordered label set co-indexed with the network output.
type Labels []string

// Index returns the position of label, or -1.
func (l Labels) Index(label string) int {
	for i, v := range l {
		if v == label {
			return i
		}
	}
	return -1
}

// Contains reports whether label is in the set.
func (l Labels) Contains(label string) bool {
	return l.Index(label) >= 0
}

// Clone returns a copy callers may modify.
func (l Labels) Clone() Labels {
	return append(Labels(nil), l...)
}
