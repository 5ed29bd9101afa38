package audio

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for the caller.
type Kind int

const (
	// KindInternal is a defect on our side.
	KindInternal Kind = iota
	// KindClientInput is bad input; resubmitting it unchanged will fail again.
	KindClientInput
	// KindTransient is a network or upstream failure; the caller may retry.
	KindTransient
	// KindExtraction means every acquisition strategy ran out.
	KindExtraction
)

func (k Kind) String() string {
	switch k {
	case KindClientInput:
		return "client_input"
	case KindTransient:
		return "transient"
	case KindExtraction:
		return "extraction"
	default:
		return "internal"
	}
}

var (
	ErrEmptyInput             = errors.New("empty audio input")
	ErrEmptyDecode            = errors.New("audio file appears to be empty")
	ErrInvalidURL             = errors.New("invalid YouTube URL")
	ErrVideoTooLong           = errors.New("video too long")
	ErrUndecodable            = errors.New("undecodable audio")
	ErrUnsupportedContentType = errors.New("file must be an audio file")
	ErrMetadataUnavailable    = errors.New("could not fetch video metadata")
	ErrExtractionFailed       = errors.New("could not extract audio from video")
)

// Error carries a Kind alongside the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds an *Error.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func ClientInput(op string, err error) *Error { return NewError(KindClientInput, op, err) }
func Transient(op string, err error) *Error   { return NewError(KindTransient, op, err) }
func Extraction(op string, err error) *Error  { return NewError(KindExtraction, op, err) }

// KindOf returns the Kind of the first *Error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsClientInput reports whether err should be surfaced as a bad request.
func IsClientInput(err error) bool {
	return err != nil && KindOf(err) == KindClientInput
}
