package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"
)

func TestErrorMessageWithCause(t *testing.T) {
	cause := fmt.Errorf("underlying problem")
	err := NewFileError("cannot open file", cause)

	expected := "file error: cannot open file (caused by: underlying problem)"
	if err.Error() != expected {
		t.Errorf("Expected %q, got %q", expected, err.Error())
	}
}

func TestErrorMessageWithoutCause(t *testing.T) {
	err := NewValidationError("track number out of range", nil)

	expected := "validation error: track number out of range"
	if err.Error() != expected {
		t.Errorf("Expected %q, got %q", expected, err.Error())
	}
}

func TestUnwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := NewFormatError("bad header", cause)

	if !stdErrors.Is(err, cause) {
		t.Error("Expected errors.Is to find the cause")
	}
	if err.Unwrap() != cause {
		t.Errorf("Expected Unwrap to return the cause, got %v", err.Unwrap())
	}
}

func TestUnwrapNil(t *testing.T) {
	err := NewExtractionError("nothing to extract", nil)
	if err.Unwrap() != nil {
		t.Errorf("Expected nil, got %v", err.Unwrap())
	}
}

func TestWithContext(t *testing.T) {
	err := NewExtractionError("demux failed", nil).
		WithContext("track", 3).
		WithContext("file", "movie.mkv")

	if err.Context["track"] != 3 {
		t.Errorf("Expected track context 3, got %v", err.Context["track"])
	}
	if err.Context["file"] != "movie.mkv" {
		t.Errorf("Expected file context, got %v", err.Context["file"])
	}
}

func TestConstructorTypes(t *testing.T) {
	tests := []struct {
		name     string
		err      *DemuxError
		expected ErrorType
	}{
		{name: "validation", err: NewValidationError("m", nil), expected: ErrorTypeValidation},
		{name: "file", err: NewFileError("m", nil), expected: ErrorTypeFile},
		{name: "format", err: NewFormatError("m", nil), expected: ErrorTypeFormat},
		{name: "extraction", err: NewExtractionError("m", nil), expected: ErrorTypeExtraction},
		{name: "configuration", err: NewConfigurationError("m", nil), expected: ErrorTypeConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Type != tt.expected {
				t.Errorf("Expected type %q, got %q", tt.expected, tt.err.Type)
			}
		})
	}
}

func TestErrorsAs(t *testing.T) {
	var target *DemuxError
	wrapped := fmt.Errorf("outer: %w", NewFormatError("not matroska", nil))

	if !stdErrors.As(wrapped, &target) {
		t.Fatal("Expected errors.As to match DemuxError")
	}
	if target.Type != ErrorTypeFormat {
		t.Errorf("Expected format type, got %q", target.Type)
	}
}
