// Package document defines the loan application's document taxonomy and
// the client-side file checks that run before anything touches the
// network.
package document

import (
	"fmt"
	"os"

	"github.com/gabriel-vasile/mimetype"
)

// Type identifies one of the required application documents.
type Type string

const (
	TypeAadhaar Type = "aadhaar"
	TypePan     Type = "pan"
	TypeSalary  Type = "salary"
)

// Required returns the document types an application must carry, in
// presentation order.
func Required() []Type {
	return []Type{TypeAadhaar, TypePan, TypeSalary}
}

// Label returns the human-readable name for a document type.
func (t Type) Label() string {
	switch t {
	case TypeAadhaar:
		return "Aadhaar Card"
	case TypePan:
		return "PAN Card"
	case TypeSalary:
		return "Salary Slip"
	}
	return string(t)
}

// ParseType maps user input to a document type.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeAadhaar, TypePan, TypeSalary:
		return Type(s), nil
	}
	return "", fmt.Errorf("unknown document type %q (expected aadhaar, pan, or salary)", s)
}

// MaxFileSize is the upload size ceiling enforced locally.
const MaxFileSize = 5 << 20 // 5MB

// acceptedMIMEs are the content types the backend will look at. Detection
// is by content sniffing, not filename extension.
var acceptedMIMEs = []string{"image/jpeg", "image/png", "application/pdf"}

// ValidationError is a local pre-flight rejection. It never reaches the
// transport adapter.
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

// ValidateFile checks size and content type of a candidate upload.
func ValidateFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return &ValidationError{Path: path, Reason: "file not readable"}
	}
	if info.IsDir() {
		return &ValidationError{Path: path, Reason: "is a directory"}
	}
	if info.Size() > MaxFileSize {
		return &ValidationError{Path: path, Reason: fmt.Sprintf("file too large (%.1f MB, maximum 5 MB)", float64(info.Size())/(1<<20))}
	}

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return &ValidationError{Path: path, Reason: "file not readable"}
	}
	for _, accepted := range acceptedMIMEs {
		if mtype.Is(accepted) {
			return nil
		}
	}
	return &ValidationError{Path: path, Reason: fmt.Sprintf("unsupported file type %s (accepted: JPG, PNG, PDF)", mtype.String())}
}
