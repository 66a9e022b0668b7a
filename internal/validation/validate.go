package validation

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/dustin/go-humanize"

	"github.com/input-output-hk/catalyst-forge-libs/xfer/endpoint"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/plan"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/xfertypes"
)

// MaxObjectLength is the longest object identifier accepted, in bytes.
const MaxObjectLength = 1024

var mimePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9\-+.]*\/[a-zA-Z0-9][a-zA-Z0-9\-+.]*(\s*;.*)?$`)

// ValidateObject validates an endpoint-relative object identifier.
func ValidateObject(object string) error {
	if object == "" {
		return errors.NewError("validateObject", errors.ErrInvalidInput).
			WithMessage("object cannot be empty")
	}

	if len(object) > MaxObjectLength {
		return errors.NewError("validateObject", errors.ErrInvalidInput).
			WithObject(object).
			WithMessage(fmt.Sprintf("object cannot exceed %d bytes", MaxObjectLength))
	}

	if hasPathTraversal(object) {
		return errors.NewError("validateObject", errors.ErrInvalidInput).
			WithObject(object).
			WithMessage("object cannot contain path traversal sequences")
	}

	if hasControlCharacters(object) {
		return errors.NewError("validateObject", errors.ErrInvalidInput).
			WithObject(object).
			WithMessage("object cannot contain control characters")
	}

	return nil
}

// ValidateRequest validates the shape of a transfer request before any endpoint is contacted.
func ValidateRequest(req xfertypes.TransferRequest) error {
	if req.Source.Endpoint == "" || req.Destination.Endpoint == "" {
		return errors.NewError("validateRequest", errors.ErrInvalidInput).
			WithMessage("source and destination endpoints are required")
	}

	if err := ValidateObject(req.Source.Object); err != nil {
		return err
	}
	if err := ValidateObject(req.Destination.Object); err != nil {
		return err
	}

	if req.Source == req.Destination {
		return errors.NewError("validateRequest", errors.ErrInvalidInput).
			WithEndpoint(req.Source.Endpoint).
			WithObject(req.Source.Object).
			WithMessage("source and destination are the same object")
	}

	if req.PartSize < 0 {
		return errors.NewError("validateRequest", errors.ErrInvalidInput).
			WithMessage("part size cannot be negative")
	}

	return nil
}

// ValidatePlan checks a plan against a destination's multipart limits.
// A single-part plan is exempt from the minimum part size.
func ValidatePlan(p *plan.Plan, limits endpoint.PartLimits) error {
	if limits.MaxParts > 0 && p.Len() > limits.MaxParts {
		return errors.NewError("validatePlan", errors.ErrInvalidInput).
			WithMessage(fmt.Sprintf("%d parts exceed the destination limit of %d; increase the part size",
				p.Len(), limits.MaxParts))
	}

	// The first part is the largest; it is shorter than PartSize only in a single-part plan.
	first, _ := p.Part(1)
	if largest := first.Size(); limits.MaxSize > 0 && largest > limits.MaxSize {
		return errors.NewError("validatePlan", errors.ErrInvalidInput).
			WithMessage(fmt.Sprintf("part size %s exceeds the destination maximum of %s",
				humanize.IBytes(uint64(largest)), humanize.IBytes(uint64(limits.MaxSize))))
	}

	if limits.MinSize > 0 && p.Len() > 1 && p.PartSize() < limits.MinSize {
		return errors.NewError("validatePlan", errors.ErrInvalidInput).
			WithMessage(fmt.Sprintf("part size %s is below the destination minimum of %s",
				humanize.IBytes(uint64(p.PartSize())), humanize.IBytes(uint64(limits.MinSize))))
	}

	return nil
}

// ValidateMetadata validates metadata keys and values.
func ValidateMetadata(metadata map[string]string) error {
	for key, value := range metadata {
		if err := validateMetadataKey(key); err != nil {
			return err
		}
		if err := validateMetadataValue(value); err != nil {
			return err
		}
	}
	return nil
}

// ValidateContentType validates that a content type looks like a MIME type.
func ValidateContentType(contentType string) error {
	if contentType == "" {
		return nil
	}

	if !mimePattern.MatchString(contentType) {
		return errors.NewError("validateContentType", errors.ErrInvalidInput).
			WithMessage("content type must be a valid MIME type")
	}

	return nil
}

// hasPathTraversal checks for path traversal attempts in object identifiers.
// Only a whole ".." segment counts; "backup..tar" is an ordinary name.
func hasPathTraversal(object string) bool {
	for _, seg := range strings.FieldsFunc(object, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return true
		}
	}

	cleaned := filepath.Clean(object)
	if strings.HasPrefix(cleaned, "/") {
		return true
	}

	// Windows-style absolute paths
	return len(cleaned) >= 3 && cleaned[1] == ':' && (cleaned[2] == '\\' || cleaned[2] == '/')
}

func hasControlCharacters(s string) bool {
	for _, char := range s {
		if unicode.IsControl(char) {
			return true
		}
	}
	return false
}

func validateMetadataKey(key string) error {
	if key == "" {
		return errors.NewError("validateMetadata", errors.ErrInvalidInput).
			WithMessage("metadata key cannot be empty")
	}

	if len(key) > 128 {
		return errors.NewError("validateMetadata", errors.ErrInvalidInput).
			WithMessage("metadata key cannot exceed 128 characters")
	}

	for _, prefix := range []string{"aws:", "x-amz-", "x-goog-"} {
		if strings.HasPrefix(strings.ToLower(key), prefix) {
			return errors.NewError("validateMetadata", errors.ErrInvalidInput).
				WithMessage(fmt.Sprintf("metadata key cannot start with reserved prefix: %s", prefix))
		}
	}

	for _, char := range key {
		if char <= 32 || char > 126 {
			return errors.NewError("validateMetadata", errors.ErrInvalidInput).
				WithMessage("metadata key can only contain printable ASCII characters")
		}
	}

	return nil
}

func validateMetadataValue(value string) error {
	if len(value) > 2048 {
		return errors.NewError("validateMetadata", errors.ErrInvalidInput).
			WithMessage("metadata value cannot exceed 2048 characters")
	}

	for _, char := range value {
		if !unicode.IsPrint(char) && char != '\t' {
			return errors.NewError("validateMetadata", errors.ErrInvalidInput).
				WithMessage("metadata value can only contain printable characters")
		}
	}

	return nil
}
