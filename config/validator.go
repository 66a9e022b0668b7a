package config

import (
	stderrors "errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"

	"github.com/input-output-hk/catalyst-forge-libs/xfer/errors"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterStructValidation(endpointStructLevel, Endpoint{})
	})
	return validate
}

// endpointStructLevel checks the fields each endpoint type needs.
func endpointStructLevel(sl validator.StructLevel) {
	ep := sl.Current().Interface().(Endpoint)

	require := func(value, field string) {
		if value == "" {
			sl.ReportError(value, field, field, "required_for_type", ep.Type)
		}
	}

	switch ep.Type {
	case TypeS3, TypeGCS:
		require(ep.Bucket, "Bucket")
	case TypeMinio:
		require(ep.Bucket, "Bucket")
		require(ep.URL, "URL")
	case TypeStorj:
		require(ep.Bucket, "Bucket")
		require(ep.AccessGrant, "AccessGrant")
	case TypeFS:
		require(ep.Root, "Root")
	}
}

// Validate checks cfg and reports every violation in one error.
func Validate(cfg *Config) error {
	var problems []string

	if err := getValidator().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !stderrors.As(err, &verrs) {
			return errors.NewError("validate config", errors.Wrap(errors.ErrInvalidInput, err))
		}
		for _, fe := range verrs {
			problems = append(problems, describe(fe))
		}
	}

	if cfg.PartSize != "" {
		if _, err := PartSizeBytes(cfg.PartSize); err != nil {
			problems = append(problems, err.Error())
		}
	}

	if len(problems) > 0 {
		return errors.NewError("validate config", errors.ErrInvalidInput).
			WithMessage(strings.Join(problems, "; "))
	}
	return nil
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "required_for_type":
		return fmt.Sprintf("%s is required for %s endpoints", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	case "gtefield":
		return fmt.Sprintf("%s must not be less than %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s=%s (value %v)", field, fe.Tag(), fe.Param(), fe.Value())
	}
}

// PartSizeBytes parses a human-readable part size such as "100MiB" or "64MB".
func PartSizeBytes(s string) (int64, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("part_size %q: %w", s, err)
	}
	if n == 0 || n > 1<<40 {
		return 0, fmt.Errorf("part_size %q out of range", s)
	}
	return int64(n), nil
}
