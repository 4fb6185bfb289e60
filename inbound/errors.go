package inbound

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"

	"github.com/capsight/go-valuation/core"
)

func inboundError(
	message string,
	category goerrors.Category,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func inboundWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	if source == nil {
		return inboundError(message, category, code, textCode, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func inboundUnauthorized(message string, metadata map[string]any) error {
	return inboundError(
		message,
		goerrors.CategoryAuth,
		http.StatusUnauthorized,
		core.ServiceErrorUnauthorized,
		metadata,
	)
}

func inboundValidation(message string, metadata map[string]any) error {
	return inboundError(
		message,
		goerrors.CategoryValidation,
		http.StatusBadRequest,
		core.ServiceErrorValidationFailed,
		metadata,
	)
}

func inboundInternal(source error, message string, metadata map[string]any) error {
	return inboundWrapError(
		source,
		goerrors.CategoryInternal,
		message,
		http.StatusInternalServerError,
		core.ServiceErrorInternal,
		metadata,
	)
}
