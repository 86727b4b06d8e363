package handler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"econscour/internal/daterange"
	"econscour/internal/pipeline"
	"econscour/internal/repository"
	"econscour/internal/retry"
	"econscour/internal/session"
	"econscour/internal/upstream"
	"econscour/pkg/apierror"
	"econscour/pkg/response"
)

// toAPIError maps domain errors to response envelopes.
func toAPIError(err error) *apierror.Error {
	var (
		apiErr    *apierror.Error
		rangeErr  *daterange.InvalidRangeError
		noData    *pipeline.NoDataError
		exhausted *retry.ExhaustedRetriesError
		fetchErr  *upstream.UpstreamFetchError
		malformed *upstream.MalformedPayloadError
	)

	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.As(err, &rangeErr):
		return apierror.ValidationError(rangeErr.Error(),
			apierror.FieldError{Field: "start", Message: rangeErr.Reason},
			apierror.FieldError{Field: "end", Message: rangeErr.Reason})
	case errors.Is(err, session.ErrLoadInProgress):
		return apierror.Conflict(err.Error())
	case errors.Is(err, session.ErrNotLoading):
		return apierror.Conflict(err.Error())
	case errors.Is(err, session.ErrNoResult):
		return apierror.NotFound("no data loaded yet; start a load first")
	case errors.Is(err, session.ErrNoSettingsStore):
		return apierror.ServiceUnavailable(err.Error())
	case errors.Is(err, repository.ErrInvalidSettings):
		return apierror.ValidationError(err.Error())
	case errors.As(err, &noData):
		return apierror.NotFound(noData.Error())
	case errors.Is(err, upstream.ErrMissingResource):
		return apierror.NotFound("resource not published upstream")
	case errors.Is(err, context.DeadlineExceeded):
		return apierror.GatewayTimeout("")
	case errors.As(err, &exhausted), errors.As(err, &fetchErr), errors.As(err, &malformed):
		return apierror.BadGateway(err.Error())
	}
	return apierror.InternalError("")
}

func writeError(w http.ResponseWriter, err error) {
	apiErr := toAPIError(err)
	if apiErr.StatusCode >= http.StatusInternalServerError {
		log.Printf("[Handler] %d %v", apiErr.StatusCode, err)
	}
	response.Error(w, apiErr)
}

func badParam(name string, err error) *apierror.Error {
	return apierror.ValidationError(fmt.Sprintf("invalid %s", name),
		apierror.FieldError{Field: name, Message: err.Error()})
}
