package gcp

import (
	"errors"
	"net/http"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// statusOf extracts a comparable failure class from a Google API error,
// whether it arrived over REST (googleapi.Error) or gRPC (status.Status).
func statusOf(err error) (httpCode int, grpcCode codes.Code) {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code, codes.Unknown
	}
	if st, ok := status.FromError(err); ok {
		return 0, st.Code()
	}
	return 0, codes.Unknown
}

// IsRateLimited reports whether the provider signalled throttling.
func IsRateLimited(err error) bool {
	httpCode, grpcCode := statusOf(err)
	return httpCode == http.StatusTooManyRequests || grpcCode == codes.ResourceExhausted
}

// IsInvalidRequest reports a malformed-request rejection. These are
// terminal: retrying the identical request cannot succeed.
func IsInvalidRequest(err error) bool {
	httpCode, grpcCode := statusOf(err)
	return httpCode == http.StatusBadRequest || grpcCode == codes.InvalidArgument
}

// IsTerminalStoreFailure reports store failures retrying cannot fix:
// a missing destination bucket/object or denied access.
func IsTerminalStoreFailure(err error) bool {
	httpCode, grpcCode := statusOf(err)
	switch httpCode {
	case http.StatusNotFound, http.StatusForbidden:
		return true
	}
	switch grpcCode {
	case codes.NotFound, codes.PermissionDenied:
		return true
	}
	return false
}
