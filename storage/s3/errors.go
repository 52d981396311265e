package s3

import (
	stderrors "errors"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/errors"
)

type httpStatusError interface {
	HTTPStatusCode() int
}

// isNotFound reports whether err is an S3 404.
func isNotFound(err error) bool {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	if stderrors.As(err, &nf) || stderrors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "404":
			return true
		}
	}
	return statusOf(err) == 404
}

func statusOf(err error) int {
	var se httpStatusError
	if stderrors.As(err, &se) {
		return se.HTTPStatusCode()
	}
	return 0
}

// connectivityError wraps a request failure that is not a missing object,
// keeping the bucket, key and status so callers can tell "does not exist"
// from "could not check".
func connectivityError(err error, op, bucket, key string) error {
	status := statusOf(err)
	code := errors.CodeNetwork
	switch status {
	case 401:
		code = errors.CodeUnauthorized
	case 403:
		code = errors.CodeForbidden
	case 429, 503:
		code = errors.CodeUnavailable
	}

	e := errors.Wrap(err, code, op,
		"unable to connect to S3, check that your credentials are valid and that your region is set correctly").
		WithContext("bucket", bucket).
		WithContext("key", key)
	if status != 0 {
		e = e.WithContext("status", strconv.Itoa(status))
	}
	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) && apiErr.ErrorCode() != "" {
		e = e.WithContext("code", apiErr.ErrorCode())
	}
	return e
}
