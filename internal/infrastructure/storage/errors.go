package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/smithy-go"
	"google.golang.org/api/googleapi"

	pipelineerrors "github.com/janhq/video-api/internal/domain/errors"
)

var deniedCodes = map[string]struct{}{
	"AccessDenied":          {},
	"AllAccessDisabled":     {},
	"Forbidden":             {},
	"InvalidAccessKeyId":    {},
	"SignatureDoesNotMatch": {},
	"AccountProblem":        {},
	"NoSuchBucket":          {},
	"MethodNotAllowed":      {},
}

// classifyS3 maps an SDK failure to StoreUnavailable or PermissionDenied.
// Context errors are returned untouched so callers see the cancellation.
func classifyS3(op, key string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	msg := fmt.Sprintf("s3 %s %s failed", op, key)

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if _, denied := deniedCodes[apiErr.ErrorCode()]; denied {
			return pipelineerrors.PermissionDenied(msg, err)
		}
	}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.HTTPStatusCode() {
		case http.StatusUnauthorized, http.StatusForbidden:
			return pipelineerrors.PermissionDenied(msg, err)
		}
	}
	return pipelineerrors.StoreUnavailable(msg, err)
}

func isS3Code(err error, codes ...string) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, c := range codes {
		if apiErr.ErrorCode() == c {
			return true
		}
	}
	return false
}

func classifyGCS(op, key string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	msg := fmt.Sprintf("gcs %s %s failed", op, key)

	if errors.Is(err, storage.ErrBucketNotExist) {
		return pipelineerrors.PermissionDenied(msg, err)
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		switch gErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return pipelineerrors.PermissionDenied(msg, err)
		}
	}
	return pipelineerrors.StoreUnavailable(msg, err)
}

func awsString(s string) *string {
	if s == "" {
		return nil
	}
	return aws.String(s)
}
