package responses

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	pipelineerrors "github.com/janhq/video-api/internal/domain/errors"
	"github.com/janhq/video-api/internal/utils/platformerrors"
)

// HandleError writes err as a JSON error. Platform errors keep their type;
// bare pipeline errors are mapped by kind.
func HandleError(c *gin.Context, err error, log zerolog.Logger) {
	if platformerrors.GetPlatformError(err) != nil {
		platformerrors.WriteError(c, err, log)
		return
	}

	var pe *pipelineerrors.PipelineError
	if errors.As(err, &pe) {
		platformerrors.WriteHTTPError(c, platformerrors.NewError(c.Request.Context(), platformerrors.LayerHandler,
			pipelineErrorType(pe.Kind), pe.Error(), pe, ""), log)
		return
	}
	platformerrors.WriteError(c, err, log)
}

// HandleNewError creates a new typed error at the route layer and writes it.
func HandleNewError(c *gin.Context, errorType platformerrors.ErrorType, message, code string, log zerolog.Logger) {
	err := platformerrors.NewError(c.Request.Context(), platformerrors.LayerRoute, errorType, message, nil, code)
	platformerrors.WriteHTTPError(c, err, log)
}

func pipelineErrorType(kind pipelineerrors.Kind) platformerrors.ErrorType {
	switch kind {
	case pipelineerrors.KindConcurrentProcessingRejected, pipelineerrors.KindClaimLost:
		return platformerrors.ErrorTypeConflict
	case pipelineerrors.KindSourceUnreadable, pipelineerrors.KindVariantEncodeFailed:
		return platformerrors.ErrorTypeUnprocessable
	case pipelineerrors.KindPermissionDenied:
		return platformerrors.ErrorTypeForbidden
	case pipelineerrors.KindStoreUnavailable:
		return platformerrors.ErrorTypeUnavailable
	case pipelineerrors.KindAssetNotFound:
		return platformerrors.ErrorTypeNotFound
	case pipelineerrors.KindInvalidConfig:
		return platformerrors.ErrorTypeValidation
	default:
		return platformerrors.ErrorTypeInternal
	}
}
