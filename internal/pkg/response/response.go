package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/CSCfi/fairdata-metax-sub001/internal/pkg/errors"
)

// Response is the envelope of every API reply. Code is 0 on success.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message,omitempty"`
	Field   string      `json:"field,omitempty"` // rejected input field
	Reason  string      `json:"reason,omitempty"`
	Data    interface{} `json:"data"`
}

func Success(c *gin.Context, data interface{}) {
	if data == nil {
		data = struct{}{}
	}
	c.JSON(http.StatusOK, Response{
		Code: apperrors.Success,
		Data: data,
	})
}

func Created(c *gin.Context, data interface{}) {
	if data == nil {
		data = struct{}{}
	}
	c.JSON(http.StatusCreated, Response{
		Code: apperrors.Success,
		Data: data,
	})
}

func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// HandleError renders err with the status of its AppError code; plain
// errors become internal server errors
func HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	code := apperrors.ExtractCode(err)
	resp := Response{
		Code:    code,
		Message: apperrors.FormatError(code, apperrors.GetDetails(err)),
		Data:    struct{}{},
	}
	if appErr, ok := apperrors.As(err); ok {
		resp.Field = appErr.Field
		resp.Reason = appErr.Reason
	}

	c.JSON(apperrors.GetHTTPStatus(code), resp)
}

func ErrorWithCode(c *gin.Context, code int, details ...string) {
	c.JSON(apperrors.GetHTTPStatus(code), Response{
		Code:    code,
		Message: apperrors.FormatError(code, details...),
		Data:    struct{}{},
	})
}

func BadRequest(c *gin.Context, details ...string) {
	ErrorWithCode(c, apperrors.ErrBadRequest, details...)
}
