package response

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/webapi/proxyutil"

	"github.com/xxxsen/docqa/internal/pkg/errcode"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
)

// apiError carries an errcode through proxyutil, which reads Code().
type apiError struct {
	code uint32
	msg  string
}

func (e apiError) Error() string { return e.msg }

func (e apiError) Code() uint32 { return e.code }

type errorMapping struct {
	target error
	code   int
	msg    string
}

// checked in order, the first match wins
var knownErrors = []errorMapping{
	{appErr.ErrUnauthorized, errcode.ErrUnauthorized, "unauthorized"},
	{appErr.ErrForbidden, errcode.ErrForbidden, "forbidden"},
	{appErr.ErrNotFound, errcode.ErrNotFound, "not found"},
	{appErr.ErrInvalid, errcode.ErrInvalid, "invalid request"},
	{appErr.ErrConflict, errcode.ErrConflict, "conflict"},
	{appErr.ErrTooMany, errcode.ErrTooMany, "too many requests"},
	{appErr.ErrNoText, errcode.ErrNoText, "could not extract text from the file"},
	{appErr.ErrUnsupported, errcode.ErrUnsupportedType, "unsupported file type"},
	{appErr.ErrTooLarge, errcode.ErrFileTooLarge, "file too large"},
}

func Success(c *gin.Context, data interface{}) {
	proxyutil.SuccessJson(c, data)
}

// Error writes a failure envelope. The HTTP status stays 200, clients read
// the code field.
func Error(c *gin.Context, code int, message string) {
	proxyutil.FailJson(c, 200, apiError{code: uint32(code), msg: message})
}

// Fail maps a service error onto its code. Errors that are not one of the
// shared sentinels are reported as internal without their text.
func Fail(c *gin.Context, err error) {
	code, msg := Classify(err)
	Error(c, code, msg)
}

func Classify(err error) (int, string) {
	for _, m := range knownErrors {
		if errors.Is(err, m.target) {
			return m.code, m.msg
		}
	}
	return errcode.ErrInternal, "internal error"
}
