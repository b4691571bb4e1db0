package validation

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
)

// BindAndValidate binds the JSON body into out and runs validation.
// Malformed bodies and failed rules both come back as *Error.
func BindAndValidate(c *gin.Context, out interface{}, v *validatorv10.Validate) error {
	if err := c.ShouldBindJSON(out); err != nil {
		return Errorf("Invalid request body: %v", err)
	}
	return Struct(v, out)
}

// BindOptional is BindAndValidate for endpoints whose body may be empty.
func BindOptional(c *gin.Context, out interface{}, v *validatorv10.Validate) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return Struct(v, out)
	}
	if err := c.ShouldBindJSON(out); err != nil && !errors.Is(err, io.EOF) {
		return Errorf("Invalid request body: %v", err)
	}
	return Struct(v, out)
}
