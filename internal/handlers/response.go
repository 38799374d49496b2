package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"tradiehub-backend/internal/apperr"
	"tradiehub-backend/internal/logging"
	"tradiehub-backend/internal/middleware"
	"tradiehub-backend/internal/models"
)

func respond(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, models.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// respondError writes the error envelope. Internal causes are logged and
// never shown to the caller.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	appErr := apperr.From(err)

	body := models.APIResponse{
		Success: false,
		Message: appErr.Message,
		Code:    string(appErr.Kind),
	}
	switch {
	case len(appErr.Fields) > 0:
		body.Errors = appErr.Fields
	case len(appErr.Details) > 0:
		body.Errors = appErr.Details
	}

	if appErr.Kind == apperr.KindInternal || appErr.Kind == apperr.KindTimeout {
		logging.FromContext(logger, c).WithError(appErr).WithField("path", c.FullPath()).Error("request failed")
		if appErr.Kind == apperr.KindInternal {
			body.Message = "internal server error"
		}
	}
	_ = c.Error(appErr)
	c.JSON(appErr.HTTPStatus(), body)
}

// bindJSON binds the request body and writes a validation error envelope
// listing each bad field when binding fails.
func bindJSON(c *gin.Context, logger *logrus.Logger, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		respondError(c, logger, bindingError(err))
		return false
	}
	return true
}

func bindingError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fieldPath(fe)] = fieldProblem(fe)
		}
		return apperr.Validation("request validation failed", fields)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return apperr.ValidationField(typeErr.Field, fmt.Sprintf("must be a %s", typeErr.Type.String()))
	}
	var timeErr *time.ParseError
	if errors.As(err, &timeErr) {
		return apperr.Validation("dates must be RFC 3339 timestamps", nil)
	}
	return apperr.Validation("request body is not valid JSON", nil)
}

func init() {
	// Report fields by their JSON names.
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	}
}

// fieldPath drops the struct name from "CreateQuoteRequest.items[0].quantity".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func fieldProblem(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "email":
		return "must be a valid email address"
	case "datetime":
		return "must match the format " + fe.Param()
	}
	return "is invalid"
}

func currentActor(c *gin.Context, logger *logrus.Logger) (models.Actor, bool) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		respondError(c, logger, apperr.AuthenticationRequired("authentication required"))
		return models.Actor{}, false
	}
	return actor, true
}

func uuidParam(c *gin.Context, logger *logrus.Logger, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		respondError(c, logger, apperr.ValidationField(name, "must be a valid UUID"))
		return uuid.Nil, false
	}
	return id, true
}

func intQuery(c *gin.Context, name string, defaultValue int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return defaultValue
	}
	return v
}
