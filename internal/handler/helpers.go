package handler

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"tarkostock/internal/apierror"
	"tarkostock/internal/middleware"
	"tarkostock/internal/policy"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

func init() {
	// Register decimal.Decimal as a numeric type so that validator tags like
	// min=0, gt=0, required work without panicking ("Bad field type decimal.Decimal").
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if v, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := v.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	// Report fields by their wire names.
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
}

// bindAndValidate binds JSON body and runs go-playground/validator tags.
// Returns false and writes the error response if validation fails;
// the caller should return immediately without writing another response.
func bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, &apierror.APIError{Detail: "invalid JSON: " + err.Error(), Kind: apierror.KindValidation})
		return false
	}
	return runValidation(c, req)
}

// bindQuery is bindAndValidate for query-string filters.
func bindQuery(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		c.JSON(http.StatusBadRequest, &apierror.APIError{Detail: "invalid query: " + err.Error(), Kind: apierror.KindValidation})
		return false
	}
	return runValidation(c, req)
}

func runValidation(c *gin.Context, req interface{}) bool {
	if err := validate.Struct(req); err != nil {
		fields := make(map[string]string)
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				// Namespace is "Struct.field[0].sub"; drop the struct name.
				ns := fe.Namespace()
				fields[ns[strings.Index(ns, ".")+1:]] = fe.Tag()
			}
		}
		c.JSON(http.StatusUnprocessableEntity, apierror.NewValidation(fields))
		return false
	}
	return true
}

// respondError writes the error envelope for err with the status of its kind.
func respondError(c *gin.Context, err error) {
	kind := apierror.KindOf(err)
	status := apierror.HTTPStatus(kind)
	if status >= http.StatusInternalServerError {
		log.Error().
			Str("request_id", c.GetString(middleware.RequestIDKey)).
			Str("path", c.FullPath()).
			Err(err).
			Msg("request failed")
	}
	c.AbortWithStatusJSON(status, apierror.FromError(err))
}

// authorize runs the policy check for op and writes a 403 when it fails.
func authorize(c *gin.Context, op policy.Operation) (middleware.Actor, bool) {
	actor := middleware.GetActor(c)
	if err := policy.Check(actor.Role, op); err != nil {
		respondError(c, err)
		return actor, false
	}
	return actor, true
}

// idParam parses the named path parameter as a uuid.
func idParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, &apierror.APIError{Detail: "invalid " + name, Kind: apierror.KindValidation})
		return uuid.Nil, false
	}
	return id, true
}
