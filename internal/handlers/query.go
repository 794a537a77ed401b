package handlers

import (
	stderrors "errors"
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	apperrors "retail-analytics/internal/errors"
	"retail-analytics/internal/models"
)

const defaultRecordLimit = 5

// analyticsQuery is the common set of knobs every analytics endpoint accepts.
type analyticsQuery struct {
	Through  string   `query:"through" validate:"omitempty,datetime=2006-01-02"`
	Products []string `query:"product" validate:"max=100,dive,required,max=200"`
	Country  string   `query:"country" validate:"omitempty,max=100"`
	N        int      `query:"n" validate:"gte=1,lte=1000"`
	Limit    int      `query:"limit" validate:"gte=1,lte=500"`
}

// Filter converts the validated query into an aggregation filter.
func (q analyticsQuery) Filter() models.Filter {
	f := models.Filter{Products: q.Products, Country: q.Country}
	if q.Through != "" {
		// Already validated.
		f.MaxDate, _ = time.Parse(time.DateOnly, q.Through)
	}
	return f
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("query"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// parseQuery reads and validates the query string. topN fills n when the
// caller omits it.
func parseQuery(v *validator.Validate, values url.Values, topN int) (analyticsQuery, error) {
	q := analyticsQuery{
		Through:  strings.TrimSpace(values.Get("through")),
		Products: values["product"],
		Country:  strings.TrimSpace(values.Get("country")),
		N:        topN,
		Limit:    defaultRecordLimit,
	}

	var err error
	if q.N, err = intParam(values, "n", q.N); err != nil {
		return q, err
	}
	if q.Limit, err = intParam(values, "limit", q.Limit); err != nil {
		return q, err
	}

	return q, validateQuery(v, q)
}

func intParam(values url.Values, name string, def int) (int, error) {
	raw := strings.TrimSpace(values.Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.InvalidParameter("%s must be an integer, got %q", name, raw)
	}
	return n, nil
}

func validateQuery(v *validator.Validate, q analyticsQuery) error {
	err := v.Struct(q)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return apperrors.InternalWrap(err, "query validation failed")
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, formatFieldError(fe))
	}
	return apperrors.InvalidParameter("%s", strings.Join(msgs, "; "))
}

func formatFieldError(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "datetime":
		return fmt.Sprintf("%s must be a date formatted as %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "required":
		return fmt.Sprintf("%s must not be empty", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
