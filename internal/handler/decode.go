package handler

import (
	"bytes"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/xenking/promo-pricing/internal/jsonx"
)

const maxBodySize = 1 << 20

// BadRequestError reports a malformed or invalid request body.
type BadRequestError struct {
	Field  string
	Reason string
}

func (e *BadRequestError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

func readLimited(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		return nil, &BadRequestError{Reason: "read request body"}
	}
	if len(body) > maxBodySize {
		return nil, &BadRequestError{Reason: "request body too large"}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, &BadRequestError{Reason: "request body is required"}
	}
	return body, nil
}

// decodeObject walks the top-level JSON object in body, handing each field
// to fn. Field errors are reported against the field name.
func decodeObject(body []byte, fn func(d *jx.Decoder, key string) error) error {
	d := jx.DecodeBytes(body)
	if d.Next() != jx.Object {
		return &BadRequestError{Reason: "request body must be a JSON object"}
	}
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		k := string(key)
		if err := fn(d, k); err != nil {
			var bre *BadRequestError
			if errors.As(err, &bre) {
				return bre
			}
			return &BadRequestError{Field: k, Reason: "malformed value"}
		}
		return nil
	})
	if err != nil {
		var bre *BadRequestError
		if errors.As(err, &bre) {
			return bre
		}
		return &BadRequestError{Reason: "malformed JSON body"}
	}
	return nil
}

func readString(d *jx.Decoder, dst *string) error {
	if d.Next() == jx.Null {
		return d.Null()
	}
	s, err := d.Str()
	if err != nil {
		return err
	}
	*dst = s
	return nil
}

func readInt(d *jx.Decoder, dst **int) error {
	if d.Next() == jx.Null {
		return d.Null()
	}
	v, err := d.Int()
	if err != nil {
		return err
	}
	*dst = &v
	return nil
}

// readDecimal accepts JSON numbers, numeric strings and null.
func readDecimal(d *jx.Decoder, dst **decimal.Decimal) error {
	if d.Next() == jx.Null {
		return d.Null()
	}
	v, err := jsonx.Decimal(d)
	if err != nil {
		return err
	}
	*dst = &v
	return nil
}

// readTime accepts RFC 3339 timestamps, zone-less local timestamps and null.
func readTime(d *jx.Decoder, dst **time.Time) error {
	if d.Next() == jx.Null {
		return d.Null()
	}
	t, err := jsonx.Time(d)
	if err != nil {
		return err
	}
	*dst = &t
	return nil
}

// readJSONDocument accepts an embedded JSON value or a string holding one.
func readJSONDocument(d *jx.Decoder, dst *[]byte) error {
	switch d.Next() {
	case jx.Null:
		return d.Null()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			return nil
		}
		if !jx.Valid([]byte(s)) {
			return &BadRequestError{Field: "eligibility_criteria", Reason: "must be valid JSON"}
		}
		*dst = []byte(s)
		return nil
	default:
		raw, err := d.Raw()
		if err != nil {
			return err
		}
		*dst = bytes.Clone(raw)
		return nil
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// check runs the struct tag rules on req and reports the first violation.
func (h *Handler) check(req any) error {
	err := h.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return errors.Wrap(err, "validate request")
	}
	fe := verrs[0]
	return &BadRequestError{Field: fe.Field(), Reason: validationMessage(fe)}
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	default:
		return "is invalid"
	}
}
