package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

func init() {
	// Report on 'TagName' json tag instead of struct field name
	// Look at documentation of 'RegisterTagNameFunc' for more details
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		// skip if tag key says it should be ignored
		if name == "-" {
			return ""
		}
		return name
	})
}

type Struct any

// Envelope for every response, success or not
type Response struct {
	Success    bool              `json:"success"`
	StatusCode int               `json:"statusCode"`
	Data       any               `json:"data,omitempty"`
	Message    string            `json:"message,omitempty"`
	Fields     map[string]string `json:"fields,omitempty"`
}

// JSON renders a success envelope with the given status code
func JSON(w http.ResponseWriter, code int, data any, message string) {
	jsonWithStatus(w, Response{
		Success:    true,
		StatusCode: code,
		Data:       data,
		Message:    message,
	}, code)
}

// Error renders a failure envelope
// Message never carries secrets, hashes or raw tokens
func Error(w http.ResponseWriter, message string, code int) {
	jsonWithStatus(w, Response{
		Success:    false,
		StatusCode: code,
		Message:    message,
	}, code)
}

// DecodeError renders json decoding failure
func DecodeError(w http.ResponseWriter, err error) {
	message := ""

	// Try to provide more specific error message based on error type
	switch err := err.(type) {
	case *json.UnmarshalTypeError:
		message = fmt.Sprintf("Invalid data type for field '%s'", err.Field)
	default:
		message = fmt.Sprintf("Failed to parse request: %s", err.Error())
	}

	jsonWithStatus(w, Response{
		Success:    false,
		StatusCode: http.StatusBadRequest,
		Message:    message,
	}, http.StatusBadRequest)
}

// ValidationErrors renders field errors of a failed validation
func ValidationErrors(w http.ResponseWriter, errs validator.ValidationErrors) {
	fields := make(map[string]string, len(errs))

	// Create user-friendly error messages based on validation tag
	for _, fieldError := range errs {
		var message string
		switch fieldError.Tag() {
		case "required":
			message = "This field is required"
		case "min":
			message = fmt.Sprintf("Value is too short (minimum %s)", fieldError.Param())
		case "email":
			message = "Malformed email"
		default:
			message = "Invalid value"
		}

		fields[fieldError.Field()] = message
	}

	jsonWithStatus(w, Response{
		Success:    false,
		StatusCode: http.StatusBadRequest,
		Message:    "Request validation failed",
		Fields:     fields,
	}, http.StatusBadRequest)
}

// BindAndValidate decodes JSON request body into type T and validates it using struct tags.
// Returns the decoded value and writes appropriate error responses for decoding or validation failures.
func BindAndValidate[T Struct](w http.ResponseWriter, r *http.Request) (T, error) {
	var value T

	err := json.NewDecoder(r.Body).Decode(&value)
	if err != nil {
		DecodeError(w, err)
		return value, err
	}

	if err := Validate(w, value); err != nil {
		return value, err
	}

	return value, nil
}

// Validate checks an already populated struct (e.g. built from a multipart
// form) and writes validation errors to the response
func Validate(w http.ResponseWriter, value any) error {
	err := validate.Struct(value)
	if err != nil {
		// pretty sure cast will be ok cause expecting value is valid struct
		errs := err.(validator.ValidationErrors)
		ValidationErrors(w, errs)
		return err
	}

	return nil
}

// ValidateVar validates a single value against a tag, e.g. "email"
func ValidateVar(value any, tag string) error {
	return validate.Var(value, tag)
}

// jsonWithStatus sends data as json and enforces status code
func jsonWithStatus(w http.ResponseWriter, data any, code int) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)

	if err := enc.Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write(buf.Bytes())
}
