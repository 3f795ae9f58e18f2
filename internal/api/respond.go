package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/vaccination-booking/internal/apperr"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// writeAppError maps any error onto the HTTP taxonomy. Internal failures are logged
// and reported without detail.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	e := apperr.From(err)
	status := apperr.HTTPStatus(e.Kind)

	if e.Kind == apperr.KindInternal {
		zerolog.Ctx(r.Context()).Error().Err(err).
			Str("request_id", GetRequestID(r.Context())).
			Msg("request failed")
		writeError(w, status, e.Code, e.Message)
		return
	}

	zerolog.Ctx(r.Context()).Debug().
		Str("code", e.Code).
		Int("status", status).
		Msg(e.Message)
	writeError(w, status, e.Code, e.Message)
}

// decodeJSON reads a size-limited JSON body into dst and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.InvalidInput("invalid_request_body", "request body is empty")
		}
		return apperr.InvalidInput("invalid_request_body", "could not parse JSON")
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return apperr.InvalidInput("invalid_"+fe.Field(), fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
		}
		return apperr.InvalidInput("invalid_request_body", err.Error())
	}
	return nil
}

func parseUUID(raw, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.InvalidInput("invalid_"+field, field+" must be a valid UUID")
	}
	return id, nil
}
