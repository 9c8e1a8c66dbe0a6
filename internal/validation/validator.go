// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

// Package validation checks inbound WebSocket frames and REST request bodies
// with go-playground/validator v10.
//
// Field names in errors come from the json tag, so a client sees the name it
// sent:
//
//	type messageFrame struct {
//	    Content string `json:"content" validate:"required,max=4000"`
//	}
//
//	if verr := validation.ValidateStruct(&frame); verr != nil {
//	    rw.ValidationError(verr.Summary(), verr.Details())
//	    // "content must be at most 4000 characters"
//	}
//
// Custom tags:
//   - roomkey: a room key of the form chat:<id> or notifications:<id>
//   - eventkind: a lowercase event kind such as message or friend_request
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	roomKeyPattern   = regexp.MustCompile(`^(chat|notifications):[1-9][0-9]{0,18}$`)
	eventKindPattern = regexp.MustCompile(`^[a-z][a-z_]{0,31}$`)
)

// FieldError is one failed rule.
type FieldError struct {
	Field   string
	Tag     string
	Param   string
	Message string
}

// Error lists every failed rule of one struct.
type Error struct {
	Fields []FieldError
}

// Error joins the field messages.
func (e *Error) Error() string {
	if s := e.Summary(); s != "" {
		return s
	}
	return "validation failed"
}

// Summary joins the field messages with "; ".
func (e *Error) Summary() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Message
	}
	return strings.Join(msgs, "; ")
}

// Details is the details object of a VALIDATION_ERROR response. A single
// failure is reported flat; several are listed under "fields".
func (e *Error) Details() map[string]interface{} {
	switch len(e.Fields) {
	case 0:
		return nil
	case 1:
		return map[string]interface{}{"field": e.Fields[0].Field, "tag": e.Fields[0].Tag}
	}
	fields := make([]map[string]interface{}, len(e.Fields))
	for i, f := range e.Fields {
		fields[i] = map[string]interface{}{"field": f.Field, "tag": f.Tag, "message": f.Message}
	}
	return map[string]interface{}{"fields": fields}
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// GetValidator returns the shared validator with the custom tags registered.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(jsonFieldName)
		for tag, pattern := range map[string]*regexp.Regexp{
			"roomkey":   roomKeyPattern,
			"eventkind": eventKindPattern,
		} {
			pattern := pattern
			if err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
				return pattern.MatchString(fl.Field().String())
			}); err != nil {
				panic(fmt.Sprintf("validation: register %s: %v", tag, err))
			}
		}
		validate = v
	})
	return validate
}

func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return fld.Name
	default:
		return name
	}
}

// ValidateStruct returns nil when s passes every rule.
func ValidateStruct(s interface{}) *Error {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &Error{Fields: []FieldError{{Field: "unknown", Tag: "unknown", Message: err.Error()}}}
	}

	out := &Error{Fields: make([]FieldError, len(fieldErrs))}
	for i, fe := range fieldErrs {
		out.Fields[i] = FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Message: message(fe),
		}
	}
	return out
}

// message renders fe for clients.
func message(fe validator.FieldError) string {
	field, param := fe.Field(), fe.Param()
	chars := ""
	if fe.Kind() == reflect.String {
		chars = " characters"
	}

	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "roomkey":
		return field + " must be a room key such as chat:42 or notifications:7"
	case "eventkind":
		return field + " must be a lowercase event kind"
	case "url":
		return field + " must be a valid URL"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, param)
	case "min":
		return fmt.Sprintf("%s must be at least %s%s", field, param, chars)
	case "max":
		return fmt.Sprintf("%s must be at most %s%s", field, param, chars)
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, param)
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, param)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, param)
	case "lt":
		return fmt.Sprintf("%s must be less than %s", field, param)
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
