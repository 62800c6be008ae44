package api

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// fieldNames maps request fields to the names used in error messages.
var fieldNames = map[string]string{
	"Username":    "Email",
	"Email":       "Email",
	"Password":    "Password",
	"FirstName":   "First name",
	"FamilyName":  "Family name",
	"Gender":      "Gender",
	"City":        "City",
	"Country":     "Country",
	"OldPassword": "Old password",
	"NewPassword": "New password",
	"Message":     "Message",
}

// bindingError turns the first failed binding rule into a client message.
// Anything that is not a rule violation is reported as a bad body.
func bindingError(err error) *Error {
	var violations validator.ValidationErrors
	if !errors.As(err, &violations) || len(violations) == 0 {
		return badRequest("Invalid request body.")
	}
	field := violations[0]
	switch field.StructField() {
	case "Lat", "Lon":
		return badRequest("coords object need lat and lon fields.")
	}
	name, ok := fieldNames[field.StructField()]
	if !ok {
		name = field.StructField()
	}
	switch field.Tag() {
	case "required":
		return missing(name)
	case "min":
		if field.Param() == "1" {
			return badRequest(name + " is empty.")
		}
		return badRequest(fmt.Sprintf("Password needs to be at least %s characters long.", field.Param()))
	case "email":
		return badRequest("Invalid email format.")
	default:
		return badRequest("Invalid request body.")
	}
}

// Pointer fields keep "absent" apart from "empty": required fails on a nil
// pointer, min=1 on an empty string.

type signInRequest struct {
	Username *string `json:"username" binding:"required,min=1"`
	Password *string `json:"password" binding:"required"`
}

type signUpRequest struct {
	Email      *string `json:"email" binding:"required,min=1,email"`
	Password   *string `json:"password" binding:"required,min=3"`
	FirstName  *string `json:"firstname" binding:"required,min=1"`
	FamilyName *string `json:"familyname" binding:"required,min=1"`
	Gender     *string `json:"gender" binding:"required,min=1"`
	City       *string `json:"city" binding:"required,min=1"`
	Country    *string `json:"country" binding:"required,min=1"`
}

type changePasswordRequest struct {
	OldPassword *string `json:"oldpassword" binding:"required,min=1"`
	NewPassword *string `json:"newpassword" binding:"required,min=3"`
}

type coordinates struct {
	Lat *float64 `json:"lat" binding:"required"`
	Lon *float64 `json:"lon" binding:"required"`
}

type postMessageRequest struct {
	Message *string      `json:"message" binding:"required,min=1"`
	Email   *string      `json:"email" binding:"omitnil,min=1,email"`
	Coords  *coordinates `json:"coords"`
}
