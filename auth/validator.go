package auth

import (
	goerrors "errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"team-chat/errors"

	"github.com/go-playground/validator/v10"
)

const MaxUsernameLength = 50

var validate = validator.New()

type JoinTeamRequest struct {
	TeamID   int    `validate:"required,gt=0"`
	Username string `validate:"max=50"`
}

type ChatMessageRequest struct {
	TeamID int    `validate:"required,gt=0"`
	Text   string `validate:"required"`
}

func ValidateJoinTeam(req JoinTeamRequest) error {
	return mapValidationError(validate.Struct(req))
}

// ValidateChatMessage checks a message once its text has been trimmed.
// Blank text is ErrEmptyMessage, callers drop it silently.
func ValidateChatMessage(req ChatMessageRequest, maxLength int) error {
	if strings.TrimSpace(req.Text) == "" {
		return errors.ErrEmptyMessage
	}
	if err := validate.Struct(req); err != nil {
		return mapValidationError(err)
	}
	if maxLength > 0 && utf8.RuneCountInString(req.Text) > maxLength {
		return errors.ErrMessageTooLong
	}
	return nil
}

// DisplayName sanitizes a self-declared name, falling back to an empty string
// (rendered as "Unknown") when it is blank or too long.
func DisplayName(raw string) string {
	name := strings.TrimSpace(raw)
	if err := validate.Var(name, "max=50"); err != nil || strings.ContainsFunc(name, unicode.IsControl) {
		return ""
	}
	return name
}

func mapValidationError(err error) error {
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if goerrors.As(err, &fieldErrors) {
		for _, fe := range fieldErrors {
			if fe.Field() == "TeamID" {
				return errors.ErrInvalidTeamID
			}
		}
	}
	return fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
}
