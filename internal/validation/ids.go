package validation

import (
	"fmt"
	"regexp"
)

// idPattern определяет допустимый формат идентификаторов протокола
// (sessionId, userId, resourceId): латинские буквы, цифры и . _ : -
// Длина: 1-128 символов
var idPattern = regexp.MustCompile(`^[a-zA-Z0-9._:-]{1,128}$`)

// MaxIDLen максимальная длина идентификатора
const MaxIDLen = 128

// ValidateSessionID проверяет идентификатор сессии
func ValidateSessionID(id string) error {
	return validateID("session id", id)
}

// ValidateResourceID проверяет идентификатор ресурса (узла доски)
func ValidateResourceID(id string) error {
	return validateID("resource id", id)
}

// ValidateUserID проверяет идентификатор пользователя
func ValidateUserID(id string) error {
	return validateID("user id", id)
}

func validateID(kind, id string) error {
	if id == "" {
		return fmt.Errorf("%s cannot be empty", kind)
	}
	if len(id) > MaxIDLen {
		return fmt.Errorf("%s must not exceed %d characters", kind, MaxIDLen)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%s can only contain letters, numbers and . _ : -", kind)
	}
	return nil
}
