package validation

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

const (
	// MaxDestinationLen максимальная длина адреса назначения
	MaxDestinationLen = 2048
	// MaxDescriptionLen максимальная длина описания
	MaxDescriptionLen = 512
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func instance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateDestinationURL проверяет адрес назначения редиректа
// Допускаются только абсолютные http(s) адреса длиной до MaxDestinationLen
func ValidateDestinationURL(destination string) error {
	if strings.TrimSpace(destination) == "" {
		return fmt.Errorf("destination url cannot be empty")
	}

	if len(destination) > MaxDestinationLen {
		return fmt.Errorf("destination url must not exceed %d characters", MaxDestinationLen)
	}

	if err := instance().Var(destination, "http_url"); err != nil {
		return fmt.Errorf("destination url must be an absolute http or https url")
	}

	return nil
}

// ValidateDescription проверяет необязательное описание.
// Длина считается в символах, а не в байтах.
func ValidateDescription(description string) error {
	if err := instance().Var(description, fmt.Sprintf("omitempty,max=%d", MaxDescriptionLen)); err != nil {
		return fmt.Errorf("description must not exceed %d characters", MaxDescriptionLen)
	}
	return nil
}
