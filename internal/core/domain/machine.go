package domain

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Machine represents a physical wellness device. Machines are provisioned
// unbound; binding associates them with a user account and records the
// mobile device that performed the bind.
type Machine struct {
	ID           uuid.UUID  `json:"id"`
	SerialNumber string     `json:"serial_number"`
	Model        string     `json:"model,omitempty"`
	UserID       *uuid.UUID `json:"user_id,omitempty"` // nil = unbound
	DeviceID     *uuid.UUID `json:"device_id,omitempty"`
	BoundAt      *time.Time `json:"bound_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// IsBound returns true if the machine is bound to a user.
func (m *Machine) IsBound() bool {
	return m.UserID != nil
}

// IsBoundTo returns true if the machine is bound to the given user.
func (m *Machine) IsBoundTo(userID uuid.UUID) bool {
	return m.UserID != nil && *m.UserID == userID
}

// SerialFormat validates machine serial numbers against the organization's
// configured shape: a literal prefix followed by a fixed number of digits,
// e.g. prefix "AUR-" and 4 digits accepts "AUR-0042".
type SerialFormat struct {
	prefix string
	digits int
	re     *regexp.Regexp
}

// NewSerialFormat compiles a serial format from configuration.
func NewSerialFormat(prefix string, digits int) (SerialFormat, error) {
	if digits <= 0 {
		return SerialFormat{}, fmt.Errorf("serial format: digits must be positive, got %d", digits)
	}
	re, err := regexp.Compile(fmt.Sprintf(`^%s\d{%d}$`, regexp.QuoteMeta(prefix), digits))
	if err != nil {
		return SerialFormat{}, fmt.Errorf("serial format: %w", err)
	}
	return SerialFormat{prefix: prefix, digits: digits, re: re}, nil
}

// Matches reports whether the serial conforms to the configured format.
func (f SerialFormat) Matches(serial string) bool {
	return f.re != nil && f.re.MatchString(serial)
}

// String renders the format for error messages, e.g. "AUR-NNNN".
func (f SerialFormat) String() string {
	pattern := f.prefix
	for i := 0; i < f.digits; i++ {
		pattern += "N"
	}
	return pattern
}
