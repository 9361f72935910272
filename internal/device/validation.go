package device

import (
	"fmt"
	"strings"
	"unicode"
)

// Validation limits for inventory descriptors.
const (
	maxIDLength       = 256
	maxLabels         = 64
	maxStringValueLen = 1024
	maxReportedKeys   = 32
	maxReportedBytes  = 16 << 10
)

// ValidateDescriptor checks a descriptor before reconciliation.
// Returns an error wrapping ErrInvalidDescriptor describing the first
// failure found. The type tag is not checked here; unsupported types are
// handled by the registry.
func ValidateDescriptor(d Descriptor) error {
	if err := ValidateID(d.ID); err != nil {
		return err
	}

	if len(d.Labels) > maxLabels {
		return fmt.Errorf("%w: %d labels exceeds %d", ErrInvalidDescriptor, len(d.Labels), maxLabels)
	}
	for k, v := range d.Labels {
		if len(k) > maxStringValueLen || len(v) > maxStringValueLen {
			return fmt.Errorf("%w: label %q exceeds %d characters", ErrInvalidDescriptor, truncateKey(k), maxStringValueLen)
		}
	}

	if len(d.Reported) > maxReportedKeys {
		return fmt.Errorf("%w: %d reported keys exceeds %d", ErrInvalidDescriptor, len(d.Reported), maxReportedKeys)
	}
	for k, raw := range d.Reported {
		if len(raw) > maxReportedBytes {
			return fmt.Errorf("%w: reported %q exceeds %d bytes", ErrInvalidDescriptor, truncateKey(k), maxReportedBytes)
		}
	}

	return nil
}

// ValidateID checks a cloud resource name such as "projects/p1/devices/d1".
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: id cannot be empty", ErrInvalidDescriptor)
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("%w: id exceeds %d characters", ErrInvalidDescriptor, maxIDLength)
	}
	if strings.IndexFunc(id, func(r rune) bool { return unicode.IsSpace(r) || unicode.IsControl(r) }) >= 0 {
		return fmt.Errorf("%w: id contains whitespace or control characters", ErrInvalidDescriptor)
	}
	if SerialNumber(id) == "" {
		return fmt.Errorf("%w: id has an empty serial number", ErrInvalidDescriptor)
	}
	return nil
}

func truncateKey(k string) string {
	if len(k) > 32 {
		return k[:32] + "..."
	}
	return k
}
