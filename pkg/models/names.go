package models

import "fmt"

// ValidateName accepts non-empty names made of ASCII lowercase letters and
// hyphens. Project and service names must pass it before reaching storage.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidName)
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c != '-' && (c < 'a' || c > 'z') {
			return fmt.Errorf("%w: %q may only contain lowercase letters and hyphens", ErrInvalidName, name)
		}
	}
	return nil
}
