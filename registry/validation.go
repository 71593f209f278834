package registry

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrNotFound is returned when no service is registered under a name.
var ErrNotFound = errors.New("decision service not found")

// ValidationError reports why a service name or source was rejected.
type ValidationError struct {
	Name   string
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid decision service %q: %s", e.Name, strings.Join(e.Errors, "; "))
}

// tableSuffix separates a service name from a table name in API paths.
const tableSuffix = "_table"

// maxNameLength bounds service names.
const maxNameLength = 100

// ValidateName checks that a service name can be used in every URL the
// server exposes for it.
func ValidateName(name string) error {
	var problems []string

	if strings.TrimSpace(name) == "" {
		problems = append(problems, "name cannot be empty")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		problems = append(problems, fmt.Sprintf("name length %d exceeds maximum of %d characters", utf8.RuneCountInString(name), maxNameLength))
	}
	if strings.TrimSpace(name) != name {
		problems = append(problems, "name has leading or trailing whitespace")
	}
	if strings.ContainsAny(name, `/\?#%`) {
		problems = append(problems, `name cannot contain any of / \ ? # %`)
	}
	if strings.HasPrefix(name, ".") {
		problems = append(problems, "name cannot start with a dot")
	}
	if strings.HasSuffix(name, tableSuffix) {
		problems = append(problems, fmt.Sprintf("name cannot end in %q", tableSuffix))
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			problems = append(problems, "name cannot contain control characters")
			break
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Name: name, Errors: problems}
	}
	return nil
}

// NameFromFile derives a service name from an uploaded or watched file.
func NameFromFile(filename string) string {
	base := filename
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return strings.TrimSpace(base)
}
