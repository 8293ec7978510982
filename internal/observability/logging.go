package observability

import (
	"strings"

	"github.com/nis-portal/portal-api/internal/logging"
)

// Logger returns the global safe logger instance
func Logger() *logging.SafeLogger {
	return logging.Logger
}

// MaskNationalID keeps the last three characters of a national insurance
// number for log correlation.
func MaskNationalID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) <= 3 {
		return "***"
	}
	return strings.Repeat("*", len(id)-3) + id[len(id)-3:]
}

// MaskSensitiveData masks sensitive data in a map
func MaskSensitiveData(data map[string]interface{}) map[string]interface{} {
	masked := make(map[string]interface{}, len(data))
	for k, v := range data {
		if isSensitiveField(k) {
			masked[k] = "********"
		} else {
			masked[k] = v
		}
	}
	return masked
}

func isSensitiveField(key string) bool {
	switch strings.ToLower(key) {
	case "password", "password_hash", "token", "national_id", "dob":
		return true
	}
	return false
}
