package masking

import "strings"

const maskToken = "****"

var sensitiveKeys = map[string]struct{}{
	"email":    {},
	"phone":    {},
	"gstin":    {},
	"password": {},
	"token":    {},
	"secret":   {},
}

// MaskSecret redacts a value while keeping a short suffix for auditing.
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) <= 4 {
		return maskToken
	}
	return maskToken + trimmed[len(trimmed)-4:]
}

// IsSensitiveKey matches keys such as "email" or "party_email".
func IsSensitiveKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if _, ok := sensitiveKeys[key]; ok {
		return true
	}
	if idx := strings.LastIndex(key, "_"); idx >= 0 {
		_, ok := sensitiveKeys[key[idx+1:]]
		return ok
	}
	return false
}

// MaskValue walks decoded JSON and masks string values stored under sensitive keys.
func MaskValue(value any) any {
	switch cast := value.(type) {
	case map[string]any:
		return maskMap(cast)
	case []any:
		out := make([]any, 0, len(cast))
		for _, item := range cast {
			out = append(out, MaskValue(item))
		}
		return out
	default:
		return value
	}
}

func maskMap(input map[string]any) map[string]any {
	masked := make(map[string]any, len(input))
	for key, value := range input {
		if s, ok := value.(string); ok && IsSensitiveKey(key) {
			masked[key] = MaskSecret(s)
			continue
		}
		masked[key] = MaskValue(value)
	}
	return masked
}
