package enforcement

// forbiddenKeys strips prototype-pollution-style keys from any nested
// payload map before it reaches a downstream executor. Go has no
// prototype chain, but the kernel's agents and executors routinely pass
// payloads through to JavaScript-based tooling, where these keys matter.
var forbiddenKeys = map[string]bool{
	"__proto__":   true,
	"constructor": true,
	"prototype":   true,
}

// Sanitize strips forbidden keys from a payload, recursing into nested
// maps. Non-map payloads (scalars, slices, nil) pass through untouched.
func Sanitize(payload any) (any, error) {
	switch v := payload.(type) {
	case map[string]any:
		return sanitizeMap(v), nil
	default:
		return payload, nil
	}
}

func sanitizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, val := range m {
		if forbiddenKeys[k] {
			continue
		}
		if nested, ok := val.(map[string]any); ok {
			out[k] = sanitizeMap(nested)
		} else {
			out[k] = val
		}
	}
	return out
}
