package utils

// MaskSecret keeps a short prefix of a token so it can be recognised in logs
func MaskSecret(s string) string {
	if len(s) <= 4 {
		return "*****"
	}
	return s[:4] + "*****"
}
