package internal

func isUpper(c byte) bool {
	return c >= 'A' && c <= 'Z'
}

func toLower(c byte) byte {
	return c + 32
}

// Underscore converts "CamelCasedString" to "camel_cased_string". Acronyms
// collapse: "HTTPRequest" becomes "http_request".
func Underscore(s string) string {
	r := make([]byte, 0, len(s)+5)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !isUpper(c) {
			r = append(r, c)
			continue
		}
		if i > 0 && s[i-1] != '_' {
			prevLower := !isUpper(s[i-1])
			nextLower := i+1 < len(s) && !isUpper(s[i+1]) && s[i+1] != '_'
			if prevLower || nextLower {
				r = append(r, '_')
			}
		}
		r = append(r, toLower(c))
	}
	return string(r)
}
