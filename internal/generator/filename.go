package generator

const filenamePrefixLen = 30

// Filename derives the download name for an image from its prompt: the first
// 30 characters with everything outside [A-Za-z0-9] replaced by '_'.
func Filename(prompt string) string {
	runes := []rune(prompt)
	if len(runes) > filenamePrefixLen {
		runes = runes[:filenamePrefixLen]
	}
	for i, r := range runes {
		if !isAlnum(r) {
			runes[i] = '_'
		}
	}
	return string(runes) + ".png"
}

func isAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
