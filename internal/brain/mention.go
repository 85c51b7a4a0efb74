package brain

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	punctuationOnly = regexp.MustCompile(`^[\s\p{Z}.,!?。，！？;:：\-—~～、]*$`)
	alphanumeric    = regexp.MustCompile(`^[a-zA-Z0-9]+$`)
)

// acknowledgements are short replies that still count as saying something.
var acknowledgements = map[string]struct{}{
	"ok": {}, "okay": {}, "yes": {}, "no": {}, "roger": {}, "copy": {},
	"好的": {}, "行": {}, "好": {}, "收到": {},
}

// StripHandle removes every case-insensitive occurrence of handle from body and trims
// the surrounding whitespace.
func StripHandle(body, handle string) string {
	if handle == "" {
		return strings.TrimSpace(body)
	}
	re := regexp.MustCompile("(?i)" + regexp.QuoteMeta(handle))
	return strings.TrimSpace(re.ReplaceAllString(body, ""))
}

// IsEmptyMention reports whether body carries no instruction beyond naming the bot:
// only punctuation once the handle is stripped, or a short fragment of at most four
// characters that is neither an acknowledgement nor plain alphanumerics. A bare handle
// is not empty; it is passed on verbatim.
func IsEmptyMention(body, handle string) bool {
	cleaned := StripHandle(body, handle)
	if cleaned == "" {
		return false
	}
	if punctuationOnly.MatchString(cleaned) {
		return true
	}
	if utf8.RuneCountInString(cleaned) > 4 {
		return false
	}
	if _, ok := acknowledgements[strings.ToLower(cleaned)]; ok {
		return false
	}
	return !alphanumeric.MatchString(cleaned)
}
