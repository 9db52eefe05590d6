package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strconv"
	"strings"
)

func sha256Hex(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

// Fingerprint derives the deduplication key of a tender from the school
// id, the anchor href (or the title when the anchor has none) and the
// platform tag.
func Fingerprint(schoolID int64, hrefOrTitle, platform string) string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(schoolID, 10))
	b.WriteByte('-')
	b.WriteString(hrefOrTitle)
	b.WriteByte('-')
	b.WriteString(platform)
	return sha256Hex(b.String())
}

// ToAbsoluteURL converts a relative URL to an absolute URL given a base URL.
func ToAbsoluteURL(base *url.URL, relative string) (string, error) {
	relURL, err := url.Parse(relative)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(relURL).String(), nil
}
