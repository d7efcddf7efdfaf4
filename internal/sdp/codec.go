// Package sdp transforms and validates SDP/ICE payloads crossing the
// signaling boundary. Everything here is a pure function over strings.
package sdp

import (
	"fmt"
	"regexp"
	"strings"

	pionsdp "github.com/pion/sdp/v3"

	"github.com/stickpm/sfu/internal/core"
)

var (
	hostCandidateRe = regexp.MustCompile(`a=candidate:\d+ \d+ udp \d+ \d+\.\d+\.\d+\.\d+ \d+ typ host`)
	wmsSemanticRe   = regexp.MustCompile(`a=msid-semantic: WMS \r\n`)
	videoLineRe     = regexp.MustCompile(`m=video .+\r\n`)
)

// ValidateDescription rejects descriptions missing the type or sdp field
// and descriptions that do not parse as SDP.
func ValidateDescription(typ, raw string) error {
	if typ == "" || raw == "" {
		return core.ErrInvalidDescription
	}
	var parsed pionsdp.SessionDescription
	if err := parsed.Unmarshal([]byte(raw)); err != nil {
		return fmt.Errorf("%w: %v", core.ErrInvalidDescription, err)
	}
	return nil
}

// SanitizeCandidate strips literal host-candidate lines so internal
// network topology is never echoed back to peers.
func SanitizeCandidate(candidate string) string {
	if candidate == "" {
		return ""
	}
	return hostCandidateRe.ReplaceAllString(candidate, "")
}

// SanitizeSDP drops WMS semantic lines.
func SanitizeSDP(raw string) string {
	return wmsSemanticRe.ReplaceAllString(raw, "")
}

// EnsureRTCPAttributes appends rtcp-mux and reduced-size RTCP attributes
// when the remote description lacks them. Some client builds omit both.
func EnsureRTCPAttributes(raw string) string {
	if !strings.Contains(raw, "a=rtcp-mux") {
		raw += "\na=rtcp-mux"
	}
	if !strings.Contains(raw, "a=rtcp-rsize") {
		raw += "\na=rtcp-rsize"
	}
	return raw
}

// SetPreferredCodec rewrites the m=video line so codecName's payload type
// leads, carrying forward any associated format parameters. When the codec
// is absent the input is returned unchanged and ok is false; the caller
// decides whether that is worth a warning.
func SetPreferredCodec(raw, codecName string) (out string, ok bool) {
	rtpmapRe := regexp.MustCompile(`(?i)a=rtpmap:(\d+) ` + regexp.QuoteMeta(codecName) + `/`)
	m := rtpmapRe.FindStringSubmatch(raw)
	if m == nil {
		return raw, false
	}
	codecID := m[1]

	fmtpRe := regexp.MustCompile(`(?i)a=fmtp:` + codecID + ` (.+)`)
	fmtpLine := ""
	if fm := fmtpRe.FindStringSubmatch(raw); fm != nil {
		fmtpLine = fm[1]
	}

	rtpmapLine := fmt.Sprintf("a=rtpmap:%s %s", codecID, codecName)
	if fmtpLine != "" {
		rtpmapLine += fmt.Sprintf("\na=fmtp:%s %s", codecID, fmtpLine)
	}
	return videoLineRe.ReplaceAllString(raw, fmt.Sprintf("m=video %s\r\n", rtpmapLine)), true
}
