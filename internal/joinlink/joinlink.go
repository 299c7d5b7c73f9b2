// Package joinlink builds and parses room join links and QR payloads.
// A join link is the app URL with a "#join/<CODE>" fragment.
package joinlink

import (
	"errors"
	"net/url"
	"strings"

	"handsup/backend/internal/models"

	"github.com/skip2/go-qrcode"
)

const fragmentPrefix = "join/"

// ErrUnrecognized is returned for a scanned payload that is neither a URL
// nor a room code.
var ErrUnrecognized = errors.New("scanned code is neither a link nor a room code")

// URL returns the join link for code on base. Any fragment already on base
// is replaced.
func URL(base, code string) string {
	if i := strings.IndexByte(base, '#'); i >= 0 {
		base = base[:i]
	}
	return base + "#" + fragmentPrefix + models.NormalizeRoomCode(code)
}

// ParseFragment extracts the room code from a "#join/<code>" fragment. The
// leading '#' is optional. The code is normalized and must be valid.
func ParseFragment(fragment string) (string, bool) {
	fragment = strings.TrimPrefix(strings.TrimSpace(fragment), "#")
	if !strings.HasPrefix(fragment, fragmentPrefix) {
		return "", false
	}
	code := models.NormalizeRoomCode(strings.TrimPrefix(fragment, fragmentPrefix))
	if !models.ValidRoomCode(code) {
		return "", false
	}
	return code, true
}

// ScanKind tells how a scanned payload should be handled.
type ScanKind int

const (
	// ScanURL payloads are links; navigate to them.
	ScanURL ScanKind = iota + 1
	// ScanCode payloads are bare room codes; start the join flow.
	ScanCode
)

// Scan is a classified QR payload. Code is set for ScanCode and for
// ScanURL when the link carries a join fragment.
type Scan struct {
	Kind ScanKind
	URL  string
	Code string
}

// ParseScan classifies a decoded QR payload.
func ParseScan(payload string) (Scan, error) {
	payload = strings.TrimSpace(payload)
	if u, err := url.Parse(payload); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		s := Scan{Kind: ScanURL, URL: payload}
		if code, ok := ParseFragment(u.Fragment); ok {
			s.Code = code
		}
		return s, nil
	}

	code := models.NormalizeRoomCode(payload)
	if models.ValidRoomCode(code) {
		return Scan{Kind: ScanCode, Code: code}, nil
	}
	return Scan{}, ErrUnrecognized
}

// PNG renders link as a QR code image of size x size pixels.
func PNG(link string, size int) ([]byte, error) {
	return qrcode.Encode(link, qrcode.Medium, size)
}

// Terminal renders link as a QR code made of block characters.
func Terminal(link string) (string, error) {
	q, err := qrcode.New(link, qrcode.Medium)
	if err != nil {
		return "", err
	}
	return q.ToSmallString(false), nil
}
