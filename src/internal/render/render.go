// Package render turns a session's current token into the URL and image a
// student scans.
package render

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/skip2/go-qrcode"
)

const defaultSize = 400

// AttendURL builds {origin}/attend/{sessionID}/{token}.
func AttendURL(origin, sessionID, token string) string {
	return strings.TrimRight(origin, "/") + "/attend/" + url.PathEscape(sessionID) + "/" + url.PathEscape(token)
}

// Renderer encodes a URL as a scannable image.
type Renderer interface {
	PNG(content string) ([]byte, error)
}

type qrRenderer struct {
	size  int
	level qrcode.RecoveryLevel
}

func NewQRRenderer(size int) Renderer {
	if size <= 0 {
		size = defaultSize
	}
	return &qrRenderer{size: size, level: qrcode.Medium}
}

func (r *qrRenderer) PNG(content string) ([]byte, error) {
	png, err := qrcode.Encode(content, r.level, r.size)
	if err != nil {
		return nil, fmt.Errorf("encode qr code: %w", err)
	}
	return png, nil
}
