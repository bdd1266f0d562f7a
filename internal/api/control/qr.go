package control

import (
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/skip2/go-qrcode"
)

// QR image size bounds in pixels.
const (
	DefaultQRSize = 256
	minQRSize     = 64
	maxQRSize     = 1024
)

// ErrNoPublicURL is returned when no requester URL is configured.
var ErrNoPublicURL = errors.New("server.public_url is not configured")

// EncodeQR renders url as a PNG QR code of the given size.
func EncodeQR(url string, size int) ([]byte, error) {
	if url == "" {
		return nil, ErrNoPublicURL
	}
	png, err := qrcode.Encode(url, qrcode.Medium, clampQRSize(size))
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode QR code")
	}
	return png, nil
}

func clampQRSize(size int) int {
	switch {
	case size <= 0:
		return DefaultQRSize
	case size < minQRSize:
		return minQRSize
	case size > maxQRSize:
		return maxQRSize
	default:
		return size
	}
}

// handleQR serves the requester page QR code.
func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))

	png, err := EncodeQR(s.config.PublicURL, size)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrNoPublicURL) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	_, _ = w.Write(png)
}
