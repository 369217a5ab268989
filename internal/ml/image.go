package ml

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/onfert/analyst/internal/errors"
)

// MaxImageBytes is the default upload cap.
const MaxImageBytes = 4 * 1024 * 1024

const (
	MIMEJPEG = "image/jpeg"
	MIMEPNG  = "image/png"
)

// ImageTooLargeMessage is the message shown for an image above maxBytes.
func ImageTooLargeMessage(maxBytes int64) string {
	return fmt.Sprintf("O tamanho da imagem deve ser inferior a %dMB.", maxBytes/(1024*1024))
}

// SniffImageMIME detects JPEG and PNG by their magic numbers.
func SniffImageMIME(b []byte) string {
	// JPEG: FF D8
	if len(b) >= 2 && b[0] == 0xFF && b[1] == 0xD8 {
		return MIMEJPEG
	}
	// PNG
	if len(b) >= 8 &&
		b[0] == 0x89 && b[1] == 0x50 && b[2] == 0x4E && b[3] == 0x47 &&
		b[4] == 0x0D && b[5] == 0x0A && b[6] == 0x1A && b[7] == 0x0A {
		return MIMEPNG
	}
	return ""
}

// ValidateImage rejects missing, oversized and non JPEG/PNG images and
// returns the detected MIME type. It never touches the network.
func ValidateImage(data []byte, maxBytes int64) (string, error) {
	if maxBytes <= 0 {
		maxBytes = MaxImageBytes
	}
	if len(data) == 0 {
		return "", errors.Validation("ml.validate_image", "Por favor, envie uma imagem da cultura ou do solo.")
	}
	if int64(len(data)) > maxBytes {
		return "", errors.Validation("ml.validate_image", ImageTooLargeMessage(maxBytes))
	}
	mime := SniffImageMIME(data)
	if mime == "" {
		return "", errors.Validation("ml.validate_image", "A imagem deve estar no formato JPEG ou PNG.")
	}
	return mime, nil
}

// DecodeImage decodes base64 image data, accepting an optional data: URL
// prefix. The MIME type from the prefix is returned when present.
func DecodeImage(s string) ([]byte, string, error) {
	s = strings.TrimSpace(s)
	var hintMIME string
	if strings.HasPrefix(s, "data:") {
		// data:<mime>;base64,<payload>
		if idx := strings.IndexByte(s, ','); idx > 0 {
			meta := s[len("data:"):idx]
			if semi := strings.IndexByte(meta, ';'); semi >= 0 {
				hintMIME = meta[:semi]
			} else {
				hintMIME = meta
			}
			s = s[idx+1:]
		}
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, hintMIME, nil
	} else if b2, err2 := base64.URLEncoding.DecodeString(s); err2 == nil {
		return b2, hintMIME, nil
	} else {
		return nil, "", errors.New(errors.CategoryValidation, "ml.decode_image", "Formato de imagem inválido.", err)
	}
}

// DataURL renders image bytes as a data URL for previews.
func DataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}
