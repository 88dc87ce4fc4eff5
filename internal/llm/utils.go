package llm

import (
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/joseph-ayodele/labreports/constants"
)

// MaxImageBytes caps inline image size; larger pages are rejected before upload.
const MaxImageBytes = 20 << 20

// LoadImage reads an image file and resolves its MIME type from the extension.
func LoadImage(path string) (Image, error) {
	st, err := os.Stat(path)
	if err != nil {
		return Image{}, err
	}
	if st.Size() > MaxImageBytes {
		return Image{}, fmt.Errorf("image %s is %d bytes, limit %d", filepath.Base(path), st.Size(), MaxImageBytes)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Image{}, err
	}
	return Image{MIMEType: mimeFor(path), Data: b}, nil
}

// DataURL renders the image as a base64 data URL.
func (i Image) DataURL() string {
	return "data:" + i.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

func mimeFor(path string) string {
	ext := constants.NormalizeExt(filepath.Ext(path))
	mt := mime.TypeByExtension("." + ext)
	if mt == "" {
		// fallbacks
		switch ext {
		case "jpg", "jpeg":
			mt = "image/jpeg"
		case "png":
			mt = "image/png"
		case "webp":
			mt = "image/webp"
		case "gif":
			mt = "image/gif"
		default:
			mt = "application/octet-stream"
		}
	}
	return mt
}
