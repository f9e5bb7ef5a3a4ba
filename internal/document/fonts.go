package document

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// FontSet holds the TTF data used by both the PDF and the signature raster.
// Load it once at startup and share it; it is read-only after LoadFonts.
type FontSet struct {
	Regular []byte
	Bold    []byte

	regular *opentype.Font
	bold    *opentype.Font
}

// LoadFonts reads the configured TTF files. A file that is missing or does not
// parse is replaced by the bundled Go font of the same weight, which covers Cyrillic.
func LoadFonts(regularPath, boldPath string, log logrus.FieldLogger) *FontSet {
	fs := &FontSet{}
	fs.Regular, fs.regular = loadTTF(regularPath, goregular.TTF, log)
	fs.Bold, fs.bold = loadTTF(boldPath, gobold.TTF, log)
	return fs
}

func loadTTF(path string, fallback []byte, log logrus.FieldLogger) ([]byte, *opentype.Font) {
	if path != "" {
		b, err := os.ReadFile(path)
		if err == nil {
			f, perr := opentype.Parse(b)
			if perr == nil {
				return b, f
			}
			err = perr
		}
		log.WithError(err).WithField("path", path).Warn("font unavailable, using bundled font")
	}
	f, err := opentype.Parse(fallback)
	if err != nil {
		// bundled fonts always parse
		panic(fmt.Sprintf("bundled font: %v", err))
	}
	return fallback, f
}

// face returns a raster face at size px (72 DPI, so 1pt = 1px).
func (fs *FontSet) face(bold bool, size float64) (font.Face, error) {
	f := fs.regular
	if bold {
		f = fs.bold
	}
	return opentype.NewFace(f, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
}
