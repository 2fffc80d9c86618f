package dates

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"photo-tagger/internal/logging"

	"github.com/rwcarlsen/goexif/exif"
)

// digitsLayout is YYYYMMDDHHmmss.
const digitsLayout = "20060102150405"

// exifLayout is the EXIF 2.x DateTime format.
const exifLayout = "2006:01:02 15:04:05"

// filenamePattern captures an 8-digit date and a 6-digit time.
type filenamePattern struct {
	regex *regexp.Regexp
	desc  string
}

// Patterns are tried in order; first valid match wins.
var filenamePatterns = []filenamePattern{
	{regexp.MustCompile(`^.*_(\d{8})_(\d{6})\d{3}`), "prefixed timestamp with milliseconds (PXL, MVIMG)"},
	{regexp.MustCompile(`IMG(?:_E)?_(\d{8})_(\d{6})`), "IMG timestamp"},
	{regexp.MustCompile(`VID_(\d{8})_(\d{6})`), "VID timestamp"},
	{regexp.MustCompile(`^(\d{8})_(\d{6})`), "bare timestamp"},
}

// exifExtensions lists the formats goexif can decode.
var exifExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".tif":  true,
	".tiff": true,
}

// FromFilename returns the instant encoded in filename, if any.
func FromFilename(filename string) (time.Time, bool) {
	base := filepath.Base(filename)

	for _, p := range filenamePatterns {
		m := p.regex.FindStringSubmatch(base)
		if len(m) < 3 {
			continue
		}

		t, err := time.ParseInLocation(digitsLayout, m[1]+m[2], time.UTC)
		if err != nil {
			logging.Debug("Filename %s matched %s but digits are invalid: %v", base, p.desc, err)
			continue
		}
		return t, true
	}

	return time.Time{}, false
}

// ExtractDate returns the capture timestamp for filename, or fallbackMtime in
// UTC when no naming convention matches. It never fails.
func ExtractDate(filename string, fallbackMtime time.Time) time.Time {
	if t, ok := FromFilename(filename); ok {
		return t
	}
	return fallbackMtime.UTC()
}

// FromEXIF reads DateTimeOriginal (or DateTime) from the file at path.
func FromEXIF(path string) (time.Time, bool) {
	if !exifExtensions[strings.ToLower(filepath.Ext(path))] {
		return time.Time{}, false
	}

	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, false
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		logging.Debug("No EXIF data in %s: %v", path, err)
		return time.Time{}, false
	}

	for _, field := range []exif.FieldName{exif.DateTimeOriginal, exif.DateTime} {
		tag, err := x.Get(field)
		if err != nil {
			continue
		}
		s, err := tag.StringVal()
		if err != nil {
			continue
		}
		t, err := time.ParseInLocation(exifLayout, strings.TrimSpace(s), time.UTC)
		if err == nil {
			return t, true
		}
	}

	return time.Time{}, false
}

// Extractor resolves capture timestamps for files on disk.
type Extractor struct {
	// UseEXIF enables the EXIF lookup between the filename patterns and
	// the modification time fallback.
	UseEXIF bool
}

// NewExtractor creates an Extractor.
func NewExtractor(useEXIF bool) *Extractor {
	return &Extractor{UseEXIF: useEXIF}
}

// DateForFile returns the capture timestamp for the file at path whose
// modification time is modTime.
func (e *Extractor) DateForFile(path string, modTime time.Time) time.Time {
	if t, ok := FromFilename(path); ok {
		return t
	}

	if e != nil && e.UseEXIF {
		if t, ok := FromEXIF(path); ok {
			return t
		}
	}

	return modTime.UTC()
}
