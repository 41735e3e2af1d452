// Package layout derives the on-disk location of a chapter.
package layout

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	fileutil "mangadl/internal/file"
	"mangadl/internal/model"
)

const minPageDigits = 3

var ErrUnsafeComponent = errors.New("unsafe path component")

// SanitizeName replaces every rune that is not a letter or digit with '_'.
func SanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return '_'
	}, name)
}

// TitleDirName returns the sanitized part of the slug after its numeric id,
// e.g. "118--hellsing" becomes "hellsing".
func TitleDirName(slug string) string {
	slug = strings.TrimSpace(slug)
	if _, rest, found := strings.Cut(slug, "--"); found {
		slug = rest
	}
	return SanitizeName(slug)
}

// numberComponent keeps '.' and '-' so chapter "10.5" stays readable.
func numberComponent(value string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '-' {
			return r
		}
		return '_'
	}, strings.TrimSpace(value))
	if cleaned == "" || cleaned == "." || cleaned == ".." {
		return "", fmt.Errorf("%w: %q", ErrUnsafeComponent, value)
	}
	return cleaned, nil
}

// ChapterDir returns <root>/<title>/Volume_<v>/Chapter_<c> without touching disk.
func ChapterDir(root string, ref model.ChapterRef) (string, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}
	title := TitleDirName(ref.Slug)
	if title == "" {
		return "", fmt.Errorf("%w: slug %q", ErrUnsafeComponent, ref.Slug)
	}
	volume, err := numberComponent(ref.Volume)
	if err != nil {
		return "", err
	}
	chapter, err := numberComponent(ref.Chapter)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, title, "Volume_"+volume, "Chapter_"+chapter), nil
}

// Plan resolves the chapter directory and creates it. Planning the same
// reference twice yields the same path and succeeds both times.
func Plan(root string, ref model.ChapterRef) (string, error) {
	dir, err := ChapterDir(root, ref)
	if err != nil {
		return "", err
	}
	if err := fileutil.EnsureDir(dir); err != nil {
		return "", err
	}
	return dir, nil
}

// DocumentName is the PDF file name placed inside the chapter directory.
func DocumentName(ref model.ChapterRef) string {
	volume, err := numberComponent(ref.Volume)
	if err != nil {
		volume = SanitizeName(ref.Volume)
	}
	chapter, err := numberComponent(ref.Chapter)
	if err != nil {
		chapter = SanitizeName(ref.Chapter)
	}
	return "Volume_" + volume + "_Chapter_" + chapter + ".pdf"
}

// PageFileName zero-pads index so lexical order on disk equals page order.
func PageFileName(index, total int) string {
	width := len(strconv.Itoa(total))
	if width < minPageDigits {
		width = minPageDigits
	}
	return fmt.Sprintf("%0*d.jpg", width, index)
}
