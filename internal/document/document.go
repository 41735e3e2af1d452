// Package document assembles downloaded page images into a single PDF.
package document

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/webp" // pages are sometimes served as webp

	fileutil "mangadl/internal/file"
)

const (
	defaultJPEGQuality = 90
	scratchPattern     = ".assemble-*"
)

var ErrNoReadablePages = errors.New("no readable pages")

func init() {
	// keep pdfcpu from creating a config dir in the user's home
	api.DisableConfigDir()
}

// PageResult describes what happened to one input image.
type PageResult struct {
	Path string `json:"path"`
	Err  string `json:"error,omitempty"`
}

// Report is the outcome of one assembly. Skipped is set when there was
// nothing to assemble.
type Report struct {
	Output   string       `json:"output,omitempty"`
	Pages    []PageResult `json:"pages"`
	Included int          `json:"included"`
	Skipped  bool         `json:"skipped,omitempty"`
}

// ImportFunc writes the given images, one per page and in order, into outFile.
type ImportFunc func(images []string, outFile string) error

type Assembler struct {
	quality    int
	importPDFs ImportFunc
}

func NewAssembler() *Assembler {
	return &Assembler{quality: defaultJPEGQuality, importPDFs: importImages}
}

func importImages(images []string, outFile string) error {
	conf := pdfmodel.NewDefaultConfiguration()
	conf.ValidationMode = pdfmodel.ValidationRelaxed
	if err := api.ImportImagesFile(images, outFile, pdfcpu.DefaultImportConfig(), conf); err != nil {
		return fmt.Errorf("import images: %w", err)
	}
	return nil
}

// Assemble writes the images at paths into outputPath, one page per image in
// the given order. Unreadable images are skipped and reported; the call only
// fails when no image could be used or the PDF cannot be written. An empty
// paths slice is a no-op.
func (a *Assembler) Assemble(ctx context.Context, paths []string, outputPath string) (Report, error) {
	report := Report{Pages: make([]PageResult, len(paths))}
	if len(paths) == 0 {
		report.Skipped = true
		return report, nil
	}

	outDir := filepath.Dir(outputPath)
	if err := fileutil.EnsureDir(outDir); err != nil {
		return report, err
	}
	scratch, err := os.MkdirTemp(outDir, scratchPattern)
	if err != nil {
		return report, fmt.Errorf("create scratch dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(scratch) }()

	normalized := make([]string, 0, len(paths))
	for i, src := range paths {
		report.Pages[i].Path = src
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("assemble cancelled: %w", err)
		}
		dst := filepath.Join(scratch, fmt.Sprintf("%05d.jpg", i+1))
		if err := a.normalize(src, dst); err != nil {
			report.Pages[i].Err = err.Error()
			log.Warn().Str("path", src).Err(err).Msg("skipping unreadable page")
			continue
		}
		normalized = append(normalized, dst)
	}
	if len(normalized) == 0 {
		return report, fmt.Errorf("%w: %d of %d images failed to decode", ErrNoReadablePages, len(paths), len(paths))
	}

	// pdfcpu appends to an existing file, so build in scratch and move into place
	tmpOut := filepath.Join(scratch, "out.pdf")
	if err := a.importPDFs(normalized, tmpOut); err != nil {
		return report, err
	}
	if err := fileutil.RemoveIfExists(outputPath); err != nil {
		return report, err
	}
	if err := os.Rename(tmpOut, outputPath); err != nil {
		return report, fmt.Errorf("move document: %w", err)
	}
	report.Output = outputPath
	report.Included = len(normalized)
	return report, nil
}

// normalize decodes src, flattens it onto white to drop alpha and palette
// modes, and re-encodes it as an RGB JPEG at dst.
func (a *Assembler) normalize(src, dst string) error {
	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(src), err)
	}
	bounds := img.Bounds()
	if bounds.Empty() {
		return fmt.Errorf("decode %s: empty image", filepath.Base(src))
	}
	canvas := imaging.New(bounds.Dx(), bounds.Dy(), color.White)
	canvas = imaging.Overlay(canvas, img, image.Pt(0, 0), 1.0)
	if err := imaging.Save(canvas, dst, imaging.JPEGQuality(a.quality)); err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(src), err)
	}
	return nil
}
