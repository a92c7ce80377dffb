package models

import (
	"path/filepath"
)

// TextSource records where a page's tokens came from.
type TextSource string

const (
	SourceNone   TextSource = ""
	SourceNative TextSource = "native"
	SourceOCR    TextSource = "ocr"
	SourceMixed  TextSource = "mixed" // invoice pages came from both sources
)

// Page is one page of a loaded document. Tokens are appended during
// tokenization and read-only afterwards.
type Page struct {
	Number       int        `json:"number"` // 1-based
	DocumentPath string     `json:"document_path"`
	Width        float64    `json:"width"`  // points
	Height       float64    `json:"height"` // points
	Tokens       []Token    `json:"tokens,omitempty"`
	ImagePath    string     `json:"image_path,omitempty"` // set when the page was rendered for OCR
	Source       TextSource `json:"source,omitempty"`
}

// NewPage validates page dimensions.
func NewPage(number int, documentPath string, width, height float64) (Page, error) {
	if number < 1 {
		return Page{}, geometryErrorf("page", "page number %d out of range", number)
	}
	if width <= 0 || height <= 0 {
		return Page{}, geometryErrorf("page", "page %d has size %.2fx%.2f", number, width, height)
	}
	return Page{Number: number, DocumentPath: documentPath, Width: width, Height: height}, nil
}

// Document is a loaded PDF.
type Document struct {
	Filename  string `json:"filename"`
	Filepath  string `json:"filepath"`
	PageCount int    `json:"page_count"`
	Pages     []Page `json:"pages"`
}

// NewDocument checks that pages are numbered 1..n in order.
func NewDocument(path string, pages []Page) (*Document, error) {
	for i, p := range pages {
		if p.Number != i+1 {
			return nil, geometryErrorf("page", "page at position %d is numbered %d", i, p.Number)
		}
	}
	return &Document{
		Filename:  filepath.Base(path),
		Filepath:  path,
		PageCount: len(pages),
		Pages:     pages,
	}, nil
}

// NativeWord is a word from the embedded text layer, in points, top-left origin.
type NativeWord struct {
	Text   string
	Left   float64
	Top    float64
	Right  float64
	Bottom float64
	Font   *Font
}

// OCRWord is a recognized word in image pixel space.
type OCRWord struct {
	Text       string
	Left       float64
	Top        float64
	Width      float64
	Height     float64
	Confidence float64 // 0-100
}

// OCRPage is the output of one OCR pass over a rendered page image.
type OCRPage struct {
	Words       []OCRWord
	ImageWidth  float64
	ImageHeight float64
	ImagePath   string
}
