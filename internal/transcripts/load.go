package transcripts

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/ledongthuc/pdf"
)

// MaxUploadBytes caps uploaded transcript files.
const MaxUploadBytes = 5 << 20

const (
	mimeText     = "text/plain"
	mimeMarkdown = "text/markdown"
	mimeCSV      = "text/csv"
	mimeHTML     = "text/html"
	mimePDF      = "application/pdf"
	mimeDOCX     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

var (
	ErrUnsupported = errors.New("unsupported transcript format")
	ErrEmpty       = errors.New("no text found in file")
	ErrTooLarge    = errors.New("transcript file too large")
)

// Load reads an uploaded file and returns its plain text.
func Load(ctx context.Context, r io.Reader, contentType, fileName string) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return "", fmt.Errorf("read transcript: %w", err)
	}
	if len(data) > MaxUploadBytes {
		return "", ErrTooLarge
	}
	return FromBytes(ctx, data, contentType, fileName)
}

// FromBytes extracts text from an in-memory payload.
func FromBytes(ctx context.Context, data []byte, contentType, fileName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var (
		text string
		err  error
	)
	switch kind := Detect(contentType, fileName, data); kind {
	case mimeText, mimeMarkdown, mimeCSV:
		text, err = plainText(data)
	case mimeHTML:
		text, err = htmlText(data)
	case mimePDF:
		text, err = pdfText(data)
	case mimeDOCX:
		text, err = docxText(data)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupported, kind)
	}
	if err != nil {
		return "", err
	}
	text = normalizeWhitespace(text)
	if text == "" {
		return "", ErrEmpty
	}
	return text, nil
}

// Detect resolves the media type from the header, the file extension and
// finally the content itself.
func Detect(contentType, fileName string, data []byte) string {
	clean := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	switch clean {
	case mimeText, mimeMarkdown, mimeCSV, mimeHTML, mimePDF, mimeDOCX:
		return clean
	case "application/xhtml+xml":
		return mimeHTML
	case "text/x-markdown":
		return mimeMarkdown
	}

	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".txt", ".text", ".log":
		return mimeText
	case ".md", ".markdown":
		return mimeMarkdown
	case ".csv":
		return mimeCSV
	case ".html", ".htm":
		return mimeHTML
	case ".pdf":
		return mimePDF
	case ".docx":
		return mimeDOCX
	}

	if clean == "application/zip" && isDOCX(data) {
		return mimeDOCX
	}
	sniffed := strings.Split(http.DetectContentType(data), ";")[0]
	switch sniffed {
	case mimeText, mimeHTML, mimePDF:
		return sniffed
	case "application/zip":
		if isDOCX(data) {
			return mimeDOCX
		}
	}
	if clean != "" {
		return clean
	}
	return sniffed
}

func plainText(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: text is not valid UTF-8", ErrUnsupported)
	}
	return string(data), nil
}

func htmlText(data []byte) (string, error) {
	article, err := readability.FromReader(bytes.NewReader(data), nil)
	if err == nil {
		if text := strings.TrimSpace(article.TextContent); text != "" {
			return text, nil
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript").Remove()
	var parts []string
	doc.Find("body").Find("h1, h2, h3, h4, p, li, td, pre").Each(func(_ int, sel *goquery.Selection) {
		if text := strings.TrimSpace(sel.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	if len(parts) == 0 {
		return strings.TrimSpace(doc.Find("body").Text()), nil
	}
	return strings.Join(parts, "\n"), nil
}

func pdfText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func docxText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	var docFile *zip.File
	for _, f := range zr.File {
		if strings.ReplaceAll(f.Name, "\\", "/") == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return "", errors.New("document.xml file not found")
	}

	rc, err := docFile.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	decoder := xml.NewDecoder(rc)
	var buf strings.Builder
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse docx: %w", err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			buf.Write(t)
		case xml.StartElement:
			if t.Name.Local == "tab" {
				buf.WriteString("\t")
			}
		case xml.EndElement:
			if (t.Name.Local == "p" || t.Name.Local == "br") && buf.Len() > 0 {
				buf.WriteString("\n")
			}
		}
	}
	return buf.String(), nil
}

func isDOCX(data []byte) bool {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return false
	}
	for _, f := range zr.File {
		if strings.ReplaceAll(f.Name, "\\", "/") == "word/document.xml" {
			return true
		}
	}
	return false
}

// normalizeWhitespace trims lines and collapses runs of blank lines.
func normalizeWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if strings.TrimSpace(line) == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
