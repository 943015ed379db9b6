package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"io"
	"regexp"
	"sort"
	"strings"
)

const (
	contentTypesPath    = "[Content_Types].xml"
	docxDefaultPath     = "word/document.xml"
	docxMainContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
	pptxSlidePrefix     = "ppt/slides/slide"
	odfContentPath      = "content.xml"
)

var (
	wordText  = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)
	drawText  = regexp.MustCompile(`<a:t[^>]*>([^<]*)</a:t>`)
	odfText   = regexp.MustCompile(`<text:(?:p|span|h)[^>]*>([^<]*)</text:(?:p|span|h)>`)
	docxPart  = regexp.MustCompile(`<Override[^>]+PartName="([^"]+)"[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"`)
	docxPart2 = regexp.MustCompile(`<Override[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"[^>]+PartName="([^"]+)"`)
)

// officeArchive is a zipped office document.
type officeArchive struct {
	kind string
	zr   *zip.Reader
}

func openArchive(kind string, content []byte) (*officeArchive, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("extract %s: not a zip: %w", kind, err)
	}
	return &officeArchive{kind: kind, zr: zr}, nil
}

// read returns the named entry, or nil when it does not exist.
func (a *officeArchive) read(name string) ([]byte, error) {
	for _, f := range a.zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("extract %s: open %s: %w", a.kind, name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("extract %s: read %s: %w", a.kind, name, err)
		}
		return data, nil
	}
	return nil, nil
}

// mustRead is read but a missing entry is an error.
func (a *officeArchive) mustRead(name string) ([]byte, error) {
	data, err := a.read(name)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("extract %s: %s not found", a.kind, name)
	}
	return data, nil
}

// collectText appends the first capture group of every match, space separated.
func collectText(b *strings.Builder, xml []byte, re *regexp.Regexp) {
	for _, m := range re.FindAllSubmatch(xml, -1) {
		text := strings.TrimSpace(html.UnescapeString(string(m[1])))
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(text)
	}
}

// extractDOCX reads the main document part named in [Content_Types].xml, falling back
// to word/document.xml.
func extractDOCX(content []byte) (string, error) {
	a, err := openArchive("DOCX", content)
	if err != nil {
		return "", err
	}
	docPath := docxDefaultPath
	if ct, err := a.read(contentTypesPath); err == nil && ct != nil {
		for _, re := range []*regexp.Regexp{docxPart, docxPart2} {
			if m := re.FindSubmatch(ct); m != nil {
				docPath = strings.TrimPrefix(string(m[1]), "/")
				break
			}
		}
	}
	xml, err := a.mustRead(docPath)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	collectText(&b, xml, wordText)
	return b.String(), nil
}

// extractPPTX reads every slide in slide order.
func extractPPTX(content []byte) (string, error) {
	a, err := openArchive("PPTX", content)
	if err != nil {
		return "", err
	}
	var slides []string
	for _, f := range a.zr.File {
		if strings.HasPrefix(f.Name, pptxSlidePrefix) && strings.HasSuffix(f.Name, ".xml") {
			slides = append(slides, f.Name)
		}
	}
	sort.Slice(slides, func(i, j int) bool {
		if len(slides[i]) != len(slides[j]) {
			return len(slides[i]) < len(slides[j])
		}
		return slides[i] < slides[j]
	})
	var b strings.Builder
	for _, name := range slides {
		xml, err := a.mustRead(name)
		if err != nil {
			return "", err
		}
		collectText(&b, xml, drawText)
	}
	return b.String(), nil
}

// extractODF reads content.xml of an OpenDocument presentation or spreadsheet.
func extractODF(content []byte) (string, error) {
	a, err := openArchive("ODF", content)
	if err != nil {
		return "", err
	}
	xml, err := a.mustRead(odfContentPath)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	collectText(&b, xml, odfText)
	return b.String(), nil
}
