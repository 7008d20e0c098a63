package extract

import (
	"fmt"
	"strings"
)

const (
	docxDocumentXMLPath = "word/document.xml"
	docxMainContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
)

// extractDOCX returns the text of every w:p paragraph of the main document part, joined by newlines.
// Blank paragraphs are kept as empty lines.
func extractDOCX(content []byte) (string, error) {
	zr, err := openZip(content, "DOCX")
	if err != nil {
		return "", err
	}
	docPath := partForContentType(zr, docxMainContentType)
	if docPath == "" {
		docPath = docxDocumentXMLPath
	}
	for _, f := range zr.File {
		if f.Name != docPath {
			continue
		}
		data, err := readZipFile(f)
		if err != nil {
			return "", err
		}
		paras, err := paragraphTexts(data, "p", "t")
		if err != nil {
			return "", err
		}
		return strings.Join(paras, "\n"), nil
	}
	return "", fmt.Errorf("%w: DOCX part %s not found", ErrMalformedDocument, docPath)
}
