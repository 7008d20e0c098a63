package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

const contentTypesPath = "[Content_Types].xml"

type contentTypes struct {
	Overrides []struct {
		PartName    string `xml:"PartName,attr"`
		ContentType string `xml:"ContentType,attr"`
	} `xml:"Override"`
}

func openZip(content []byte, format string) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not a zip archive: %v", ErrMalformedDocument, format, err)
	}
	return zr, nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrMalformedDocument, f.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrMalformedDocument, f.Name, err)
	}
	return data, nil
}

// partForContentType returns the part name declared in [Content_Types].xml for contentType,
// without the leading slash, or "" when not declared.
func partForContentType(zr *zip.Reader, contentType string) string {
	for _, f := range zr.File {
		if f.Name != contentTypesPath {
			continue
		}
		data, err := readZipFile(f)
		if err != nil {
			return ""
		}
		var ct contentTypes
		if err := xml.Unmarshal(data, &ct); err != nil {
			return ""
		}
		for _, o := range ct.Overrides {
			if o.ContentType == contentType {
				return strings.TrimPrefix(o.PartName, "/")
			}
		}
		return ""
	}
	return ""
}

// paragraphTexts walks OOXML and returns the text of each paragraph element, in document order.
// paraLocal and textLocal are the local names of the paragraph and text-run elements ("p" and "t").
// Empty paragraphs yield empty strings. Tabs and line breaks inside a paragraph are kept.
func paragraphTexts(data []byte, paraLocal, textLocal string) ([]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var (
		paras  []string
		stack  []*strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: parse XML: %v", ErrMalformedDocument, err)
		}
		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case paraLocal:
				stack = append(stack, &strings.Builder{})
			case textLocal:
				inText = true
			case "tab":
				if len(stack) > 0 {
					stack[len(stack)-1].WriteByte('\t')
				}
			case "br", "cr":
				if len(stack) > 0 {
					stack[len(stack)-1].WriteByte('\n')
				}
			}
		case xml.EndElement:
			switch el.Name.Local {
			case paraLocal:
				if len(stack) > 0 {
					paras = append(paras, stack[len(stack)-1].String())
					stack = stack[:len(stack)-1]
				}
			case textLocal:
				inText = false
			}
		case xml.CharData:
			if inText && len(stack) > 0 {
				stack[len(stack)-1].Write(el)
			}
		}
	}
	return paras, nil
}
