package extract

import (
	"bytes"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"code.sajari.com/docconv"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

const (
	mimePDF  = "application/pdf"
	mimeDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeHTML = "text/html"
	mimeText = "text/plain"
)

// extTypes resolves MIME from the filename extension before any content
// sniffing. Unknown extensions fall through to magic-byte detection.
var extTypes = map[string]string{
	".pdf":  mimePDF,
	".docx": mimeDocx,
	".html": mimeHTML,
	".htm":  mimeHTML,
	".txt":  mimeText,
	".log":  mimeText,
	".md":   "text/markdown",
	".csv":  "text/csv",
	".json": "application/json",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".zip":  "application/zip",
	".exe":  "application/octet-stream",
	".bin":  "application/octet-stream",
}

// DetectMIME resolves a MIME type from the filename extension first, then
// from content magic bytes, defaulting to plain text.
func DetectMIME(filename string, content []byte) string {
	if t, ok := extTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return t
	}

	switch {
	case bytes.HasPrefix(content, []byte("%PDF")):
		return mimePDF
	case bytes.HasPrefix(content, []byte("PK\x03\x04")):
		head := content
		if len(head) > 1000 {
			head = head[:1000]
		}
		if bytes.Contains(head, []byte("word/")) {
			return mimeDocx
		}
		return "application/zip"
	case bytes.HasPrefix(content, []byte("<")):
		return mimeHTML
	}
	return mimeText
}

// Extractor converts raw evidence bytes into plain text, dispatching on the
// detected MIME type. Every failure is an *Error and is local to the one
// file being processed.
type Extractor struct {
	log *zap.Logger
}

func New(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{log: logger}
}

// Extract returns the text content of the file or an *Error naming the cause.
func (e *Extractor) Extract(filename string, content []byte) (string, error) {
	mimeType := DetectMIME(filename, content)
	e.log.Debug("extracting text", zap.String("filename", filename), zap.String("mime", mimeType))

	switch {
	case mimeType == mimePDF, mimeType == mimeDocx:
		return e.fromDocconv(content, mimeType)
	case mimeType == mimeHTML:
		return e.fromHTML(content)
	case strings.HasPrefix(mimeType, "text/"):
		return decodeText(content)
	default:
		return "", newError("unsupported file type: "+mimeType, nil)
	}
}

// fromDocconv handles PDF and wordprocessing archives.
func (e *Extractor) fromDocconv(content []byte, mimeType string) (string, error) {
	res, err := docconv.Convert(bytes.NewReader(content), mimeType, false)
	if err != nil {
		return "", newError("conversion failed", err)
	}
	if strings.TrimSpace(res.Body) == "" {
		return "", newError("no text extracted", nil)
	}
	return res.Body, nil
}

// fromHTML strips script and style subtrees and collapses the remaining
// visible text's whitespace.
func (e *Extractor) fromHTML(content []byte) (string, error) {
	raw, err := decodeText(content)
	if err != nil {
		return "", err
	}

	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return "", newError("invalid html", err)
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteString("\n")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	text := collapseWhitespace(sb.String())
	if text == "" {
		return "", newError("no text extracted from html", nil)
	}
	return text, nil
}

// textEncodings is the ordered decode fallback chain for plain text.
var textEncodings = []struct {
	name string
	enc  encoding.Encoding
}{
	{"latin-1", charmap.ISO8859_1},
	{"cp1252", charmap.Windows1252},
}

// decodeText decodes bytes as UTF-8 when valid, then walks the fixed
// fallback chain, failing only if no encoding accepts the input.
func decodeText(content []byte) (string, error) {
	if utf8.Valid(content) {
		return string(content), nil
	}
	for _, cand := range textEncodings {
		decoded, err := cand.enc.NewDecoder().Bytes(content)
		if err != nil {
			continue
		}
		return string(decoded), nil
	}
	return "", newError("undecodable text: no supported encoding matched", nil)
}

// collapseWhitespace trims each line, splits runs of spacing into phrases
// and rejoins the non-empty ones line per line.
func collapseWhitespace(s string) string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		for _, phrase := range strings.Split(strings.TrimSpace(line), "  ") {
			if p := strings.TrimSpace(phrase); p != "" {
				out = append(out, p)
			}
		}
	}
	return strings.Join(out, "\n")
}
