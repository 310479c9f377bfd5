package document

import (
	"bytes"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	paragraphBreak = regexp.MustCompile(`\n\s*\n`)
	queryTerm      = regexp.MustCompile(`[\p{L}\p{N}]{3,}`)
	nonSlug        = regexp.MustCompile(`[^a-z0-9]+`)
)

const maxQueryTerms = 32

// extractText returns the text of a PDF or plain-text document.
func extractText(data []byte) (string, error) {
	switch {
	case bytes.HasPrefix(data, pdfMagic):
		return extractPDF(data)
	case bytes.HasPrefix(data, zipMagic):
		return "", ErrUnsupportedFormat
	}
	if !utf8.Valid(data) || bytes.IndexByte(data, 0) >= 0 {
		return "", ErrUnreadable
	}
	return strings.ReplaceAll(string(data), "\r\n", "\n"), nil
}

// chunkText groups paragraphs into chunks of at most size bytes. Paragraphs
// longer than size are split on word boundaries.
func chunkText(text string, size int) []string {
	var chunks []string
	var cur strings.Builder

	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			chunks = append(chunks, s)
		}
		cur.Reset()
	}

	for _, para := range paragraphBreak.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if len(para) > size {
			flush()
			chunks = append(chunks, splitWords(para, size)...)
			continue
		}
		if cur.Len() > 0 && cur.Len()+len(para)+2 > size {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(para)
	}
	flush()
	return chunks
}

func splitWords(s string, size int) []string {
	var out []string
	var cur strings.Builder
	for _, w := range strings.Fields(s) {
		if cur.Len() > 0 && cur.Len()+len(w)+1 > size {
			out = append(out, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(w)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

// matchExpression turns free text into an FTS5 OR-query of quoted terms.
// Returns "" when the text has no usable terms.
func matchExpression(text string) string {
	seen := make(map[string]bool)
	var terms []string
	for _, t := range queryTerm.FindAllString(strings.ToLower(text), -1) {
		if seen[t] {
			continue
		}
		seen[t] = true
		terms = append(terms, `"`+t+`"`)
		if len(terms) == maxQueryTerms {
			break
		}
	}
	return strings.Join(terms, " OR ")
}

// toolName derives a tool identifier that model providers accept
// (letters, digits and underscores, at most 64 characters).
func toolName(docName, id string) string {
	slug := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(docName), "_"), "_")
	if len(slug) > 40 {
		slug = strings.TrimRight(slug[:40], "_")
	}
	if slug == "" {
		slug = "document"
	}
	return "search_" + slug + "_" + shortHash(id)
}
