package classify

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// MaxSampleBytes bounds the text handed to the engine.
const MaxSampleBytes = 64 * 1024

// ExtractText returns a text sample for payloads of a readable MIME type.
// Other types yield ErrUnsupportedFormat.
func ExtractText(mimeType string, data []byte) (string, error) {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, mimeType)
	}

	var text string
	switch {
	case mediaType == "text/html":
		text = htmlText(data)
	case strings.HasPrefix(mediaType, "text/"):
		text = string(data)
	case mediaType == "application/json":
		text, err = jsonText(data)
	case mediaType == "application/xml":
		text, err = xmlText(data)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, mediaType)
	}
	if err != nil {
		return "", err
	}
	return truncateUTF8(text)
}

func truncateUTF8(text string) (string, error) {
	if len(text) > MaxSampleBytes {
		text = text[:MaxSampleBytes]
		// drop a rune split by the cut
		for i := 0; i < utf8.UTFMax && len(text) > 0; i++ {
			r, size := utf8.DecodeLastRuneInString(text)
			if r != utf8.RuneError || size != 1 {
				break
			}
			text = text[:len(text)-1]
		}
	}
	if !utf8.ValidString(text) {
		return "", fmt.Errorf("%w: text is not valid UTF-8", ErrUnsupportedFormat)
	}
	return text, nil
}

func htmlText(data []byte) string {
	z := html.NewTokenizer(bytes.NewReader(data))
	var sb strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(sb.String())
		case html.StartTagToken:
			if name, _ := z.TagName(); isHiddenTag(name) {
				skip++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); isHiddenTag(name) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				sb.Write(z.Text())
				sb.WriteByte(' ')
			}
		}
	}
}

func isHiddenTag(name []byte) bool {
	return string(name) == "script" || string(name) == "style"
}

// jsonText concatenates every string value and object key in the document.
func jsonText(data []byte) (string, error) {
	if !json.Valid(data) {
		return "", fmt.Errorf("%w: invalid json", ErrUnsupportedFormat)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	var sb strings.Builder
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			return "", fmt.Errorf("%w: invalid json: %w", ErrUnsupportedFormat, err)
		}
		if s, ok := tok.(string); ok {
			sb.WriteString(s)
			sb.WriteByte(' ')
		}
	}
}

func xmlText(data []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var sb strings.Builder
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return strings.TrimSpace(sb.String()), nil
		}
		if err != nil {
			return "", fmt.Errorf("%w: invalid xml: %w", ErrUnsupportedFormat, err)
		}
		if cd, ok := tok.(xml.CharData); ok {
			if s := strings.TrimSpace(string(cd)); s != "" {
				sb.WriteString(s)
				sb.WriteByte(' ')
			}
		}
	}
}
