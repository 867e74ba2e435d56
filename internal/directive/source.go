package directive

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// LookupEncoding resolves a codec name. WHATWG labels are tried first, then
// IANA names, then the name with separators dropped ("latin_1" -> "latin1").
func LookupEncoding(name string) (encoding.Encoding, error) {
	label := strings.ToLower(strings.TrimSpace(name))
	if label == "" {
		return nil, fmt.Errorf("empty encoding name")
	}

	candidates := []string{
		label,
		strings.ReplaceAll(label, "_", "-"),
		strings.NewReplacer("_", "", "-", "").Replace(label),
	}

	for _, c := range candidates {
		if enc, err := htmlindex.Get(c); err == nil {
			return enc, nil
		}
		if enc, err := ianaindex.IANA.Encoding(c); err == nil && enc != nil {
			return enc, nil
		}
	}
	return nil, fmt.Errorf("unknown encoding %q", name)
}

// resolvePath maps a directive file argument to a path relative to the
// source root and an absolute path. Names starting with "/" are relative to
// the source root, others to the document directory.
func resolvePath(sourceRoot, docDir, arg string) (rel, abs string) {
	arg = filepath.FromSlash(strings.TrimSpace(arg))
	if strings.HasPrefix(arg, string(filepath.Separator)) {
		abs = filepath.Join(sourceRoot, strings.TrimLeft(arg, string(filepath.Separator)))
	} else {
		abs = filepath.Join(docDir, arg)
	}

	rel, err := filepath.Rel(sourceRoot, abs)
	if err != nil {
		rel = abs
	}
	return filepath.ToSlash(rel), abs
}

// readSource reads path and decodes it strictly with the named encoding.
func readSource(path, encodingName string) (string, error) {
	enc, err := LookupEncoding(encodingName)
	if err != nil {
		return "", configError("%v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", ioError(path, err)
	}

	text, err := decode(data, enc)
	if err != nil {
		return "", decodeError(encodingName, path, err)
	}
	return text, nil
}

// decode converts data to a string and fails on any byte sequence that is
// invalid in enc, where the decoder would otherwise substitute U+FFFD.
func decode(data []byte, enc encoding.Encoding) (string, error) {
	if enc == unicode.UTF8 {
		data = bytes.TrimPrefix(data, utf8BOM)
		if !utf8.Valid(data) {
			return "", fmt.Errorf("invalid UTF-8 input")
		}
		return string(data), nil
	}

	out, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return "", fmt.Errorf("failed to decode: %w", err)
	}
	if bytes.ContainsRune(out, utf8.RuneError) {
		return "", fmt.Errorf("input contains bytes that are invalid in this encoding")
	}
	return string(out), nil
}
