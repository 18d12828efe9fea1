package modules

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/andybalholm/brotli"
	esbuild "github.com/evanw/esbuild/pkg/api"
)

// Format is how the engine turns prepared source into exports.
type Format string

const (
	FormatScript Format = "script"
	FormatJSON   Format = "json"
)

// maxDecodedSize caps the output of a compressed module file.
const maxDecodedSize = 16 * 1024 * 1024

var esmSyntax = regexp.MustCompile(`(?m)^[ \t]*(import[ \t]*[\w{*'"]|export[ \t]+|export[ \t]*[{*])`)

// Prepare turns raw file bytes into CommonJS source the engine can wrap.
// A trailing .br is decompressed first; the remaining extension then
// selects JSON, TypeScript or JavaScript handling.
func Prepare(filename string, raw []byte) (string, Format, error) {
	name := filename
	if strings.HasSuffix(name, ".br") {
		decoded, err := decodeBrotli(raw)
		if err != nil {
			return "", "", fmt.Errorf("decompressing %s: %w", filename, err)
		}
		raw = decoded
		name = strings.TrimSuffix(name, ".br")
	}

	src := stripShebang(string(raw))
	switch filepath.Ext(name) {
	case ".json":
		return src, FormatJSON, nil
	case ".ts", ".mts", ".cts":
		out, err := transform(name, src, esbuild.LoaderTS)
		return out, FormatScript, err
	case ".mjs":
		out, err := transform(name, src, esbuild.LoaderJS)
		return out, FormatScript, err
	}
	if NeedsTransform(src) {
		out, err := transform(name, src, esbuild.LoaderJS)
		return out, FormatScript, err
	}
	return src, FormatScript, nil
}

// NeedsTransform reports whether src uses ES module syntax at the start of
// a line.
func NeedsTransform(src string) bool {
	return esmSyntax.MatchString(src)
}

func transform(filename, src string, loader esbuild.Loader) (string, error) {
	result := esbuild.Transform(src, esbuild.TransformOptions{
		Loader:     loader,
		Format:     esbuild.FormatCommonJS,
		Target:     esbuild.ES2020,
		Platform:   esbuild.PlatformNeutral,
		Sourcefile: filename,
	})
	if len(result.Errors) > 0 {
		msgs := make([]string, 0, len(result.Errors))
		for _, e := range result.Errors {
			msgs = append(msgs, e.Text)
		}
		return "", fmt.Errorf("transforming %s: %s", filename, strings.Join(msgs, "; "))
	}
	return string(result.Code), nil
}

func decodeBrotli(data []byte) ([]byte, error) {
	r := brotli.NewReader(bytes.NewReader(data))
	out, err := io.ReadAll(io.LimitReader(r, maxDecodedSize+1))
	if err != nil {
		return nil, err
	}
	if len(out) > maxDecodedSize {
		return nil, fmt.Errorf("output exceeds %d bytes", maxDecodedSize)
	}
	return out, nil
}

// stripShebang comments out a leading #! line, keeping line numbers.
func stripShebang(src string) string {
	if strings.HasPrefix(src, "#!") {
		return "//" + src[2:]
	}
	return src
}
