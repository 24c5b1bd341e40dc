package ffmpeg

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WriteConcatList writes a concat demuxer list naming files in order.
func WriteConcatList(listPath string, files []string) error {
	if len(files) == 0 {
		return fmt.Errorf("concat list: no inputs")
	}
	var b strings.Builder
	for _, file := range files {
		abs, err := filepath.Abs(file)
		if err != nil {
			return fmt.Errorf("concat list: %w", err)
		}
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(abs, "'", `'\''`))
		b.WriteString("'\n")
	}
	return os.WriteFile(listPath, []byte(b.String()), 0o644)
}

// EscapeText escapes a value for use inside a drawtext text='...' option.
func EscapeText(value string) string {
	replacer := strings.NewReplacer(
		`\`, `\\\\`,
		`'`, `'\\\''`,
		`:`, `\:`,
		`%`, `\%`,
		`,`, `\,`,
	)
	return replacer.Replace(value)
}
