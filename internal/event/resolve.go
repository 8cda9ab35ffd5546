package event

import (
	"os"
	"path/filepath"
	"strings"
)

// resolveParams replaces string parameter values that name a file inside
// the event folder with that file's contents. Resolution happens once, at
// load time; the result is cached on the definition.
func resolveParams(params map[string]any, dir string) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = resolveValue(v, dir)
	}
	return out
}

// resolveValue resolves a single parameter value.
//
//   - Non-strings and strings that do not name an existing in-folder file
//     pass through verbatim.
//   - A ".txt" file becomes an ordered list of its non-blank, non-comment
//     lines (recipient-list convention, '#' starts a comment).
//   - Any other file becomes its trimmed contents.
//
// Paths that escape the event folder are never read.
func resolveValue(v any, dir string) any {
	s, ok := v.(string)
	if !ok || s == "" {
		return v
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return v
	}
	cand := filepath.Join(absDir, filepath.FromSlash(s))
	rel, err := filepath.Rel(absDir, cand)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return v
	}

	info, err := os.Stat(cand)
	if err != nil || info.IsDir() {
		return v
	}
	raw, err := os.ReadFile(cand)
	if err != nil {
		return v
	}

	if strings.HasSuffix(s, ".txt") {
		return textLines(string(raw))
	}
	return strings.TrimSpace(string(raw))
}

// textLines filters a recipients-style file down to its meaningful lines.
func textLines(raw string) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if out == nil {
		out = []string{}
	}
	return out
}
