package event

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"

	"aep/internal/schedule"
)

// ManifestName is the declarative manifest each job folder must contain.
const ManifestName = "EVENT.md"

const frontmatterDelim = "---"

// manifest mirrors the YAML frontmatter of EVENT.md.
type manifest struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Type        string       `yaml:"type"`
	Schedule    string       `yaml:"schedule"`
	Active      bool         `yaml:"active"`
	Action      *actionBlock `yaml:"action"`
	Script      string       `yaml:"script"`
}

type actionBlock struct {
	MCP    string         `yaml:"mcp"`
	Script string         `yaml:"script"`
	Params map[string]any `yaml:"params"`
}

// Load reads one job folder's EVENT.md, validates the header, compiles the
// schedule and resolves file-backed parameters. The folder name becomes the
// event name.
func Load(dir string) (*Definition, error) {
	folder := filepath.Base(dir)
	path := filepath.Join(dir, ManifestName)

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &ManifestError{Folder: folder, Reason: "no " + ManifestName, Err: err}
	}

	header, err := splitFrontmatter(string(raw))
	if err != nil {
		return nil, &ManifestError{Folder: folder, Reason: err.Error()}
	}

	var m manifest
	if err := yaml.Unmarshal([]byte(header), &m); err != nil {
		return nil, &ManifestError{Folder: folder, Reason: "invalid frontmatter", Err: err}
	}

	if strings.TrimSpace(m.Type) == "" {
		return nil, &ManifestError{Folder: folder, Reason: "missing required field: type"}
	}
	typ := Type(strings.TrimSpace(m.Type))
	if !typ.Valid() {
		return nil, &ManifestError{Folder: folder, Reason: fmt.Sprintf("unknown type %q", m.Type)}
	}

	action, err := normalizeAction(folder, &m)
	if err != nil {
		return nil, err
	}

	def := &Definition{
		Name:        folder,
		Description: strings.TrimSpace(m.Description),
		Type:        typ,
		Action:      action,
		Active:      m.Active,
		Dir:         dir,
	}

	if typ == TypeScheduled && strings.TrimSpace(m.Schedule) != "" {
		rule, err := schedule.Compile(m.Schedule)
		if err != nil {
			return nil, err
		}
		def.ScheduleRaw = strings.TrimSpace(m.Schedule)
		def.Schedule = &rule
	}

	def.ResolvedParams = resolveParams(action.Params, dir)
	return def, nil
}

// normalizeAction converts the manifest's action/script keys into the
// tagged Action variant. A bare top-level "script" key is shorthand for an
// action with only a script.
func normalizeAction(folder string, m *manifest) (Action, error) {
	if m.Action == nil && strings.TrimSpace(m.Script) == "" {
		return Action{}, &ManifestError{Folder: folder, Reason: "must have 'action' or 'script'"}
	}
	if m.Action == nil {
		return Action{Kind: ActionScript, Script: strings.TrimSpace(m.Script)}, nil
	}

	tool := strings.TrimSpace(m.Action.MCP)
	script := strings.TrimSpace(m.Action.Script)
	switch {
	case tool != "":
		return Action{Kind: ActionTool, Tool: tool, Params: m.Action.Params}, nil
	case script != "":
		return Action{Kind: ActionScript, Script: script, Params: m.Action.Params}, nil
	default:
		return Action{}, &ManifestError{Folder: folder, Reason: "action needs 'mcp' or 'script'"}
	}
}

// splitFrontmatter extracts the YAML header between the opening and closing
// delimiter lines.
func splitFrontmatter(raw string) (string, error) {
	if !strings.HasPrefix(raw, frontmatterDelim) {
		return "", &frontmatterErr{"must start with " + frontmatterDelim + " frontmatter"}
	}
	parts := strings.SplitN(raw, frontmatterDelim, 3)
	if len(parts) < 3 {
		return "", &frontmatterErr{"frontmatter not closed with " + frontmatterDelim}
	}
	return parts[1], nil
}

type frontmatterErr struct{ msg string }

func (e *frontmatterErr) Error() string { return e.msg }
