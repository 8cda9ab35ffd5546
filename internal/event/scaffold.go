package event

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"aep/internal/schedule"
)

// ScaffoldOptions describes a new scheduled mail-style event to write to
// disk. Recipients and Body land in reference files so the manifest can
// point at them the usual way.
type ScaffoldOptions struct {
	Name        string
	Description string
	Schedule    string
	Tool        string
	Recipients  []string
	Subject     string
	Body        string
}

// Scaffold creates the job folder for opts under root and returns its path.
// The schedule is compiled up front so a bad schedule never reaches disk.
// The caller is expected to Load the folder afterwards and splice the
// definition into the running engine.
func Scaffold(root string, opts ScaffoldOptions) (string, error) {
	name := slug(opts.Name)
	if name == "" {
		return "", fmt.Errorf("event name required")
	}
	if opts.Schedule == "" {
		opts.Schedule = "every 10 minutes"
	}
	if _, err := schedule.Compile(opts.Schedule); err != nil {
		return "", err
	}
	if opts.Tool == "" {
		opts.Tool = "mail_send"
	}
	if opts.Subject == "" {
		opts.Subject = "Event Notification"
	}
	if opts.Body == "" {
		opts.Body = "This is an automated event notification."
	}
	if opts.Description == "" {
		opts.Description = "No description."
	}

	dir := filepath.Join(root, name)
	if _, err := os.Stat(dir); err == nil {
		return "", fmt.Errorf("event %q already exists", name)
	}
	for _, sub := range []string{"scripts", "references"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return "", err
		}
	}

	recipients := "# Team members, one address per line\n# Lines starting with # are ignored\n\n"
	if len(opts.Recipients) > 0 {
		recipients += strings.Join(opts.Recipients, "\n") + "\n"
	} else {
		recipients += "recipient@example.com\n"
	}
	if err := os.WriteFile(filepath.Join(dir, "references", "team-members.txt"), []byte(recipients), 0o644); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, "references", "mail-template.md"), []byte(opts.Body), 0o644); err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "---\n")
	fmt.Fprintf(&b, "name: %s\n", name)
	fmt.Fprintf(&b, "description: %s\n", yamlQuote(opts.Description))
	fmt.Fprintf(&b, "type: scheduled\n")
	fmt.Fprintf(&b, "schedule: %s\n", yamlQuote(opts.Schedule))
	fmt.Fprintf(&b, "action:\n")
	fmt.Fprintf(&b, "  mcp: %s\n", opts.Tool)
	fmt.Fprintf(&b, "  params:\n")
	fmt.Fprintf(&b, "    to: references/team-members.txt\n")
	fmt.Fprintf(&b, "    subject: %s\n", yamlQuote(opts.Subject))
	fmt.Fprintf(&b, "    body: references/mail-template.md\n")
	fmt.Fprintf(&b, "---\n\n")
	fmt.Fprintf(&b, "# %s\n\n%s\n\nFires on schedule: `%s`\n", name, opts.Description, opts.Schedule)

	if err := os.WriteFile(filepath.Join(dir, ManifestName), []byte(b.String()), 0o644); err != nil {
		return "", err
	}
	return dir, nil
}

func slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.ReplaceAll(s, " ", "-")
}

func yamlQuote(s string) string {
	return fmt.Sprintf("%q", s)
}
