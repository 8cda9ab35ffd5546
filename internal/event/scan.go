package event

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"aep/pkg/logx"
)

// Scan loads every job folder under root that contains an EVENT.md.
//
// Folder order is sorted by name, which keeps registry order stable across
// runs. A folder that fails to load is logged and skipped; it never aborts
// the scan.
func Scan(root string, log logx.Logger) ([]*Definition, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("events root: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var defs []*Definition
	for _, name := range names {
		dir := filepath.Join(root, name)
		if _, err := os.Stat(filepath.Join(dir, ManifestName)); err != nil {
			continue
		}
		def, err := Load(dir)
		if err != nil {
			log.Warn("skipping event folder", logx.String("folder", name), logx.Err(err))
			continue
		}
		defs = append(defs, def)

		fields := []logx.Field{
			logx.String("event", def.Name),
			logx.String("type", string(def.Type)),
			logx.String("action", def.Action.Kind.String()+":"+def.Action.Target()),
		}
		if def.Schedule != nil {
			fields = append(fields, logx.String("schedule", def.ScheduleRaw))
		}
		log.Info("loaded event", fields...)
	}
	return defs, nil
}
