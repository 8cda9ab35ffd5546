//go:build !sqlite
// +build !sqlite

package audit

import (
	"errors"

	"aep/pkg/logx"
)

func openSQLite(cfg Config, log logx.Logger) (Sink, error) {
	_ = cfg
	_ = log
	return nil, errors.New("sqlite audit sink not built: build with -tags sqlite")
}
