//go:build !sqlite
// +build !sqlite

package history

import (
	"errors"

	logx "webtexter/pkg/logx"
)

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	_ = cfg
	_ = log
	return nil, errors.New("sqlite history driver not compiled in (build with -tags sqlite)")
}
