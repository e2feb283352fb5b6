//go:build !cgo

package dolt

import (
	"context"
	"database/sql"
	"fmt"
)

// openEmbedded reports the build limitation in non-cgo builds. The embedded
// driver needs cgo; server mode works without it.
func openEmbedded(_ context.Context, _ *Config) (*sql.DB, func() error, error) {
	return nil, nil, fmt.Errorf("embedded dolt requires a cgo build; connect to a dolt sql-server instead")
}
