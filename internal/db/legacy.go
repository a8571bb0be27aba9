package db

import (
	"context"
	"encoding/json"
	"fmt"
)

// CopyLegacyFile moves the JSON state kept by a file persister into dst, once. It does
// nothing when dst already holds state or the legacy file is missing, and reports
// whether a copy happened.
func CopyLegacyFile(ctx context.Context, legacyPath string, dst *SQLitePersister) (bool, error) {
	existing, err := dst.Load(ctx)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}
	blob, err := NewFilePersister(legacyPath).Load(ctx)
	if err != nil || blob == nil {
		return false, err
	}
	if !json.Valid(blob) {
		return false, fmt.Errorf("legacy state %s is not valid JSON", legacyPath)
	}
	if err := dst.Save(ctx, blob); err != nil {
		return false, err
	}
	return true, nil
}
