package controlplane

import (
	"fmt"
	"maps"
	"slices"

	"go.uber.org/zap"

	"github.com/yanet-platform/yatable/tables"
)

// Bootstrap creates the configured tables and fills them with their
// entries.
func Bootstrap(registry *tables.Registry, cfgs []TableConfig, log *zap.SugaredLogger) error {
	for idx := range cfgs {
		cfg := &cfgs[idx]

		spec, err := cfg.Spec()
		if err != nil {
			return err
		}

		id, err := registry.Create(spec)
		if err != nil {
			return fmt.Errorf("failed to create table %q: %w", cfg.Name, err)
		}

		for _, key := range slices.Sorted(maps.Keys(cfg.Entries)) {
			k, maskLen, err := tables.ParseKey(spec.Type, key)
			if err != nil {
				return fmt.Errorf("table %q: failed to parse key %q: %w", cfg.Name, key, err)
			}

			entry := tables.TEntry{
				Key:     k,
				MaskLen: maskLen,
				Value:   tables.Value(cfg.Entries[key]),
			}
			if _, err := registry.AddEntry(tables.ByID(id), entry); err != nil {
				return fmt.Errorf("table %q: failed to add %q: %w", cfg.Name, key, err)
			}
		}

		log.Infow("bootstrapped table",
			zap.String("name", cfg.Name),
			zap.Uint32("set", cfg.Set),
			zap.Stringer("kidx", id),
			zap.Int("entries", len(cfg.Entries)),
		)
	}

	return nil
}
