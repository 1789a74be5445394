package store

import "github.com/pkg/errors"

// Migrate rewrites sc in-memory to CurrentVersion if it was persisted at
// an older schema version, refusing to load versions newer than this
// binary understands (spec §4.6 "Versioning").
func Migrate(sc SerializedConversation) (SerializedConversation, error) {
	if sc.Version > CurrentVersion {
		return sc, errors.Errorf("store: conversation %s has unsupported future version %d", sc.ID, sc.Version)
	}
	for sc.Version < CurrentVersion {
		switch sc.Version {
		case 0:
			// Version 0 predates the model_hint field; nothing to backfill,
			// the zero value is already correct.
			sc.Version = 1
		default:
			return sc, errors.Errorf("store: no migration path from version %d", sc.Version)
		}
	}
	return sc, nil
}
