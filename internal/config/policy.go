package config

import (
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v3"
)

// RetentionPolicy is one auditable row of the retention rule table:
// when a record of the collection expires, and what happens when the
// deciding field is missing.
type RetentionPolicy struct {
	// ExpiryField holds the timestamp the expiry decision reads.
	ExpiryField string `yaml:"expiryField"`
	// FallbackField is consulted when ExpiryField is absent.
	FallbackField string `yaml:"fallbackField,omitempty"`
	// OnMissing is "retain" (fail closed) or "delete" (fail open).
	OnMissing string `yaml:"onMissing"`
	// RepairTTLHours is the TTL stamped onto records repaired with a
	// synthetic expiry (0 disables repair for the collection).
	RepairTTLHours int `yaml:"repairTTLHours,omitempty"`
}

// PolicyTable maps collection name to its retention rule.
type PolicyTable map[string]RetentionPolicy

const (
	MissingRetain = "retain"
	MissingDelete = "delete"
)

// DefaultPolicies mirrors the TTLs the game client stamps on records.
func DefaultPolicies() PolicyTable {
	return PolicyTable{
		"trainingRecords": {
			ExpiryField:    "purgeAt",
			OnMissing:      MissingRetain,
			RepairTTLHours: 48,
		},
		"idempotencyMarkers": {
			ExpiryField:    "purgeAt",
			OnMissing:      MissingRetain,
			RepairTTLHours: 24,
		},
		"players": {
			ExpiryField: "updatedAt",
			OnMissing:   MissingDelete,
		},
		"gamePresence": {
			ExpiryField:   "updatedAt",
			FallbackField: "joinedAt",
			OnMissing:     MissingDelete,
		},
	}
}

// ApplyFile overlays policy rows from a YAML file. Unknown collections
// are accepted; partial rows override only the fields they set.
func (t PolicyTable) ApplyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read policy file: %w", err)
	}
	var overlay PolicyTable
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return fmt.Errorf("parse policy file: %w", err)
	}
	for name, row := range overlay {
		cur, ok := t[name]
		if !ok {
			t[name] = row
			continue
		}
		if row.ExpiryField != "" {
			cur.ExpiryField = row.ExpiryField
		}
		if row.FallbackField != "" {
			cur.FallbackField = row.FallbackField
		}
		if row.OnMissing != "" {
			cur.OnMissing = row.OnMissing
		}
		if row.RepairTTLHours != 0 {
			cur.RepairTTLHours = row.RepairTTLHours
		}
		t[name] = cur
	}
	return nil
}

// RetainOnMissing reports whether the collection keeps records that
// lack their expiry field.
func (t PolicyTable) RetainOnMissing(collection string) bool {
	row, ok := t[collection]
	if !ok {
		return true
	}
	return row.OnMissing != MissingDelete
}
