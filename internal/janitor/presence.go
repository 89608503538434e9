package janitor

import (
	"context"

	"go.uber.org/zap"
)

// PlayersSummary reports the global player-presence cleanup phase.
type PlayersSummary struct {
	Considered int `json:"considered"`
	Deleted    int `json:"deleted"`
	Protected  int `json:"protected"`
}

// PresenceSummary reports the in-room presence cleanup phase.
type PresenceSummary struct {
	Games      int `json:"games"`
	Considered int `json:"considered"`
	Deleted    int `json:"deleted"`
}

// extractUID normalizes a player reference: either a bare identifier
// string or a record with a "uid" field.
func extractUID(side any) string {
	if m, ok := asMap(side); ok {
		return strField(m, "uid")
	}
	if s, ok := side.(string); ok {
		return trimID(s)
	}
	return ""
}

func roomPlayerUIDs(room map[string]any) []string {
	players, _ := asMap(room["players"])
	if players == nil {
		return nil
	}
	var uids []string
	if w := extractUID(players["white"]); w != "" {
		uids = append(uids, w)
	}
	if b := extractUID(players["black"]); b != "" {
		uids = append(uids, b)
	}
	return uids
}

// protectedUIDs collects player identifiers of every room whose status
// is in the protecting set. Computed strictly before any staleness
// decision of the same run.
func protectedUIDs(games map[string]any, protect map[string]bool) map[string]bool {
	out := make(map[string]bool)
	for _, g := range games {
		room, ok := asMap(g)
		if !ok {
			continue
		}
		if !protect[strField(room, "status")] {
			continue
		}
		for _, uid := range roomPlayerUIDs(room) {
			out[uid] = true
		}
	}
	return out
}

// stalePlayerUpdates decides which players/{uid} rows to delete.
// Protected identifiers are never deleted regardless of age; records
// with a future timestamp are treated as fresh; malformed rows are
// inherently stale unless protected.
func (j *Janitor) stalePlayerUpdates(games, players map[string]any, nowMS int64) (Updates, PlayersSummary) {
	staleMS := minutesToMillis(j.cfg.StalePlayerMinutes)
	protected := protectedUIDs(games, j.protect)
	retainOnMissing := j.cfg.Policies.RetainOnMissing("players")

	updates := Updates{}
	var sum PlayersSummary
	for uid, p := range players {
		if uid == "" {
			continue
		}
		row, ok := asMap(p)
		if !ok {
			if protected[uid] {
				sum.Protected++
			} else {
				updates.Remove("players/" + uid)
				sum.Deleted++
			}
			continue
		}

		sum.Considered++
		if protected[uid] {
			sum.Protected++
			continue
		}

		if !hasField(row, "updatedAt") && retainOnMissing {
			continue
		}
		age := nowMS - toMillis(row["updatedAt"])
		if age < 0 {
			// future timestamp: clock skew, never delete
			continue
		}
		if age > staleMS {
			updates.Remove("players/" + uid)
			sum.Deleted++
		}
	}
	return updates, sum
}

// CleanupStalePlayers deletes stale global presence rows, protecting
// users who are currently inside a protecting-status room.
func (j *Janitor) CleanupStalePlayers(ctx context.Context) (PlayersSummary, error) {
	games := j.safeGetMap(ctx, "games")
	players := j.safeGetMap(ctx, "players")

	updates, sum := j.stalePlayerUpdates(games, players, j.nowMillis())
	if _, err := j.applier(DefaultChunkSize).Apply(ctx, updates); err != nil {
		return sum, err
	}
	j.log.Info("stale players cleanup",
		zap.String("mode", j.mode()),
		zap.Int("considered", sum.Considered),
		zap.Int("deleted", sum.Deleted),
		zap.Int("protected", sum.Protected),
		zap.Int("staleMinutes", j.cfg.StalePlayerMinutes),
		zap.Strings("protectStatuses", j.cfg.ProtectStatuses))
	return sum, nil
}

// stalePresenceUpdates decides which games/{gid}/presence/{uid} rows to
// delete. Only rooms whose status is in the protecting set are scanned
// at all; protection here is scope-limited, not identity-limited.
func (j *Janitor) stalePresenceUpdates(games map[string]any, nowMS int64) (Updates, PresenceSummary) {
	staleMS := minutesToMillis(j.cfg.StalePresenceMinutes)
	policy := j.cfg.Policies["gamePresence"]

	updates := Updates{}
	var sum PresenceSummary
	for gid, g := range games {
		room, ok := asMap(g)
		if gid == "" || !ok {
			continue
		}
		if !j.protect[strField(room, "status")] {
			continue
		}
		sum.Games++

		pres, ok := asMap(room["presence"])
		if !ok {
			continue
		}
		for uid, pr := range pres {
			if uid == "" {
				continue
			}
			sum.Considered++
			row, ok := asMap(pr)
			if !ok {
				updates.Remove("games/" + gid + "/presence/" + uid)
				sum.Deleted++
				continue
			}

			ts := tsField(row, policy.ExpiryField, policy.FallbackField)
			age := nowMS - ts
			if age < 0 {
				continue
			}
			if age > staleMS {
				updates.Remove("games/" + gid + "/presence/" + uid)
				sum.Deleted++
			}
		}
	}
	return updates, sum
}

// CleanupStalePresence deletes ghost presence rows inside live rooms,
// left behind by crashed clients and suspended mobile browsers.
func (j *Janitor) CleanupStalePresence(ctx context.Context) (PresenceSummary, error) {
	games := j.safeGetMap(ctx, "games")

	updates, sum := j.stalePresenceUpdates(games, j.nowMillis())
	if _, err := j.applier(DefaultChunkSize).Apply(ctx, updates); err != nil {
		return sum, err
	}
	j.log.Info("stale room presence cleanup",
		zap.String("mode", j.mode()),
		zap.Int("games", sum.Games),
		zap.Int("considered", sum.Considered),
		zap.Int("deleted", sum.Deleted),
		zap.Int("staleMinutes", j.cfg.StalePresenceMinutes))
	return sum, nil
}
