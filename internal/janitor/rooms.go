package janitor

import (
	"context"

	"go.uber.org/zap"
)

// RoomState is the per-run lifecycle classification of a room. It is
// derived from room fields on every run, never stored.
type RoomState int

const (
	RoomLive RoomState = iota
	RoomEndedOrRejected
	RoomAbandoned
)

// RoomsSummary reports the room lifecycle cleanup phase.
type RoomsSummary struct {
	Considered int `json:"considered"`
	Deleted    int `json:"deleted"`
	Ended      int `json:"ended"`
	Abandoned  int `json:"abandoned"`
}

// companionPaths lists the room node and every node whose lifetime is
// tied to it. All of them go into the same update set so a partial
// apply cannot orphan companions without also failing the room delete.
func companionPaths(gid string) []string {
	return []string{
		"games/" + gid,
		"chats/" + gid,
		"rtc/" + gid,
		"spectators/" + gid,
		"roomArchives/" + gid,
	}
}

// classifyRoom determines the room's state and its reference timestamp.
// A nonzero endedAt is sufficient for ended/rejected even when status
// lags; the reference timestamp priority is endedAt > acceptedAt >
// createdAt.
func classifyRoom(room map[string]any, protect map[string]bool) (RoomState, int64) {
	status := strField(room, "status")
	endedAt := bestTimestamp(toMillis(room["endedAt"]))
	createdAt := bestTimestamp(toMillis(room["createdAt"]))
	acceptedAt := bestTimestamp(toMillis(room["acceptedAt"]))
	lastTS := bestTimestamp(endedAt, acceptedAt, createdAt)

	if status == "ended" || status == "rejected" || endedAt > 0 {
		ref := endedAt
		if ref == 0 {
			ref = lastTS
		}
		return RoomEndedOrRejected, ref
	}

	if protect[status] && presenceEmpty(room) {
		return RoomAbandoned, lastTS
	}
	return RoomLive, lastTS
}

func presenceEmpty(room map[string]any) bool {
	pres, ok := asMap(room["presence"])
	if !ok {
		return true
	}
	for uid := range pres {
		if uid != "" {
			return false
		}
	}
	return true
}

// staleRoomUpdates classifies every room and builds the cascading
// deletion set for eligible non-live rooms, honoring the delete limit
// exactly (the last candidate is rolled back when the limit is hit
// mid-scan).
func (j *Janitor) staleRoomUpdates(games map[string]any, nowMS int64) (Updates, RoomsSummary) {
	endedMS := minutesToMillis(j.cfg.EndedRoomMinutes)
	abandonedMS := minutesToMillis(j.cfg.AbandonedRoomMinutes)
	limit := j.cfg.RoomDeleteLimit
	if limit < 1 {
		limit = 1
	}

	updates := Updates{}
	var sum RoomsSummary
	for gid, g := range games {
		room, ok := asMap(g)
		if gid == "" || !ok {
			continue
		}
		sum.Considered++

		state, ref := classifyRoom(room, j.protect)
		switch state {
		case RoomEndedOrRejected:
			if ref == 0 {
				ref = nowMS
			}
			if nowMS-ref < endedMS {
				continue
			}
			sum.Ended++
		case RoomAbandoned:
			if ref == 0 {
				ref = nowMS
			}
			if nowMS-ref < abandonedMS {
				continue
			}
			sum.Abandoned++
		default:
			continue
		}

		if sum.Ended+sum.Abandoned > limit {
			if state == RoomEndedOrRejected {
				sum.Ended--
			} else {
				sum.Abandoned--
			}
			break
		}
		updates.Remove(companionPaths(gid)...)
	}
	sum.Deleted = sum.Ended + sum.Abandoned
	return updates, sum
}

// CleanupStaleRooms deletes ended/rejected and abandoned rooms together
// with their companion nodes, in bounded batches.
func (j *Janitor) CleanupStaleRooms(ctx context.Context) (RoomsSummary, error) {
	games := j.safeGetMap(ctx, "games")

	updates, sum := j.staleRoomUpdates(games, j.nowMillis())
	if _, err := j.applier(DefaultChunkSize).Apply(ctx, updates); err != nil {
		return sum, err
	}
	j.log.Info("stale rooms cleanup",
		zap.String("mode", j.mode()),
		zap.Int("considered", sum.Considered),
		zap.Int("deleted", sum.Deleted),
		zap.Int("ended", sum.Ended),
		zap.Int("abandoned", sum.Abandoned),
		zap.Int("endedRoomMinutes", j.cfg.EndedRoomMinutes),
		zap.Int("abandonedRoomMinutes", j.cfg.AbandonedRoomMinutes),
		zap.Int("limit", j.cfg.RoomDeleteLimit))
	return sum, nil
}
