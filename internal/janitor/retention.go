package janitor

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/kapu/rtdb-janitor/internal/rtdb"
)

// TrainingSummary reports the training-record retention phase.
type TrainingSummary struct {
	Considered int `json:"considered"`
	Deleted    int `json:"deleted"`
}

// RepairSummary reports a field-repair pass.
type RepairSummary struct {
	Scanned  int `json:"scanned"`
	Repaired int `json:"repaired"`
}

// MarkersSummary reports the idempotency-marker expiry phase.
type MarkersSummary struct {
	Considered int `json:"considered"`
	Deleted    int `json:"deleted"`
}

// CleanupExpiredTraining deletes training records past their purge
// timestamp. The fetch is already range-filtered by purgeAt; each row
// is re-checked defensively because the snapshot is not isolated from
// concurrent writers.
func (j *Janitor) CleanupExpiredTraining(ctx context.Context) (TrainingSummary, error) {
	nowMS := j.nowMillis()
	limit := j.cfg.TrainDeleteLimit
	policy := j.cfg.Policies["trainingRecords"]

	var sum TrainingSummary
	expired, err := j.store.QueryChildren(ctx, "trainingRecords", rtdb.Query{
		OrderBy:      policy.ExpiryField,
		EndAt:        nowMS,
		LimitToFirst: limit,
	})
	if err != nil {
		// fail open: nothing to delete this run
		j.log.Warn("training records query failed", zap.Error(err))
		expired = nil
	}

	updates := Updates{}
	for gid, row := range expired {
		if gid == "" {
			continue
		}
		sum.Considered++
		rec, _ := asMap(row)
		purgeAt := toMillis(rec[policy.ExpiryField])
		// never delete without an explicit, validated expiry condition
		if purgeAt > 0 && purgeAt <= nowMS {
			updates.Remove("trainingRecords/" + gid)
			sum.Deleted++
		}
	}

	if _, err := j.applier(BulkChunkSize).Apply(ctx, updates); err != nil {
		return sum, err
	}
	j.log.Info("training records retention cleanup",
		zap.String("mode", j.mode()),
		zap.Int("considered", sum.Considered),
		zap.Int("deleted", sum.Deleted),
		zap.Int("limit", limit))
	return sum, nil
}

// RepairTrainingRecords conservatively fills legacy records: missing
// processed becomes false, missing purgeAt becomes endedAt plus the
// collection TTL (now plus TTL when endedAt itself is unusable).
func (j *Janitor) RepairTrainingRecords(ctx context.Context) (RepairSummary, error) {
	nowMS := j.nowMillis()
	policy := j.cfg.Policies["trainingRecords"]
	ttlMS := int64(policy.RepairTTLHours) * 60 * 60 * 1000

	var sum RepairSummary
	batch, err := j.store.QueryChildren(ctx, "trainingRecords", rtdb.Query{
		OrderBy:      "endedAt",
		LimitToFirst: j.cfg.TrainRepairLimit,
	})
	if err != nil {
		j.log.Warn("training repair query failed", zap.Error(err))
		batch = nil
	}

	updates := Updates{}
	for gid, row := range batch {
		rec, ok := asMap(row)
		if gid == "" || !ok {
			continue
		}
		sum.Scanned++
		repaired := false
		if !hasField(rec, "processed") {
			updates.Set("trainingRecords/"+gid+"/processed", false)
			repaired = true
		}
		if ttlMS > 0 && !hasField(rec, policy.ExpiryField) {
			endedAt := toMillis(rec["endedAt"])
			if endedAt <= 0 {
				endedAt = nowMS
			}
			updates.Set("trainingRecords/"+gid+"/"+policy.ExpiryField, endedAt+ttlMS)
			repaired = true
		}
		if repaired {
			sum.Repaired++
		}
	}

	if _, err := j.applier(BulkChunkSize).Apply(ctx, updates); err != nil {
		return sum, err
	}
	j.log.Info("training records repair",
		zap.String("mode", j.mode()),
		zap.Int("scanned", sum.Scanned),
		zap.Int("repaired", sum.Repaired))
	return sum, nil
}

// PurgeProcessedTraining deletes records already consumed by the
// trainer, in pages, up to the configured bound.
func (j *Janitor) PurgeProcessedTraining(ctx context.Context) (TrainingSummary, error) {
	limit := j.cfg.ProcessedTrainPurgeLimit
	var sum TrainingSummary

	for sum.Deleted < limit {
		page := limit - sum.Deleted
		if page > 200 {
			page = 200
		}
		batch, err := j.store.QueryChildren(ctx, "trainingRecords", rtdb.Query{
			OrderBy:      "processed",
			EqualTo:      true,
			LimitToFirst: page,
		})
		if err != nil {
			j.log.Warn("processed training query failed", zap.Error(err))
			break
		}
		if len(batch) == 0 {
			break
		}
		updates := Updates{}
		for gid := range batch {
			if gid == "" {
				continue
			}
			sum.Considered++
			updates.Remove("trainingRecords/" + gid)
			sum.Deleted++
		}
		applied, err := j.applier(BulkChunkSize).Apply(ctx, updates)
		if err != nil {
			return sum, err
		}
		if j.dryRun || applied == 0 {
			// without writes the same page would be fetched forever
			break
		}
	}

	j.log.Info("processed training purge",
		zap.String("mode", j.mode()),
		zap.Int("deleted", sum.Deleted),
		zap.Int("limit", limit))
	return sum, nil
}

// CleanupExpiredMarkers deletes idempotency markers whose purge
// timestamp has passed. Markers lacking purgeAt are retained: deleting
// one without an explicit expiry could break the idempotency guarantee.
func (j *Janitor) CleanupExpiredMarkers(ctx context.Context) (MarkersSummary, error) {
	nowMS := j.nowMillis()
	limit := j.cfg.MarkerDeleteLimit
	policy := j.cfg.Policies["idempotencyMarkers"]
	retain := j.cfg.Policies.RetainOnMissing("idempotencyMarkers")

	var sum MarkersSummary
	owners, err := j.store.ShallowKeys(ctx, "idempotencyMarkers")
	if err != nil {
		// markers fail closed on read problems: touch nothing
		j.log.Warn("marker keys probe failed", zap.Error(err))
		return sum, nil
	}
	sort.Strings(owners)
	if len(owners) > j.cfg.MarkerUsersLimit {
		owners = owners[:j.cfg.MarkerUsersLimit]
	}

	updates := Updates{}
scan:
	for _, uid := range owners {
		if uid == "" {
			continue
		}
		raw, err := j.store.Get(ctx, "idempotencyMarkers/"+uid)
		if err != nil {
			j.log.Warn("marker bucket read failed", zap.String("uid", uid), zap.Error(err))
			continue
		}
		bucket, ok := asMap(raw)
		if !ok {
			continue
		}

		mids := make([]string, 0, len(bucket))
		for mid := range bucket {
			mids = append(mids, mid)
		}
		sort.Strings(mids)
		if len(mids) > j.cfg.MarkerPerUserLimit {
			mids = mids[:j.cfg.MarkerPerUserLimit]
		}

		for _, mid := range mids {
			if mid == "" {
				continue
			}
			sum.Considered++
			marker, _ := asMap(bucket[mid])
			if !hasField(marker, policy.ExpiryField) && retain {
				continue
			}
			purgeAt := toMillis(marker[policy.ExpiryField])
			if purgeAt > 0 && purgeAt <= nowMS {
				updates.Remove("idempotencyMarkers/" + uid + "/" + mid)
				sum.Deleted++
				if sum.Deleted >= limit {
					break scan
				}
			}
		}
	}

	if _, err := j.applier(DefaultChunkSize).Apply(ctx, updates); err != nil {
		return sum, err
	}
	j.log.Info("idempotency markers cleanup",
		zap.String("mode", j.mode()),
		zap.Int("considered", sum.Considered),
		zap.Int("deleted", sum.Deleted),
		zap.Int("limit", limit))
	return sum, nil
}

// RepairMarkers stamps purgeAt = endedAt + TTL onto markers that carry
// endedAt but no purge timestamp, so the expiry path can retire them.
func (j *Janitor) RepairMarkers(ctx context.Context) (RepairSummary, error) {
	policy := j.cfg.Policies["idempotencyMarkers"]
	ttlMS := int64(policy.RepairTTLHours) * 60 * 60 * 1000

	var sum RepairSummary
	owners, err := j.store.ShallowKeys(ctx, "idempotencyMarkers")
	if err != nil {
		j.log.Warn("marker keys probe failed", zap.Error(err))
		return sum, nil
	}
	sort.Strings(owners)
	if len(owners) > j.cfg.MarkerUsersLimit {
		owners = owners[:j.cfg.MarkerUsersLimit]
	}

	updates := Updates{}
	for _, uid := range owners {
		raw, err := j.store.Get(ctx, "idempotencyMarkers/"+uid)
		if err != nil {
			continue
		}
		bucket, ok := asMap(raw)
		if !ok {
			continue
		}
		mids := make([]string, 0, len(bucket))
		for mid := range bucket {
			mids = append(mids, mid)
		}
		sort.Strings(mids)
		if len(mids) > j.cfg.MarkerPerUserLimit {
			mids = mids[:j.cfg.MarkerPerUserLimit]
		}
		for _, mid := range mids {
			marker, ok := asMap(bucket[mid])
			if !ok {
				continue
			}
			sum.Scanned++
			if !hasField(marker, "endedAt") || hasField(marker, policy.ExpiryField) {
				continue
			}
			endedAt := toMillis(marker["endedAt"])
			if endedAt <= 0 || ttlMS <= 0 {
				continue
			}
			updates.Set("idempotencyMarkers/"+uid+"/"+mid+"/"+policy.ExpiryField, endedAt+ttlMS)
			sum.Repaired++
		}
	}

	if _, err := j.applier(DefaultChunkSize).Apply(ctx, updates); err != nil {
		return sum, err
	}
	j.log.Info("idempotency markers repair",
		zap.String("mode", j.mode()),
		zap.Int("scanned", sum.Scanned),
		zap.Int("repaired", sum.Repaired))
	return sum, nil
}
