package sqlstore

import "github.com/capsight/go-valuation/core"

var (
	_ core.PipelineRunStore      = (*PipelineRunStore)(nil)
	_ core.IngestionAuditStore   = (*IngestionAuditStore)(nil)
	_ core.DeliveryAttemptStore  = (*DeliveryAttemptStore)(nil)
	_ core.MarketDataStore       = (*MarketDataStore)(nil)
	_ core.PropertySnapshotStore = (*PropertySnapshotStore)(nil)
)
