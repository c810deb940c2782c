package telemetry

// Metric keys shared by the packages that report through Metrics.
const (
	MetricTriggerScheduled       = "trigger_scheduled_total"
	MetricTriggerGated           = "trigger_gated_total"
	MetricTriggerBroadcastFailed = "trigger_broadcast_failed_total"
	MetricEffectApplied          = "effect_applied_total"
	MetricEffectAborted          = "effect_aborted_total"
	MetricRemoteCallFailed       = "remote_call_failed_total"

	MetricHazardActive      = "hazard_active"
	MetricHazardRegistered  = "hazard_registered_total"
	MetricHazardTransferred = "hazard_transferred_total"
	MetricHazardReturned    = "hazard_returned_total"
	MetricHazardExploded    = "hazard_exploded_total"
	MetricHazardOrphaned    = "hazard_orphaned_total"
	MetricHazardFaults      = "hazard_faults_total"

	MetricCommandOccupancy = "hazard_command_buffer_occupancy"
	MetricCommandOverflow  = "hazard_command_buffer_overflow_total"

	MetricThreatSummoned   = "threat_summoned_total"
	MetricThreatRetargeted = "threat_retargeted_total"

	MetricCallsHandled  = "session_calls_handled_total"
	MetricFramesIgnored = "session_frames_ignored_total"

	MetricRoomMembers    = "room_members"
	MetricFramesRelayed  = "room_frames_relayed_total"
	MetricMembersEvicted = "room_members_evicted_total"
	MetricFramesLimited  = "room_frames_rate_limited_total"
	MetricFramesRejected = "room_frames_rejected_total"
)
