package telemetry

// Histogram bucket definitions
var (
	// DepthBuckets for the number of suspended broadcasts when a nested notify starts
	DepthBuckets = []float64{1, 2, 3, 4, 6, 8, 12, 16, 32}

	// PublishBuckets for relay sink publish latency
	PublishBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
)

// Subject Metrics
var (
	// NotificationsTotal counts notify calls that started a walk
	NotificationsTotal Counter = NoopStat{}

	// NotificationsMutedTotal counts notify calls suppressed by a mute mask
	NotificationsMutedTotal Counter = NoopStat{}

	// NestedNotificationsTotal counts notify calls issued from inside a dispatch
	NestedNotificationsTotal Counter = NoopStat{}

	// SuspendDepth observes the suspend stack depth when a broadcast is suspended
	SuspendDepth Histogram = NoopStat{}

	// DispatchesTotal counts subscriber Update calls
	DispatchesTotal Counter = NoopStat{}

	// SubscriptionsTotal counts attach/detach operations by op (attach, merge, detach_bits, detach)
	SubscriptionsTotal CounterVec = noopCounterVec{}

	// SubjectsActive tracks subjects with at least one subscriber
	SubjectsActive Gauge = NoopStat{}

	// SubjectsDestroyedTotal counts destroyed subjects
	SubjectsDestroyedTotal Counter = NoopStat{}

	// PoolAllocationsTotal counts nodes allocated because no pooled node was free
	PoolAllocationsTotal Counter = NoopStat{}
)

// Relay Metrics
var (
	// RelayEnvelopesTotal counts envelopes handed to the outbox by result (appended, encode_failed, append_failed)
	RelayEnvelopesTotal CounterVec = noopCounterVec{}

	// RelayPublishedTotal counts sink publishes by sink and result (success, retry, filtered, dropped)
	RelayPublishedTotal CounterVec = noopCounterVec{}

	// RelayPublishSeconds measures sink publish latency by sink
	RelayPublishSeconds HistogramVec = noopHistogramVec{}
)

// Owner Loop Metrics
var (
	// LoopTasksTotal counts executed loop tasks by result (ok, panic)
	LoopTasksTotal CounterVec = noopCounterVec{}

	// LoopQueueDepth tracks pending loop tasks
	LoopQueueDepth Gauge = NoopStat{}
)

// InitMetrics initializes all Prometheus metrics.
// Called from InitializeTelemetry once the registry exists.
func InitMetrics() {
	NotificationsTotal = NewCounter(
		"notifications_total",
		"Notify calls that walked the subscriber list",
	)
	NotificationsMutedTotal = NewCounter(
		"notifications_muted_total",
		"Notify calls suppressed by the subject mute mask",
	)
	NestedNotificationsTotal = NewCounter(
		"notifications_nested_total",
		"Notify calls issued while a broadcast was in flight",
	)
	SuspendDepth = NewHistogramWithBuckets(
		"suspend_depth",
		"Suspended broadcasts on the stack when a nested notify starts",
		DepthBuckets,
	)
	DispatchesTotal = NewCounter(
		"dispatches_total",
		"Subscriber update calls",
	)
	SubscriptionsTotal = NewCounterVec(
		"subscriptions_total",
		"Attach and detach operations by kind",
		[]string{"op"},
	)
	SubjectsActive = NewGauge(
		"subjects_active",
		"Subjects with at least one subscriber",
	)
	SubjectsDestroyedTotal = NewCounter(
		"subjects_destroyed_total",
		"Destroyed subjects",
	)
	PoolAllocationsTotal = NewCounter(
		"pool_allocations_total",
		"Subscriber nodes allocated outside the free list",
	)

	RelayEnvelopesTotal = NewCounterVec(
		"relay_envelopes_total",
		"Envelopes handed to the relay outbox by result",
		[]string{"result"},
	)
	RelayPublishedTotal = NewCounterVec(
		"relay_published_total",
		"Sink publishes by sink and result",
		[]string{"sink", "result"},
	)
	RelayPublishSeconds = NewHistogramVec(
		"relay_publish_seconds",
		"Sink publish latency in seconds",
		[]string{"sink"},
		PublishBuckets,
	)

	LoopTasksTotal = NewCounterVec(
		"loop_tasks_total",
		"Owner loop tasks by result",
		[]string{"result"},
	)
	LoopQueueDepth = NewGauge(
		"loop_queue_depth",
		"Pending owner loop tasks",
	)
}
