package enums

// ScheduledTaskKind selects the handler for a durable scheduled task.
type ScheduledTaskKind string

const (
	TaskReleaseHold            ScheduledTaskKind = "release_hold"
	TaskAuthorizeEscrowDeposit ScheduledTaskKind = "authorize_escrow_deposit"
	TaskEscrowReminder         ScheduledTaskKind = "escrow_reminder"
	TaskEscrowDeadline         ScheduledTaskKind = "escrow_deadline"
	TaskAuctionEndingSoon      ScheduledTaskKind = "auction_ending_soon"
)

var validScheduledTaskKinds = []ScheduledTaskKind{
	TaskReleaseHold,
	TaskAuthorizeEscrowDeposit,
	TaskEscrowReminder,
	TaskEscrowDeadline,
	TaskAuctionEndingSoon,
}

func (k ScheduledTaskKind) IsValid() bool { return contains(validScheduledTaskKinds, k) }

// ScheduledTaskStatus maps to the scheduled_task_status enum in Postgres.
type ScheduledTaskStatus string

const (
	TaskStatusPending ScheduledTaskStatus = "pending"
	TaskStatusDone    ScheduledTaskStatus = "done"
	TaskStatusFailed  ScheduledTaskStatus = "failed"
)

func (s ScheduledTaskStatus) IsValid() bool {
	return contains([]ScheduledTaskStatus{TaskStatusPending, TaskStatusDone, TaskStatusFailed}, s)
}
