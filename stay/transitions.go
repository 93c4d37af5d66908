package stay

// =============================================================================
// COMMANDS
// =============================================================================

type Command string

const (
	CmdBook          Command = "book"
	CmdConfirm       Command = "confirm"
	CmdAssignRoom    Command = "assign_room"
	CmdCheckIn       Command = "check_in"
	CmdCheckOut      Command = "check_out"
	CmdRecordPayment Command = "record_payment"
	CmdAddCharge     Command = "add_charge"
	CmdCancel        Command = "cancel"
	CmdMarkNoShow    Command = "mark_no_show"
)

// =============================================================================
// TRANSITION TABLE
// =============================================================================

// allowedFrom lists the statuses each command may start from. Anything not
// listed is an IllegalTransitionError. RecordPayment from CHECKED_OUT is
// further restricted to corrections, see Lifecycle.RecordPayment.
var allowedFrom = map[Command][]Status{
	CmdConfirm:       {StatusPending},
	CmdAssignRoom:    {StatusPending, StatusConfirmed, StatusCheckedIn},
	CmdCheckIn:       {StatusPending, StatusConfirmed},
	CmdCheckOut:      {StatusCheckedIn},
	CmdRecordPayment: {StatusPending, StatusConfirmed, StatusCheckedIn, StatusCheckedOut},
	CmdAddCharge:     {StatusCheckedIn},
	CmdCancel:        {StatusPending, StatusConfirmed},
	CmdMarkNoShow:    {StatusPending, StatusConfirmed},
}

// CanApply reports whether cmd is allowed from status.
func CanApply(cmd Command, status Status) bool {
	for _, s := range allowedFrom[cmd] {
		if s == status {
			return true
		}
	}
	return false
}

func requireStatus(cmd Command, r Reservation) error {
	if !CanApply(cmd, r.Status) {
		return &IllegalTransitionError{Command: cmd, From: r.Status}
	}
	return nil
}
