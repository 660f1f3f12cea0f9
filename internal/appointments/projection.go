package appointments

// Display is the status shown to staff and patients.
type Display struct {
	Label string `json:"label"`
	Class string `json:"class"`
	Rank  int    `json:"rank"`
}

var (
	displayWaiting  = Display{Label: "Waiting", Class: "status-waiting", Rank: 0}
	displayUpcoming = Display{Label: "Upcoming", Class: "status-upcoming", Rank: 1}
	displayPending  = Display{Label: "Pending payment", Class: "status-pending", Rank: 2}
	displayDone     = Display{Label: "Done", Class: "status-done", Rank: 3}
	displayDeclined = Display{Label: "Declined", Class: "status-declined", Rank: 4}
	displayCanceled = Display{Label: "Cancelled", Class: "status-cancelled", Rank: 5}
)

// Project derives the display status of a as of today (YYYY-MM-DD).
// A non-terminal appointment dated before today reads as done; nothing is
// written back.
func Project(a Appointment, today string) Display {
	switch a.Status {
	case StatusCancelled:
		return displayCanceled
	case StatusDeclined:
		return displayDeclined
	case StatusDone:
		return displayDone
	}
	switch {
	case a.Date < today:
		return displayDone
	case a.Date == today:
		return displayWaiting
	case a.Status == StatusPending && a.PaymentStatus == PaymentPending:
		return displayPending
	default:
		return displayUpcoming
	}
}
