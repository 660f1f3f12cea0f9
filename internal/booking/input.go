package booking

// Kind is how the actor produced a turn.
type Kind string

const (
	KindPostback   Kind = "postback"
	KindQuickReply Kind = "quick_reply"
	KindText       Kind = "text"
	KindImage      Kind = "image"
)

// Input is one normalized turn. For images Token is the attachment URL.
type Input struct {
	Token string
	Kind  Kind
}

// Postback and quick reply payloads.
const (
	PayloadBook           = "BOOK_APPT"
	PayloadMyAppointments = "MY_APPOINTMENTS"
	PayloadViewServices   = "VIEW_SERVICES"
	PayloadContact        = "CONTACT_US"

	PrefixService    = "SERVICE_"
	PrefixReschedule = "RESCHED_"
	PrefixCancel     = "CANCEL_"
	PrefixPayment    = "PAYMENT_"
	PrefixTime       = "TIME_"

	PayloadDateTomorrow   = "DATE_TOMORROW"
	PayloadDateNextMonday = "DATE_NEXT_MONDAY"
	PayloadDatePick       = "DATE_PICK"
	PayloadDateManual     = "DATE_MANUAL"

	PayloadDownpaymentYes = "DP_YES"
	PayloadDownpaymentNo  = "DP_NO"
	PayloadCancelYes      = "CANCEL_YES"
	PayloadCancelNo       = "CANCEL_NO"

	// PickDate is what DATE_PICK and DATE_MANUAL normalize to.
	PickDate = "PICK_DATE"
)
