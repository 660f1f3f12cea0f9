package booking

import (
	"fmt"

	"github.com/wolfman30/clinic-booking/internal/appointments"
	"github.com/wolfman30/clinic-booking/internal/clinic"
	"github.com/wolfman30/clinic-booking/internal/outbound"
	"github.com/wolfman30/clinic-booking/internal/sessions"
	"github.com/wolfman30/clinic-booking/internal/slots"
)

const (
	msgMenuHint            = "Hi! 👋 Tap Book Appointment from the menu to get started 😊"
	msgTryAgain            = "⚠️ Something went wrong on our side. Please try again."
	msgChooseService       = "🦷 Please choose a service:"
	msgNoServices          = "😔 No services are available for booking right now."
	msgServicesUnavailable = "⚠️ We couldn't load our services right now. Please try again in a moment."
	msgServiceGone         = "⚠️ Sorry, that service is no longer available. Tap Book Appointment to start again."
	msgChooseDate          = "📅 When would you like to come in?"
	msgManualDate          = "📅 Please type your preferred date in this format:\nYYYY-MM-DD\n\nExample: 2025-12-24"
	msgInvalidDate         = "❌ Invalid date. Please use the format YYYY-MM-DD."
	msgPastDate            = "❌ That date has already passed. Please choose a future date."
	msgAvailabilityDown    = "⚠️ We couldn't check available times right now. Please try again."
	msgNoTimes             = "❌ No available times on this date.\n\nPlease choose another date."
	msgChooseTime          = "⏰ Select from these available times:"
	msgPickOfferedTime     = "❌ Please select one of the available times:"
	msgSlotTaken           = "❌ Sorry, that time was just taken.\n\nPlease choose another date."
	msgAskName             = "📝 Please type your full name for the appointment:"
	msgAskNameAgain        = "📝 Please type your full name (up to 100 characters):"
	msgDeclinedDownpayment = "No problem! 😊 Feel free to reach out when you're ready."
	msgChoosePayment       = "💳 Please choose your payment method:"
	msgSendProof           = "📸 After payment, please send a screenshot or photo of the receipt here."
	msgResendProof         = "⚠️ We couldn't save your booking. Please send your proof of payment again."
	msgProofReceived       = "✅ Proof received!\n\n⏳ Please wait while the admin confirms your payment. We'll message you here once it's reviewed."
	msgAlreadyReviewed     = "✅ Your payment was already reviewed. Tap My Appointments to see your booking."
	msgNoAppointments      = "📭 You don't have any active appointments."
	msgYourAppointments    = "Here are your appointments:"
	msgAppointmentClosed   = "⚠️ That appointment can no longer be changed."
	msgConfirmCancel       = "Are you sure you want to cancel your appointment?"
	msgCancelled           = "❌ Your appointment has been cancelled."
	msgKeepAppointment     = "👍 No problem! Your appointment is still active."
)

func dateChoices() []outbound.Choice {
	return []outbound.Choice{
		{Title: "Tomorrow", Payload: PayloadDateTomorrow},
		{Title: "Next Monday", Payload: PayloadDateNextMonday},
		{Title: "📅 Pick a date", Payload: PayloadDatePick},
	}
}

func yesNo(yes, no string) []outbound.Choice {
	return []outbound.Choice{{Title: "Yes", Payload: yes}, {Title: "No", Payload: no}}
}

// timePrompt offers canonical times as display labels.
func timePrompt(text string, canonical []string) outbound.Message {
	choices := make([]outbound.Choice, 0, len(canonical))
	for _, c := range canonical {
		label, err := slots.ToDisplay(c)
		if err != nil {
			continue
		}
		choices = append(choices, outbound.Choice{Title: label, Payload: PrefixTime + label})
	}
	return outbound.WithChoices(text, choices...)
}

func downpaymentPrompt(d sessions.Draft) outbound.Message {
	text := fmt.Sprintf("Hi %s! 😊\n\n%s requires a %s downpayment to secure your appointment.\n\nDo you want to continue?",
		d.Fullname, d.ServiceName, clinic.FormatPeso(d.DownpaymentCents))
	return outbound.WithChoices(text, yesNo(PayloadDownpaymentYes, PayloadDownpaymentNo)...)
}

func cancelPrompt(a *appointments.Appointment) outbound.Message {
	text := fmt.Sprintf("Are you sure you want to cancel your %s on %s at %s?", a.ServiceName, a.Date, a.DisplayTime())
	return outbound.WithChoices(text, yesNo(PayloadCancelYes, PayloadCancelNo)...)
}
