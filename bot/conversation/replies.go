package conversation

import (
	"fmt"
	"strings"

	"github.com/zoomigo/rentalbot/bot/model"
)

// User-visible date format, e.g. "01 Nov 2025".
const dateFormat = "02 Jan 2006"

const (
	replyWelcome = "👋 Hello! Welcome to *ZoomiGo MotoRent*.\nPlease tell me your *name* to start your booking."

	replyAskNameAgain = "😊 Please tell me your *name* to continue."

	replyAskDate = "📅 Please enter your *rental start date* (e.g. 2025-11-01, 1 Nov, or *today*)."

	replyInvalidDays = "❌ Please enter a valid number of days."

	replyInvalidDate = "❌ Please enter a valid date (e.g. 2025-11-01, 1 Nov, or *today*)."

	replyAskPickup = "Got it! How would you like to *pick up* your bike?\n1️⃣ Pickup at shop\n2️⃣ Home delivery"

	replyPickupShop = "✅ Pickup at shop selected. Proceeding to bike selection..."

	replyAskAddress = "Since you selected *home delivery*, please enter your *delivery address* (if unsure, just give the nearest town name)."

	replyInvalidPickup = "❌ Please reply with 1 or 2 to choose pickup method."

	replyNoBikes = "⚠️ Sorry, no bikes are available now."

	replyInvalidBike = "❌ Invalid bike number. Please choose again."

	replyStaleBike = "😕 Sorry, that bike is no longer available. Please reply 2️⃣ and choose another bike."

	replyAskPromo = "🎟️ Do you have a promo code? Reply with the code or *no*."

	replyConfirmPrompt = "Confirm booking?\n1️⃣ Yes\n2️⃣ No"

	replyNoPromo = "👍 No promo applied.\n\nConfirm booking?\n1️⃣ Yes\n2️⃣ No"

	replyPromoNotFound = "❌ Promo code not found. Reply with another code, *no*, 1️⃣ to confirm or 2️⃣ to reselect."

	replyReselect = "No problem! Please choose another bike number."

	replyInvalidConfirm = "❌ Please reply 1️⃣ to confirm or 2️⃣ to reselect."

	replyCancelPrompt = "⚠️ Are you sure you want to cancel your booking?\n1️⃣ Yes, cancel it\n2️⃣ No, keep my booking"

	replyInvalidCancel = "❌ Please reply 1️⃣ to cancel or 2️⃣ to keep your booking."

	replyCancelled = "✅ Your booking has been cancelled. Type *hi* whenever you want to book again."

	replyFlowCancelled = "✅ Your booking process has been cancelled. Type *hi* to start again."

	replyFallback = "🤔 Sorry, I didn't understand that. Type *hi* to start again."

	replyTryAgain = "😕 Sorry, something went wrong. Please try again."
)

func replyThanksName(name string) string {
	return fmt.Sprintf("Thanks, %s! 🙏\nHow many *days* would you like to rent the bike? (Enter a number)", name)
}

func replyBikeList(bikes []model.Bike) string {
	var b strings.Builder
	b.WriteString("🏍️ Available bikes:\n\n")
	for i, bike := range bikes {
		fmt.Fprintf(&b, "%d. %s - Rs.%d/day\n", i+1, bike.Name, bike.PricePerDay)
	}
	b.WriteString("\nPlease reply with the *bike number* to continue.")
	return b.String()
}

func replyQuote(bike *model.Bike, days int, base, deposit int64) string {
	return fmt.Sprintf(
		"You selected *%s* for %d days.\nTotal: Rs%d + deposit Rs%d\n\n%s",
		bike.Name, days, base, deposit, replyAskPromo)
}

func replyPromoApplied(code string, discount, final int64) string {
	return fmt.Sprintf(
		"🎉 Promo '%s' applied!\nDiscount: Rs%d\nNew total: Rs%d\n\n%s",
		code, discount, final, replyConfirmPrompt)
}

func replyPromoInapplicable(code string) string {
	return fmt.Sprintf(
		"⚠️ Promo '%s' does not apply to your selected bike.\nYou can still reply 1️⃣ to confirm at full price, 2️⃣ to reselect, or try another code.",
		code)
}

func replyPromoExhausted(code string) string {
	return fmt.Sprintf(
		"⚠️ Promo '%s' is fully used.\nReply 1️⃣ to confirm at full price, 2️⃣ to reselect, or try another code.",
		code)
}

func replyBookingConfirmed(b *model.Booking, shopAddress string) string {
	var sb strings.Builder
	sb.WriteString("✅ Booking confirmed!\n\n")
	sb.WriteString(bookingDetails(b, shopAddress))
	sb.WriteString("\n\nType *cancel* if you need to cancel your booking.")
	return sb.String()
}

func replyBookingReminder(details string) string {
	return "📩 You already have a booking.\n\n" + details + "\n\nType *cancel* to cancel it."
}

func replyBookingKept(details string) string {
	return "👍 Your booking remains active.\n\n" + details
}

func bookingDetails(b *model.Booking, shopAddress string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🏍️ Bike: %s\n", b.Bike)
	fmt.Fprintf(&sb, "📅 From %s to %s\n", b.StartDate.Format(dateFormat), b.EndDate.Format(dateFormat))
	fmt.Fprintf(&sb, "💰 Total: Rs%d + deposit Rs%d", b.Price, b.Deposit)
	if b.PromoApplied && b.PromoCode != "" {
		fmt.Fprintf(&sb, "\n🎟️ Promo '%s' applied (-Rs%d)", b.PromoCode, b.PromoDiscountAmount)
	}
	sb.WriteString("\n" + pickupDetails(b.PickupType, b.DeliveryAddress, shopAddress))
	return sb.String()
}

func pickupDetails(pickupType, deliveryAddress, shopAddress string) string {
	if pickupType == model.PickupHomeDelivery {
		return "🚚 Home delivery to: " + deliveryAddress
	}
	return "📍 Pickup location: " + shopAddress
}
