package patterns

// Lure patterns flag the conversational shapes scammers use: payment
// pressure, manufactured urgency, credential harvesting, link pushing, and
// prize bait. Matching is done against lowercased text.
func (r *Registry) registerLurePatterns() {
	// === PAYMENT PRESSURE ===
	r.register("payment_instrument", `(upi|bank)\s+(id|pin|transfer)`,
		CategoryPaymentLure, 70, "Payment instrument request (UPI/bank id, pin, transfer)")
	r.register("payment_demand", `(send|transfer|pay)\s+(rs\.?|inr|₹)?\s*\d+`,
		CategoryPaymentLure, 75, "Direct demand to send a payment amount")

	// === MANUFACTURED URGENCY ===
	r.register("urgent_action", `(urgent|immediate)\s+(action|attention)`,
		CategoryUrgencyLure, 55, "Urgency framing to rush the victim")
	r.register("account_locked", `account\s+(blocked|suspended|locked)`,
		CategoryUrgencyLure, 65, "Account lockout threat")
	r.register("expiry_pressure", `(expires?|expiring|deadline)\s+(today|soon|in\s+\d+)`,
		CategoryUrgencyLure, 50, "Artificial deadline pressure")

	// === CREDENTIAL HARVESTING ===
	r.register("share_secret", `(send|share|tell)\s+(your\s+|me\s+)?(otp|pin|cvv|password)`,
		CategoryCredentialLure, 85, "Request for OTP/PIN/CVV/password")
	r.register("verify_identity", `(verify|confirm)\s+(your\s+)?(account|identity|details)`,
		CategoryCredentialLure, 60, "Identity verification pretext")
	r.register("kyc_pretext", `(kyc|verification)\s+(pending|required|expired)`,
		CategoryCredentialLure, 65, "KYC expiry pretext")

	// === LINK PUSHING ===
	r.register("click_link", `click\s+(here|this|the\s+link|below)`,
		CategoryPhishingLure, 60, "Pressure to follow a link")

	// === PRIZE BAIT ===
	r.register("prize_bait", `\b(won|winner|prize|lottery)\b`,
		CategoryPrizeLure, 55, "Lottery/prize winnings bait")
	r.register("claim_reward", `claim\s+(your\s+)?(prize|reward|cashback|refund)`,
		CategoryPrizeLure, 60, "Prize claim instruction")
}

// Field recognizers pull structured intelligence out of raw text. These are
// the deterministic fallback behind the remote extractor, so their shapes are
// fixed contracts:
//
//   - phone numbers: Indian mobile shape, +91-prefixed or bare 10 digits
//     starting 6-9
//   - UPI ids: local part followed by a short alphabetic handle suffix
//   - bank accounts: 9-18 digit runs (phone-shaped runs are claimed by the
//     phone recognizer first; the extractor enforces that precedence)
//   - URLs: scheme-prefixed tokens, www tokens, or bare domain.tld shapes
func (r *Registry) registerFieldRecognizers() {
	r.register("phone_in", `\+91[\s-]?[0-9]{10}\b|\b[6-9][0-9]{9}\b`,
		CategoryPhoneNumber, 0, "Indian mobile number")

	r.register("upi_handle", `(?i)\b[a-z0-9][a-z0-9._-]*@[a-z]{2,16}\b`,
		CategoryUPIID, 0, "UPI virtual payment address")

	r.register("account_number", `\b[0-9]{9,18}\b`,
		CategoryBankAccount, 0, "Bank account number candidate")

	r.register("url_scheme", `(?i)https?://[^\s<>"']+`,
		CategoryURL, 0, "Scheme-prefixed URL")
	r.register("url_bare", `(?i)\b(?:www\.[a-z0-9.-]+|[a-z0-9-]+(?:\.[a-z0-9-]+)*\.(?:com|net|org|info|in|co|io|me|xyz|site|online|top|link|club))(?:/[^\s<>"']*)?`,
		CategoryURL, 0, "Bare domain-shaped token")
}
