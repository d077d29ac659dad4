package httpapi

// disposableDomains are throwaway-email providers rejected on the MVP
// funnel. The list covers the providers actually seen in submissions,
// not every service in existence.
var disposableDomains = map[string]struct{}{
	"mailinator.com":     {},
	"guerrillamail.com":  {},
	"guerrillamail.net":  {},
	"sharklasers.com":    {},
	"10minutemail.com":   {},
	"tempmail.com":       {},
	"temp-mail.org":      {},
	"throwawaymail.com":  {},
	"yopmail.com":        {},
	"maildrop.cc":        {},
	"getnada.com":        {},
	"trashmail.com":      {},
	"fakeinbox.com":      {},
	"mintemail.com":      {},
	"mohmal.com":         {},
	"dispostable.com":    {},
	"mailnesia.com":      {},
	"spamgourmet.com":    {},
	"mytemp.email":       {},
	"burnermail.io":      {},
}

func isDisposableDomain(domain string) bool {
	_, ok := disposableDomains[domain]
	return ok
}
