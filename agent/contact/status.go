package contact

import "strings"

type Status string

const (
	StatusNew            Status = "new"
	StatusWaiting        Status = "waiting"
	StatusInviteAccepted Status = "invite_accepted"
	StatusDeclined       Status = "declined"
	StatusBounce         Status = "bounce"
	StatusNotNow         Status = "not_now"
)

// Category is the intent a classifier assigns to a reply.
type Category string

const (
	CategoryAccepted Category = "accepted"
	CategoryDeclined Category = "declined"
	CategoryNotNow   Category = "not_now"
	CategoryBounce   Category = "bounce"
	CategoryOther    Category = "other"
)

// StatusFor maps a reply category to the contact status it implies.
// Anything unrecognized leaves the contact waiting.
func StatusFor(c Category) Status {
	switch c {
	case CategoryAccepted:
		return StatusInviteAccepted
	case CategoryDeclined:
		return StatusDeclined
	case CategoryBounce:
		return StatusBounce
	case CategoryNotNow:
		return StatusNotNow
	default:
		return StatusWaiting
	}
}

// ParseCategory normalizes free-form classifier output. Unknown labels
// resolve to CategoryOther, never an error.
func ParseCategory(raw string) Category {
	label := strings.ToUpper(strings.TrimSpace(raw))
	label = strings.Trim(label, ".!\"'`")
	label = strings.ReplaceAll(label, "-", "_")

	switch label {
	case "ACCEPTED", "YES", "SURE":
		return CategoryAccepted
	case "DECLINED", "NO":
		return CategoryDeclined
	case "BOUNCE":
		return CategoryBounce
	case "NOT_NOW", "NOT NOW", "NOTNOW":
		return CategoryNotNow
	default:
		return CategoryOther
	}
}
