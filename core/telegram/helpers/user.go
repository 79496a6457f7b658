package helpers

import (
	"strconv"

	tele "gopkg.in/telebot.v4"
)

// OwnerID returns the sender id in its canonical textual form, or "" without a sender.
func OwnerID(c tele.Context) string {
	if c == nil {
		return ""
	}
	u := c.Sender()
	if u == nil {
		return ""
	}
	return strconv.FormatInt(u.ID, 10)
}

// SenderID returns the numeric sender id, or 0 without a sender.
func SenderID(c tele.Context) int64 {
	if c == nil {
		return 0
	}
	if u := c.Sender(); u != nil {
		return u.ID
	}
	return 0
}

// Handle returns the sender's username without the leading @, or "".
func Handle(c tele.Context) string {
	if c == nil {
		return ""
	}
	if u := c.Sender(); u != nil {
		return u.Username
	}
	return ""
}
