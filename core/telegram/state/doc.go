// Package state provides a lightweight session registry for conversational Telegram bots.
// It is intentionally domain-agnostic: the bot decides what a session value holds,
// the registry owns keying by textual owner id, idle expiry and sweeping.
package state
