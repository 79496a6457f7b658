// Package commands describes the slash commands a bot exposes.
package commands

import (
	tele "gopkg.in/telebot.v4"
)

// Command is a slash command with its handler and menu metadata.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	AdminOnly   bool
	// Hidden keeps the command out of the Telegram menu.
	Hidden  bool
	Aliases []string
	// Order positions the command in the menu; ties sort by name.
	Order int
}
