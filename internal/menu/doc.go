// Package menu is the interactive text front end of the smart home core.
//
// It reads one command per line and writes results as plain text:
//
//	> add light "Hall Light"
//	created DEV-1 Hall Light (light)
//	> schedule DEV-1 turn_on 23:59 repeat
//	scheduled 6f1c... turn_on on DEV-1 at 23:59 daily
//
// Scheduling returns as soon as the entry is registered; fire outcomes are
// reported by the scheduler's reporters, not by the menu.
package menu
