// Package chain maintains a chain of cascading selections across a sequence
// of entity types connected by relation fields. Selecting a record at one
// level re-selects consistent records at every adjacent level, upward and
// downward, and keeps that consistency across save and delete events
// delivered by a types.Notifier.
//
// A Chain is built from an ordered list of levels, wired through a
// types.Store, and is not safe for concurrent use: every operation runs to
// completion, including all recursive cascading, before returning.
package chain
