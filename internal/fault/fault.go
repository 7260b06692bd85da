// Package fault defines the error taxonomy shared by every service.
// Each error carries a kind and the entity id involved so transports can
// render a specific message instead of a generic failure.
package fault

import (
	"errors"
	"fmt"
)

type Kind string

const (
	// Not-found kinds. Surfaced verbatim, never retried.
	GameNotFound    Kind = "game_not_found"
	VersionNotFound Kind = "version_not_found"
	RoomNotFound    Kind = "room_not_found"
	AccountNotFound Kind = "account_not_found"

	// Authorization kinds. Surfaced, never retried.
	NotOwner      Kind = "not_owner"
	NotAuthorized Kind = "not_authorized"

	// Precondition kinds. Caller may retry after state changes.
	GameExists          Kind = "game_exists"
	AccountExists       Kind = "account_exists"
	DuplicateVersion    Kind = "duplicate_version"
	GameNotPlayable     Kind = "game_not_playable"
	RoomFull            Kind = "room_full"
	RoomClosed          Kind = "room_closed"
	RoomNotWaiting      Kind = "room_not_waiting"
	AlreadyJoined       Kind = "already_joined"
	InsufficientPlayers Kind = "insufficient_players"
	NotEligible         Kind = "not_eligible"
	InvalidScore        Kind = "invalid_score"
	InvalidCredentials  Kind = "invalid_credentials"

	// Resource kinds. The operation is rolled back; caller may retry.
	UploadFailed Kind = "upload_failed"
	LaunchFailed Kind = "launch_failed"

	Internal Kind = "internal_error"
)

// Error is the concrete error type returned by the core services.
type Error struct {
	Kind   Kind
	Entity string // game id, room id, "player/game" pair, ...
	Msg    string
	cause  error
}

func (e *Error) Error() string {
	if e.Entity != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Entity, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an error of the given kind for an entity.
func New(kind Kind, entity, msg string) *Error {
	return &Error{Kind: kind, Entity: entity, Msg: msg}
}

func Newf(kind Kind, entity, format string, args ...any) *Error {
	return &Error{Kind: kind, Entity: entity, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause so callers can still errors.Is/As into it.
func Wrap(kind Kind, entity, msg string, cause error) *Error {
	return &Error{Kind: kind, Entity: entity, Msg: msg, cause: cause}
}

// KindOf extracts the kind from err, or Internal for foreign errors.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Internal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool { return KindOf(err) == kind }
