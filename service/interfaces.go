package service

import "context"

// Roster reports live chat membership. The timer engine consults it before
// resolving area effects; when membership cannot be retrieved the whole
// area resolution is aborted rather than guessed.
type Roster interface {
	Members(ctx context.Context, chatID string) ([]string, error)
}

// ChatModerator applies and reverses the environment effect's chat
// mutations. Applied settings are returned as opaque keys so the reversal
// undoes exactly what was done.
type ChatModerator interface {
	Promote(ctx context.Context, chatID, userID string) error
	Demote(ctx context.Context, chatID, userID string) error
	RestrictChat(ctx context.Context, chatID string) ([]string, error)
	RestoreChat(ctx context.Context, chatID string, applied []string) error
}
