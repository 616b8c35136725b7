// Package verifier checks Telegram group membership.
package verifier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tele "gopkg.in/telebot.v3"
)

// ChatMemberAPI is the slice of the Telegram bot API the verifier needs.
type ChatMemberAPI interface {
	ChatMemberOf(chat, user tele.Recipient) (*tele.ChatMember, error)
}

// chatName addresses a chat by its public @username.
type chatName string

func (c chatName) Recipient() string { return string(c) }

// Telegram verifies membership in a fixed set of groups. Errors are
// returned to the caller; membership is never assumed on error.
type Telegram struct {
	api    ChatMemberAPI
	groups []string
	log    *slog.Logger
}

// New constructs a Telegram verifier for the given group usernames. Names
// may be given with or without a leading @.
func New(api ChatMemberAPI, groups []string, log *slog.Logger) *Telegram {
	normalized := make([]string, 0, len(groups))
	for _, g := range groups {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		if !strings.HasPrefix(g, "@") {
			g = "@" + g
		}
		normalized = append(normalized, g)
	}

	return &Telegram{
		api:    api,
		groups: normalized,
		log:    log.With(slog.String("component", "verifier")),
	}
}

// IsMemberOfAll reports whether the user belongs to every required group.
// The first negative answer short-circuits; the first API error aborts the
// check.
func (t *Telegram) IsMemberOfAll(ctx context.Context, userID int64) (bool, error) {
	user := &tele.User{ID: userID}

	for _, group := range t.groups {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		member, err := t.api.ChatMemberOf(chatName(group), user)
		if err != nil {
			return false, fmt.Errorf("chat member of %s: %w", group, err)
		}

		if !activeMember(member.Role) {
			t.log.DebugContext(ctx, "user not in group",
				slog.Int64("user_id", userID),
				slog.String("group", group),
				slog.String("role", string(member.Role)))
			return false, nil
		}
	}

	return true, nil
}

func activeMember(role tele.MemberStatus) bool {
	switch role {
	case tele.Member, tele.Administrator, tele.Creator:
		return true
	default:
		return false
	}
}
