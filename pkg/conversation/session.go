package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/incidentbot/ent"
	"github.com/codeready-toolchain/incidentbot/ent/conversationmessage"
	"github.com/codeready-toolchain/incidentbot/ent/conversationsession"
	"github.com/codeready-toolchain/incidentbot/pkg/config"
)

// findOrCreateSession looks up the session anchored to threadTS, creating
// one on first use. incidentID is optional: empty means the session starts
// with no incident anchor, which read-only and mutating handlers treat as
// "ask the user to specify one". A previously resolved session on the same
// thread is reactivated rather than left closed -- chat_thread_ts is unique,
// so a second row for the same thread can never be created, and without
// reactivation HandleMessage's "active session for thread" lookup would 404
// forever after the first resolve. Reactivation reports created=true so the
// caller re-announces the session start and re-publishes SessionOpened.
func findOrCreateSession(ctx context.Context, client *ent.Client, incidentID, participantID, threadTS string) (session *ent.ConversationSession, created bool, err error) {
	existing, err := client.ConversationSession.Query().
		Where(conversationsession.ChatThreadTSEQ(threadTS)).
		Only(ctx)
	switch {
	case ent.IsNotFound(err):
		create := client.ConversationSession.Create().
			SetID(uuid.NewString()).
			SetChatThreadTS(threadTS).
			SetParticipantID(participantID)
		if incidentID != "" {
			create = create.SetIncidentID(incidentID)
		}
		created, createErr := create.Save(ctx)
		if createErr != nil {
			return nil, false, fmt.Errorf("create conversation session: %w", createErr)
		}
		return created, true, nil
	case err != nil:
		return nil, false, fmt.Errorf("query conversation session: %w", err)
	}
	if !existing.Active {
		update := client.ConversationSession.UpdateOneID(existing.ID).
			SetActive(true).
			ClearClosedAt().
			SetParticipantID(participantID)
		if incidentID != "" {
			update = update.SetIncidentID(incidentID)
		}
		reopened, updateErr := update.Save(ctx)
		if updateErr != nil {
			return nil, false, fmt.Errorf("reopen conversation session: %w", updateErr)
		}
		return reopened, true, nil
	}
	return existing, false, nil
}

func appendMessage(ctx context.Context, client *ent.Client, sessionID string, role config.ConversationRole, content, slackUserID string) (*ent.ConversationMessage, error) {
	create := client.ConversationMessage.Create().
		SetID(uuid.NewString()).
		SetSessionID(sessionID).
		SetRole(conversationmessage.Role(role)).
		SetContent(content)
	if slackUserID != "" {
		create = create.SetSlackUserID(slackUserID)
	}
	msg, err := create.Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("append conversation message: %w", err)
	}
	// last_message_at carries an UpdateDefault, so touching the session
	// with no explicit field set still bumps it -- the same idiom the
	// schema's own doc comment on the field describes.
	if _, err := client.ConversationSession.UpdateOneID(sessionID).Save(ctx); err != nil {
		return nil, fmt.Errorf("touch conversation session: %w", err)
	}
	return msg, nil
}

func closeSession(ctx context.Context, client *ent.Client, sessionID string) error {
	now := time.Now()
	_, err := client.ConversationSession.UpdateOneID(sessionID).
		SetActive(false).
		SetClosedAt(now).
		Save(ctx)
	if err != nil {
		return fmt.Errorf("close conversation session %s: %w", sessionID, err)
	}
	return nil
}

// history loads the session's messages in non-decreasing timestamp order,
// capped to the most recent limit turns, for use as LLM context.
func history(ctx context.Context, client *ent.Client, sessionID string, limit int) ([]Message, error) {
	msgs, err := client.ConversationMessage.Query().
		Where(conversationmessage.SessionIDEQ(sessionID)).
		Order(ent.Asc(conversationmessage.FieldCreatedAt)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("load conversation history: %w", err)
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, Message{Role: string(m.Role), Content: m.Content})
	}
	return out, nil
}
