package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	echo "github.com/labstack/echo/v5"
)

// SlashResponse is the immediate acknowledgement body for POST /slash.
// Slack requires a response within 3s; the actual command is processed
// asynchronously and its answer, if any, is posted back into the thread
// by the conversation manager.
type SlashResponse struct {
	ResponseType string `json:"response_type"`
	Text         string `json:"text"`
}

// slashHandler handles POST /slash: a Slack slash command. Always
// acknowledges immediately; HandleMessage does the actual work in a
// detached goroutine.
//
// A slash command has no Slack thread timestamp to anchor a session on, so
// the conversation manager keys it by "<channel>:slash:<user>" instead --
// every slash invocation from the same user in the same channel reuses one
// durable session. incident_id is optional on that session, so the leading
// token is only treated as one when it isn't itself a recognized command
// verb: "/incidentbot status" works against whatever incident the session
// is already anchored to (or gets a no-incident reply if none is), while
// "/incidentbot inc-42 status" targets inc-42 explicitly.
func (s *Server) slashHandler(c *echo.Context) error {
	channelID := c.FormValue("channel_id")
	userID := c.FormValue("user_id")
	text := strings.TrimSpace(c.FormValue("text"))

	if channelID == "" || userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing channel_id or user_id")
	}

	if incidentID, command, ok := splitSlashText(text); ok {
		go s.handleSlashCommand(channelID, userID, incidentID, command)
	}

	return c.JSON(http.StatusOK, &SlashResponse{
		ResponseType: "ephemeral",
		Text:         "Processing your request...",
	})
}

// slashCommandVerbs are the first-word commands ParseIntent recognizes;
// seeing one of these as the leading token means the whole text is a
// command instead of an "<incident_id> <command>" pair.
var slashCommandVerbs = map[string]bool{
	"status": true, "logs": true, "deployments": true, "restart": true,
	"redeploy": true, "stop": true, "scale": true, "rollback": true,
	"resolve": true, "help": true,
}

// splitSlashText splits "[<incident_id>] <command...>" into its parts.
// ok is false only for empty input.
func splitSlashText(text string) (incidentID, command string, ok bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", "", false
	}
	if slashCommandVerbs[strings.ToLower(fields[0])] {
		return "", text, true
	}
	if len(fields) == 1 {
		return fields[0], "status", true
	}
	return fields[0], strings.Join(fields[1:], " "), true
}

func (s *Server) handleSlashCommand(channelID, userID, incidentID, command string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sessionKey := channelID + ":slash:" + userID

	if _, err := s.conversation.Open(ctx, incidentID, userID, sessionKey); err != nil {
		s.logger.Error("failed to open slash command session", "incident_id", incidentID, "error", err)
		return
	}
	if err := s.conversation.HandleMessage(ctx, sessionKey, userID, command); err != nil {
		s.logger.Error("failed to handle slash command", "incident_id", incidentID, "error", err)
	}
}
