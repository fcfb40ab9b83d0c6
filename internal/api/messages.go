package api

import (
	"net/http"

	"parley/internal/content"
	"parley/internal/models"
)

type sendMessageBody struct {
	Content string             `json:"content"`
	Type    models.MessageType `json:"type"`
}

type directMessageView struct {
	models.DirectMessage
	HTML string `json:"html,omitempty"`
}

type groupMessageView struct {
	models.GroupMessage
	HTML string `json:"html,omitempty"`
}

type readResponse struct {
	Updated int `json:"updated"`
}

// renderText turns markdown message text into HTML. Rendering failures fall
// back to the stored text.
func (a *API) renderText(typ models.MessageType, text string) string {
	if typ != models.MessageTypeText {
		return ""
	}
	html, err := content.Render(text)
	if err != nil {
		a.logger.Warn("rendering message", "error", err)
		return ""
	}
	return html
}

func (a *API) directView(m models.DirectMessage) directMessageView {
	return directMessageView{DirectMessage: m, HTML: a.renderText(m.Type, m.Content)}
}

func (a *API) groupView(m models.GroupMessage) groupMessageView {
	return groupMessageView{GroupMessage: m, HTML: a.renderText(m.Type, m.Content)}
}

func (a *API) ConversationHandler(w http.ResponseWriter, r *http.Request) {
	msgs, err := a.conversations.Conversation(r.Context(), userIDFrom(r.Context()), r.PathValue("userId"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	views := make([]directMessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, a.directView(m))
	}
	a.writeJSON(w, http.StatusOK, views)
}

func (a *API) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
	var body sendMessageBody
	if err := decodeJSON(r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}
	msg, err := a.conversations.SendMessage(r.Context(), userIDFrom(r.Context()), r.PathValue("userId"), body.Content, body.Type)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, a.directView(msg))
}

func (a *API) SendMediaHandler(w http.ResponseWriter, r *http.Request) {
	upload, typ, err := a.readUpload(w, r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	msg, err := a.conversations.SendMedia(r.Context(), userIDFrom(r.Context()), r.PathValue("userId"), upload, typ)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, a.directView(msg))
}

func (a *API) MarkConversationReadHandler(w http.ResponseWriter, r *http.Request) {
	n, err := a.conversations.MarkConversationAsRead(r.Context(), userIDFrom(r.Context()), r.PathValue("userId"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, readResponse{Updated: n})
}

func (a *API) MarkMessageReadHandler(w http.ResponseWriter, r *http.Request) {
	msg, err := a.conversations.MarkAsRead(r.Context(), r.PathValue("id"), userIDFrom(r.Context()))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, a.directView(msg))
}
