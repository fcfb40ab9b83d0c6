package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"parley/internal/group"
	"parley/internal/models"
)

type createGroupBody struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type addMemberBody struct {
	UserID string `json:"userId"`
}

// requireRole fails with models.ErrForbidden unless the caller is a member
// of the group, and an admin when admin is set.
func (a *API) requireRole(r *http.Request, groupID string, admin bool) error {
	role, err := a.groups.Role(r.Context(), groupID, userIDFrom(r.Context()))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Unknown group stays a 404.
			if _, gerr := a.groups.MemberIDs(r.Context(), groupID); gerr != nil {
				return gerr
			}
			return errNotGroupMember
		}
		return err
	}
	if admin && role != models.RoleAdmin {
		return fmt.Errorf("%w: admin role required", models.ErrForbidden)
	}
	return nil
}

func (a *API) CreateGroupHandler(w http.ResponseWriter, r *http.Request) {
	req := group.NewGroup{CreatorID: userIDFrom(r.Context())}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		upload, _, err := a.readUpload(w, r)
		if err != nil && !errors.Is(err, errMissingFile) {
			a.writeError(w, r, err)
			return
		}
		if err == nil {
			req.Image = &upload
		}
		req.Name = r.FormValue("name")
		req.Description = r.FormValue("description")
	} else {
		var body createGroupBody
		if err := decodeJSON(r, &body); err != nil {
			a.writeError(w, r, err)
			return
		}
		req.Name = body.Name
		req.Description = body.Description
	}

	g, err := a.groups.CreateGroup(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, g)
}

func (a *API) UserGroupsHandler(w http.ResponseWriter, r *http.Request) {
	groups, err := a.groups.UserGroups(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, groups)
}

func (a *API) GroupDetailsHandler(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("id")
	if err := a.requireRole(r, groupID, false); err != nil {
		a.writeError(w, r, err)
		return
	}
	details, err := a.groups.GroupDetails(r.Context(), groupID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, details)
}

func (a *API) AddMemberHandler(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("id")
	var body addMemberBody
	if err := decodeJSON(r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.requireRole(r, groupID, true); err != nil {
		a.writeError(w, r, err)
		return
	}
	m, err := a.groups.AddMember(r.Context(), groupID, body.UserID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, m)
}

// RemoveMemberHandler lets a member leave, or an admin remove someone else.
func (a *API) RemoveMemberHandler(w http.ResponseWriter, r *http.Request) {
	groupID, target := r.PathValue("id"), r.PathValue("userId")
	if target != userIDFrom(r.Context()) {
		if err := a.requireRole(r, groupID, true); err != nil {
			a.writeError(w, r, err)
			return
		}
	}
	disp, err := a.groups.RemoveMember(r.Context(), groupID, target)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, disp)
}

func (a *API) GroupMessagesHandler(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("id")
	if err := a.requireRole(r, groupID, false); err != nil {
		a.writeError(w, r, err)
		return
	}
	msgs, err := a.groups.GroupMessages(r.Context(), groupID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	views := make([]groupMessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, a.groupView(m))
	}
	a.writeJSON(w, http.StatusOK, views)
}

func (a *API) SendGroupMessageHandler(w http.ResponseWriter, r *http.Request) {
	var body sendMessageBody
	if err := decodeJSON(r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}
	msg, err := a.groups.SendGroupMessage(r.Context(), r.PathValue("id"), userIDFrom(r.Context()), body.Content, body.Type)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, a.groupView(msg))
}

func (a *API) SendGroupMediaHandler(w http.ResponseWriter, r *http.Request) {
	upload, typ, err := a.readUpload(w, r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	msg, err := a.groups.SendGroupMedia(r.Context(), r.PathValue("id"), userIDFrom(r.Context()), upload, typ)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, a.groupView(msg))
}
