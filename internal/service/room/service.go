// Package room wraps the room management endpoints used around a meeting.
package room

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-playground/validator/v10"

	"github.com/C23038/URITOMO-Frontend/internal/service/backend"
)

var (
	ErrRoomIDRequired   = errors.New("room id is required")
	ErrInviteIDRequired = errors.New("invite id is required")
	ErrInvalidEmail     = errors.New("invalid member email")
)

var validate = validator.New()

type Member struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id,omitempty"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
	Role        string `json:"role,omitempty"`
	Status      string `json:"status,omitempty"`
	Locale      string `json:"locale,omitempty"`
}

type Detail struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	OwnerID   string   `json:"owner_id,omitempty"`
	Status    string   `json:"status,omitempty"`
	CreatedAt string   `json:"created_at,omitempty"`
	Members   []Member `json:"members"`
}

type AddMemberRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type AddMemberResponse struct {
	Message string `json:"message"`
	Member  Member `json:"member"`
}

type InviteResponse struct {
	Message string `json:"message"`
	RoomID  string `json:"room_id,omitempty"`
}

type Service struct {
	api *backend.Client
}

func NewService(api *backend.Client) *Service {
	return &Service{api: api}
}

// GetRoomDetail fetches GET /rooms/{roomID}.
func (s *Service) GetRoomDetail(ctx context.Context, roomID string) (Detail, error) {
	if roomID == "" {
		return Detail{}, ErrRoomIDRequired
	}
	var detail Detail
	if err := s.api.Do(ctx, http.MethodGet, "/rooms/"+url.PathEscape(roomID), nil, &detail); err != nil {
		return Detail{}, fmt.Errorf("get room %s: %w", roomID, err)
	}
	return detail, nil
}

// AddMember invites a user by email to the room.
func (s *Service) AddMember(ctx context.Context, roomID, email string) (AddMemberResponse, error) {
	if roomID == "" {
		return AddMemberResponse{}, ErrRoomIDRequired
	}
	req := AddMemberRequest{Email: email}
	if err := validate.Struct(req); err != nil {
		return AddMemberResponse{}, fmt.Errorf("%w: %v", ErrInvalidEmail, err)
	}

	var resp AddMemberResponse
	path := fmt.Sprintf("/rooms/%s/members", url.PathEscape(roomID))
	if err := s.api.Do(ctx, http.MethodPost, path, req, &resp); err != nil {
		return AddMemberResponse{}, fmt.Errorf("add member to room %s: %w", roomID, err)
	}
	return resp, nil
}

func (s *Service) AcceptInvite(ctx context.Context, inviteID string) (InviteResponse, error) {
	return s.answerInvite(ctx, inviteID, "accept")
}

func (s *Service) RejectInvite(ctx context.Context, inviteID string) (InviteResponse, error) {
	return s.answerInvite(ctx, inviteID, "reject")
}

func (s *Service) answerInvite(ctx context.Context, inviteID, action string) (InviteResponse, error) {
	if inviteID == "" {
		return InviteResponse{}, ErrInviteIDRequired
	}
	var resp InviteResponse
	path := fmt.Sprintf("/rooms/invite/%s/%s", url.PathEscape(inviteID), action)
	if err := s.api.Do(ctx, http.MethodPost, path, struct{}{}, &resp); err != nil {
		return InviteResponse{}, fmt.Errorf("%s invite %s: %w", action, inviteID, err)
	}
	return resp, nil
}
