package main

import (
	"fmt"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/C23038/URITOMO-Frontend/internal/model/meeting"
	"github.com/C23038/URITOMO-Frontend/internal/render"
	"github.com/C23038/URITOMO-Frontend/internal/service/room"
)

func roomCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "room",
		Short: "Inspect rooms and manage invitations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show <roomId>",
		Short: "Show a room and its members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			detail, err := room.NewService(newAPIClient(cfg)).GetRoomDetail(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n", detail.Title, detail.ID)
			render.ParticipantsTable(out, membersAsParticipants(detail.Members))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "invite <roomId> <email>",
		Short: "Add a member to a room by email",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := room.NewService(newAPIClient(cfg)).AddMember(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", resp.Message, resp.Member.DisplayName)
			return nil
		},
	})

	cmd.AddCommand(inviteAnswerCmd("accept", "Accept a room invitation"))
	cmd.AddCommand(inviteAnswerCmd("reject", "Reject a room invitation"))
	return cmd
}

func inviteAnswerCmd(action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <inviteId>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := room.NewService(newAPIClient(cfg))
			answer := svc.AcceptInvite
			if action == "reject" {
				answer = svc.RejectInvite
			}
			resp, err := answer(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
			return nil
		},
	}
}

func membersAsParticipants(members []room.Member) []meeting.Participant {
	return lo.Map(members, func(m room.Member, _ int) meeting.Participant {
		return meeting.Participant{
			ID:          lo.Ternary(m.UserID != "", m.UserID, m.ID),
			DisplayName: m.DisplayName,
			Online:      m.Status == "online",
		}
	})
}
