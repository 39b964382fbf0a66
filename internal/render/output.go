// Package render formats the live conversation for the terminal.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/C23038/URITOMO-Frontend/internal/model/meeting"
	"github.com/C23038/URITOMO-Frontend/internal/service/session"
)

// Renderer turns entries and session updates into terminal lines.
type Renderer struct {
	pretty bool
}

// New creates a renderer. pretty enables colors and markers.
func New(pretty bool) *Renderer {
	return &Renderer{pretty: pretty}
}

// Entry formats one chat entry and its translation, if any.
func (r *Renderer) Entry(e meeting.ChatEntry) string {
	var sb strings.Builder
	timeStr := e.CreatedAt.Local().Format("15:04:05")
	name := e.DisplayName
	if name == "" {
		name = e.SenderID
	}

	if r.pretty {
		who := color.CyanString("%s", name)
		if e.IsSelf {
			who = color.GreenString("%s (me)", name)
		}
		fmt.Fprintf(&sb, "%s %s: %s\n", color.HiBlackString("%s", timeStr), who, e.Text)
		if e.Translated() {
			fmt.Fprintf(&sb, "    %s %s\n", color.YellowString("↳"), color.YellowString("%s", e.TranslatedText()))
		}
		return sb.String()
	}

	self := ""
	if e.IsSelf {
		self = " (me)"
	}
	fmt.Fprintf(&sb, "[%s] %s%s: %s\n", timeStr, name, self, e.Text)
	if e.Translated() {
		fmt.Fprintf(&sb, "    -> %s\n", e.TranslatedText())
	}
	return sb.String()
}

// Update formats a session update. It returns an empty string for updates with nothing to show.
func (r *Renderer) Update(u session.Update) string {
	switch u.Kind {
	case session.UpdateMessages:
		if u.Entry == nil {
			return ""
		}
		return r.Entry(*u.Entry)
	case session.UpdateParticipants:
		return r.line(color.MagentaString, "participants: "+participantNames(u.Participants))
	case session.UpdateState:
		return r.line(stateColor(u.State), "connection: "+string(u.State))
	case session.UpdateProfile:
		return r.line(color.MagentaString, "you are now "+u.Name)
	case session.UpdateError:
		if u.Error == "" {
			return ""
		}
		return r.line(color.RedString, "error: "+u.Error)
	}
	return ""
}

func (r *Renderer) line(paint func(string, ...interface{}) string, text string) string {
	if r.pretty {
		return paint("* %s", text) + "\n"
	}
	return "* " + text + "\n"
}

func stateColor(s meeting.ConnectionState) func(string, ...interface{}) string {
	switch s {
	case meeting.StateConnected:
		return color.GreenString
	case meeting.StateFailed:
		return color.RedString
	default:
		return color.YellowString
	}
}

func participantNames(ps []meeting.Participant) string {
	if len(ps) == 0 {
		return "(none)"
	}
	names := make([]string, 0, len(ps))
	for _, p := range ps {
		name := p.DisplayName
		if !p.Online {
			name += " (offline)"
		}
		names = append(names, name)
	}
	return strings.Join(names, ", ")
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

// HistoryTable writes archived entries as a table.
func HistoryTable(w io.Writer, entries []meeting.ChatEntry) {
	table := newTable(w, []string{"Seq", "Time", "Sender", "Text", "Translation"})
	for _, e := range entries {
		table.Append([]string{
			fmt.Sprintf("%d", e.Sequence),
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			e.DisplayName,
			e.Text,
			e.TranslatedText(),
		})
	}
	table.Render()
}

// ParticipantsTable writes the member list as a table.
func ParticipantsTable(w io.Writer, ps []meeting.Participant) {
	table := newTable(w, []string{"ID", "Name", "Status"})
	for _, p := range ps {
		status := "offline"
		if p.Online {
			status = "online"
		}
		table.Append([]string{p.ID, p.DisplayName, status})
	}
	table.Render()
}
