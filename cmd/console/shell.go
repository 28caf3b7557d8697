package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"campaign-console/internal/calls"
	"campaign-console/internal/campaigns"
	"campaign-console/internal/console"
	"campaign-console/internal/gateway"
)

// shell is the line-oriented operator front end over console.Console.
// Failures are already surfaced through the notification sink.
type shell struct {
	app *console.Console
	out io.Writer
}

const help = `commands:
  login <email> <password>   logout   whoami
  list   new <name>   open <id>   close   show   delete <id>
  rename <name>   prompt <text>   persona <text>   voice <id>   voices
  kb <file.pdf>   unkb <fileId>   leads <file.csv|xlsx>
  sample <name> <file>   clone <name> <sample>...
  start   pause   activity   calls   history   refresh   dial <leadId>
  status <callId>   transcript <callId>   play <callId>   stop
  dashboard   help   quit`

func (s *shell) prompt() {
	name := "-"
	if st := s.app.Campaigns.State(); st.Campaign != nil {
		name = st.Campaign.Name
	}
	fmt.Fprintf(s.out, "[%s]> ", name)
}

// exec runs one command line. It returns false when the operator quits.
func (s *shell) exec(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true
	}
	cmd, args := fields[0], fields[1:]
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), cmd))

	switch cmd {
	case "quit", "exit":
		return false
	case "help":
		fmt.Fprintln(s.out, help)

	case "login":
		if len(args) != 2 {
			fmt.Fprintln(s.out, "usage: login <email> <password>")
			return true
		}
		if sess, err := s.app.Login(ctx, args[0], args[1]); err == nil {
			fmt.Fprintf(s.out, "signed in as %s (%s)\n", sess.Email, sess.Mode)
		} else {
			fmt.Fprintln(s.out, "invalid email or password")
		}
	case "logout":
		_ = s.app.Logout(ctx)
	case "whoami":
		sess := s.app.Auth.Session()
		if !sess.Authenticated {
			fmt.Fprintln(s.out, "not signed in")
			return true
		}
		fmt.Fprintf(s.out, "%s <%s> %s\n", sess.Name, sess.Email, sess.Mode)

	case "list":
		list, err := s.app.ListCampaigns(ctx)
		if err == nil {
			s.printCampaigns(list)
		}
	case "new":
		if c, err := s.app.CreateCampaign(ctx, gateway.CreateCampaignRequest{Name: rest}); err == nil {
			fmt.Fprintf(s.out, "created %s\n", c.ID)
		}
	case "delete":
		if len(args) == 1 {
			_ = s.app.DeleteCampaign(ctx, args[0])
		}
	case "open":
		if len(args) != 1 {
			fmt.Fprintln(s.out, "usage: open <id>")
			return true
		}
		if _, err := s.app.Open(ctx, args[0]); err == nil {
			s.show()
		}
	case "close":
		s.app.CloseCampaign()
	case "show":
		s.show()

	case "rename":
		s.patch(ctx, campaigns.CampaignPatch{Name: &rest})
	case "prompt":
		s.patch(ctx, campaigns.CampaignPatch{FirstPrompt: &rest})
	case "persona":
		s.patch(ctx, campaigns.CampaignPatch{SystemPersona: &rest})
	case "voice":
		if len(args) == 1 {
			_, _ = s.app.AttachVoice(ctx, args[0])
		}
	case "voices":
		if vs, err := s.app.Voices(ctx); err == nil {
			w := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
			for _, v := range vs {
				fmt.Fprintf(w, "%s\t%s\t%s\n", v.ID, v.Name, v.Category)
			}
			_ = w.Flush()
		}
	case "kb":
		if len(args) == 1 {
			s.withFile(args[0], func(f *os.File) {
				_, _ = s.app.UploadKnowledgeBase(ctx, gateway.FileUpload{FileName: filepath.Base(f.Name()), Content: f})
			})
		}
	case "unkb":
		if len(args) == 1 {
			_, _ = s.app.RemoveKnowledgeBase(ctx, args[0])
		}
	case "sample":
		if len(args) != 2 {
			fmt.Fprintln(s.out, "usage: sample <name> <file>")
			return true
		}
		s.withFile(args[1], func(f *os.File) {
			if v, err := s.app.UploadVoiceSample(ctx, args[0], gateway.FileUpload{FileName: filepath.Base(f.Name()), Content: f}); err == nil {
				fmt.Fprintf(s.out, "voice %s created\n", v.ID)
			}
		})
	case "leads":
		if len(args) == 1 {
			s.withFile(args[0], func(f *os.File) {
				added, skipped, err := s.app.ImportLeadSheet(ctx, f.Name(), f)
				if err != nil {
					return
				}
				fmt.Fprintf(s.out, "%d leads attached\n", len(added))
				for _, r := range skipped {
					fmt.Fprintf(s.out, "  row %d skipped: %s\n", r.Row, r.Message)
				}
			})
		}
	case "clone":
		s.clone(ctx, args)

	case "start":
		_, _ = s.app.StartCampaign(ctx)
	case "pause":
		_, _ = s.app.PauseCampaign(ctx)
	case "activity":
		if events, err := s.app.Activity(ctx, 20); err == nil {
			w := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
			for _, e := range events {
				fmt.Fprintf(w, "%s\t%s\t%s\n", e.CreatedAt.Local().Format("Jan 02 15:04:05"), e.Type, e.Message)
			}
			_ = w.Flush()
		}
	case "refresh":
		_ = s.app.Refresh(ctx)
	case "calls":
		s.printActive(s.app.ActiveCalls())
	case "history":
		if rows, err := s.app.CallHistory(ctx); err == nil {
			s.printHistory(rows)
		}
	case "dial":
		if len(args) == 1 {
			if row, err := s.app.InitiateCall(ctx, args[0]); err == nil {
				fmt.Fprintf(s.out, "calling %s (%s)\n", row.ContactNo, row.ID)
			}
		}
	case "status":
		if len(args) == 1 {
			if row, err := s.app.CallStatus(ctx, args[0]); err == nil {
				fmt.Fprintf(s.out, "%s  %s  %s  %ds\n", row.ID, row.ContactNo, row.Status.Present().Label, row.DurationSeconds)
			}
		}
	case "transcript":
		if len(args) == 1 {
			s.transcript(ctx, args[0])
		}
	case "play":
		if len(args) == 1 {
			s.play(ctx, args[0])
		}
	case "stop":
		s.app.Playback.Stop()

	case "dashboard":
		if d, err := s.app.Dashboard(ctx); err == nil {
			sum := d.Summary
			fmt.Fprintf(s.out, "calls %d  completed %d  failed %d  no-answer %d  avg %ds  connection %.0f%%\n",
				sum.TotalCalls, sum.CompletedCalls, sum.FailedCalls, sum.NoAnswerCalls,
				sum.AverageDurationSeconds, sum.ConnectionRate*100)
		}
	default:
		fmt.Fprintf(s.out, "unknown command %q, try help\n", cmd)
	}
	return true
}

func (s *shell) patch(ctx context.Context, p campaigns.CampaignPatch) {
	if c, err := s.app.UpdateCampaign(ctx, p); err == nil {
		fmt.Fprintf(s.out, "saved %s\n", c.Name)
	}
}

func (s *shell) withFile(path string, fn func(*os.File)) {
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintln(s.out, err)
		return
	}
	defer f.Close()
	fn(f)
}

func (s *shell) clone(ctx context.Context, args []string) {
	if len(args) < 2 {
		fmt.Fprintln(s.out, "usage: clone <name> <sample>...")
		return
	}
	req := gateway.CloneVoiceRequest{Name: args[0]}
	for _, p := range args[1:] {
		f, err := os.Open(p)
		if err != nil {
			fmt.Fprintln(s.out, err)
			return
		}
		defer f.Close()
		req.Samples = append(req.Samples, gateway.FileUpload{FileName: filepath.Base(p), Content: f})
	}
	if v, err := s.app.CloneVoice(ctx, req); err == nil {
		fmt.Fprintf(s.out, "cloned voice %s\n", v.ID)
	}
}

// findCall looks a call up in the open campaign's history.
func (s *shell) findCall(ctx context.Context, callID string) (calls.CallLog, bool) {
	rows, err := s.app.CallHistory(ctx)
	if err != nil {
		return calls.CallLog{}, false
	}
	for _, row := range rows {
		if row.ID == callID {
			return row, true
		}
	}
	fmt.Fprintf(s.out, "no call %s in this campaign\n", callID)
	return calls.CallLog{}, false
}

func (s *shell) transcript(ctx context.Context, callID string) {
	row, ok := s.findCall(ctx, callID)
	if !ok {
		return
	}
	conv, err := s.app.Transcript(ctx, row)
	if err != nil {
		return
	}
	if len(conv.Transcript) == 0 {
		fmt.Fprintln(s.out, "no transcript for this call")
		return
	}
	if conv.Summary != "" {
		fmt.Fprintf(s.out, "summary: %s\n", conv.Summary)
	}
	w := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	for _, turn := range conv.Transcript {
		fmt.Fprintf(w, "%6.1fs\t%s\t%s\n", turn.TimeSec, turn.Role, turn.Message)
	}
	_ = w.Flush()
}

func (s *shell) play(ctx context.Context, callID string) {
	row, ok := s.findCall(ctx, callID)
	if !ok {
		return
	}
	if !row.CanPlay() {
		fmt.Fprintln(s.out, "no recording for this call yet")
		return
	}
	if playing, err := s.app.TogglePlayback(ctx, row); err == nil {
		fmt.Fprintf(s.out, "playing: %v\n", playing)
	}
}

func (s *shell) show() {
	st := s.app.Campaigns.State()
	if st.Campaign == nil {
		fmt.Fprintln(s.out, "no campaign open")
		return
	}
	c := st.Campaign
	fmt.Fprintf(s.out, "%s  %s  [%s]\n", c.ID, c.Name, c.Status)
	fmt.Fprintf(s.out, "  voice: %s  knowledge base: %d file(s)\n", orDash(st.VoiceID), len(c.KnowledgeBaseIDs))
	fmt.Fprintf(s.out, "  leads %d  completed %d  successful %d  failed %d  success rate %.0f%%\n",
		c.TotalLeads, c.CompletedCalls, c.SuccessfulCalls, c.FailedCalls, c.SuccessRate()*100)
	if !campaigns.CanEdit(*c) {
		fmt.Fprintln(s.out, "  (read only)")
	}
	w := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	for _, l := range st.Leads {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", l.ID, l.FullName(), l.ContactNo, l.Status.Present().Label)
	}
	_ = w.Flush()
}

func (s *shell) printCampaigns(list []campaigns.Campaign) {
	w := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tLEADS\tDONE")
	for _, c := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n", c.ID, c.Name, c.Status, c.TotalLeads, c.CompletedCalls)
	}
	_ = w.Flush()
}

func (s *shell) printActive(rows []calls.ActiveCall) {
	if len(rows) == 0 {
		fmt.Fprintln(s.out, "no live calls")
		return
	}
	w := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.CallID, r.ContactNo, r.Status.Present().Label, r.StartedAt.Format("15:04:05"))
	}
	_ = w.Flush()
}

func (s *shell) printHistory(rows []calls.CallLog) {
	w := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CALL\tLEAD\tSTATUS\tDURATION\tRECORDING")
	for _, r := range rows {
		rec := "-"
		if r.CanPlay() {
			rec = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%ds\t%s\n", r.ID, orDash(r.LeadName), r.Status.Present().Label, r.DurationSeconds, rec)
	}
	_ = w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
