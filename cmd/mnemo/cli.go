package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/mnemo/internal/delivery"
	"github.com/hpungsan/mnemo/internal/errors"
	"github.com/hpungsan/mnemo/internal/ingest"
	"github.com/hpungsan/mnemo/internal/mcp"
	"github.com/hpungsan/mnemo/internal/plugin"
	"github.com/hpungsan/mnemo/internal/store"
)

// maxStdinBytes bounds piped input. Length limits proper are enforced in
// characters by the operations themselves.
const maxStdinBytes = 1 << 20

// newCLIApp creates the CLI application with all commands.
func newCLIApp(p *plugin.Plugin) *cli.App {
	app := &cli.App{
		Name:    "mnemo",
		Usage:   "Long-term memory and skills for coding agents",
		Version: Version,
		Commands: []*cli.Command{
			rememberCmd(p),
			recallCmd(p),
			ingestCmd(p),
			skillsCmd(p),
			identityCmd(p),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// rememberCmd creates the remember command.
func rememberCmd(p *plugin.Plugin) *cli.Command {
	return &cli.Command{
		Name:      "remember",
		Usage:     "Store a fact about the subject (argument or stdin)",
		ArgsUsage: "[fact]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "Print the result as JSON"},
		},
		Action: func(c *cli.Context) error {
			fact, err := argOrStdin(c)
			if err != nil {
				return outputError(err)
			}
			if err := p.Start(c.Context); err != nil {
				return outputError(err)
			}

			out, err := p.Remember(c.Context, fact)
			if err != nil {
				return outputError(err)
			}
			if c.Bool("json") {
				return outputJSON(out)
			}
			return outputText(out.Reply())
		},
	}
}

// recallCmd creates the recall command.
func recallCmd(p *plugin.Plugin) *cli.Command {
	return &cli.Command{
		Name:      "recall",
		Usage:     "Search stored facts",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "Maximum facts to return (defaults to search_limit)"},
			&cli.BoolFlag{Name: "json", Usage: "Print the result as JSON"},
		},
		Action: func(c *cli.Context) error {
			query := strings.Join(c.Args().Slice(), " ")
			if strings.TrimSpace(query) == "" {
				return outputError(errors.NewInvalidRequest("query is required"))
			}

			out, err := p.Recall(c.Context, query, c.Int("limit"))
			if err != nil {
				return outputError(err)
			}
			if c.Bool("json") {
				return outputJSON(out)
			}
			return outputText(out.Reply())
		},
	}
}

// ingestResult is the CLI view of one ingested message.
type ingestResult struct {
	Route  string `json:"route"`
	JobID  string `json:"job_id,omitempty"`
	Status string `json:"status"`
}

// ingestCmd creates the ingest command. The process flushes the write queue
// before exiting, so a non-blocking ingest still completes.
func ingestCmd(p *plugin.Plugin) *cli.Command {
	return &cli.Command{
		Name:      "ingest",
		Usage:     "Ingest one conversation message (argument or stdin)",
		ArgsUsage: "[text]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "role", Aliases: []string{"r"}, Value: string(store.RoleSubject), Usage: "Message author: subject|agent"},
		},
		Action: func(c *cli.Context) error {
			text, err := argOrStdin(c)
			if err != nil {
				return outputError(err)
			}
			if !p.Enabled() {
				return outputError(errors.NewDisabled("memory is disabled: no store configured"))
			}
			if err := p.Start(c.Context); err != nil {
				return outputError(err)
			}

			res, err := p.OnMessage(c.Context, ingest.Event{
				Role:  store.Role(c.String("role")),
				Parts: []ingest.Part{{Type: ingest.PartText, Text: text}},
			})
			if err != nil {
				return outputError(err)
			}
			if err := p.Shutdown(c.Context); err != nil {
				return outputError(err)
			}

			out := ingestResult{Route: res.Kind.String(), JobID: res.JobID, Status: "skipped"}
			switch {
			case res.Outcome != nil:
				out.Status = res.Outcome.Status.String()
			case res.JobID != "":
				out.Status = "flushed"
			}
			return outputJSON(out)
		},
	}
}

// skillsCmd creates the skills command group.
func skillsCmd(p *plugin.Plugin) *cli.Command {
	return &cli.Command{
		Name:  "skills",
		Usage: "Inspect discovered skills",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List discovered skills",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "rejected", Usage: "Also list manifests that failed validation"},
				},
				Action: func(c *cli.Context) error {
					return outputJSON(skillListing(p, c.Bool("rejected")))
				},
			},
			{
				Name:      "show",
				Usage:     "Print the messages a skill injects when loaded",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					id := c.Args().First()
					if id == "" {
						return outputError(errors.NewInvalidRequest("skill id is required"))
					}
					b, ok := p.Skills().Get(id)
					if !ok {
						return outputError(errors.NewNotFound("skill", id))
					}
					msgs := delivery.Messages(b)
					texts := make([]string, 0, len(msgs))
					for _, m := range msgs {
						texts = append(texts, m.Text)
					}
					return outputText(strings.Join(texts, "\n\n"))
				},
			},
		},
	}
}

// rejectedSkill is one manifest that discovery skipped.
type rejectedSkill struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// skillListOutput is the result of skills list.
type skillListOutput struct {
	Skills   []mcp.SkillSummary `json:"skills"`
	Rejected []rejectedSkill    `json:"rejected,omitempty"`
}

func skillListing(p *plugin.Plugin, withRejected bool) skillListOutput {
	list := p.Skills().List()
	out := skillListOutput{Skills: make([]mcp.SkillSummary, 0, len(list))}
	for _, b := range list {
		out.Skills = append(out.Skills, mcp.SkillSummary{
			ID:           b.ID,
			Tool:         "skill_" + b.ID,
			Title:        b.Title,
			Description:  b.Description,
			AllowedTools: b.AllowedTools,
			License:      b.License,
		})
	}
	if withRejected {
		for _, r := range p.Skills().Rejected() {
			out.Rejected = append(out.Rejected, rejectedSkill{Path: r.Path, Error: r.Err.Error()})
		}
	}
	return out
}

// identityOutput is the result of the identity command.
type identityOutput struct {
	SubjectID      string `json:"subject_id"`
	ConversationID string `json:"conversation_id"`
	Source         string `json:"source"`
	MemoryEnabled  bool   `json:"memory_enabled"`
	Backend        string `json:"backend,omitempty"`
	NonBlocking    bool   `json:"non_blocking"`
}

// identityCmd creates the identity command.
func identityCmd(p *plugin.Plugin) *cli.Command {
	return &cli.Command{
		Name:  "identity",
		Usage: "Show the subject and conversation this directory maps to",
		Action: func(c *cli.Context) error {
			cfg := p.Config()
			id := p.Identity()
			out := identityOutput{
				SubjectID:      cfg.SubjectID,
				ConversationID: id.ConversationID,
				Source:         string(id.Source),
				MemoryEnabled:  p.Enabled(),
				NonBlocking:    cfg.NonBlocking(),
			}
			if p.Enabled() {
				out.Backend = cfg.Backend
			}
			return outputJSON(out)
		},
	}
}

// outputJSON prints v as indented JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func outputText(s string) error {
	_, err := fmt.Fprintln(os.Stdout, s)
	return err
}

// outputError formats error for CLI.
func outputError(err error) error {
	if mErr := errors.From(err); mErr != nil {
		return cli.Exit(fmt.Sprintf("[%s] %s", mErr.Code, mErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// argOrStdin returns the positional arguments joined by spaces, or piped
// stdin when there are none.
func argOrStdin(c *cli.Context) (string, error) {
	if c.NArg() > 0 {
		return strings.Join(c.Args().Slice(), " "), nil
	}
	if !stdinHasData() {
		return "", errors.NewInvalidRequest("text must be given as an argument or piped via stdin")
	}
	return readStdin(maxStdinBytes)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads at most limit bytes from stdin.
func readStdin(limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(os.Stdin, limit+1))
	if err != nil {
		return "", errors.NewInternal(err)
	}
	if int64(len(data)) > limit {
		return "", errors.NewInvalidRequest(fmt.Sprintf("stdin exceeds %d bytes", limit))
	}
	return strings.TrimSpace(string(data)), nil
}
