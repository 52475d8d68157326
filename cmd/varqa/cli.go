package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"variance-backend/internal/commentary"
	"variance-backend/internal/identity"
	"variance-backend/internal/llm"
	"variance-backend/internal/transcripts"
)

type cliDeps struct {
	Generator      llm.Generator
	IdentityConfig string
	AppID          string
	Stdin          io.Reader
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(deps cliDeps) *cli.App {
	app := &cli.App{
		Name:  "varqa",
		Usage: "Extract variance commentary from earnings call transcripts and ask questions about it",
		Commands: []*cli.Command{
			extractCmd(deps),
			askCmd(deps),
			sampleCmd(),
			tokenCmd(deps),
		},
	}
	// Errors are returned from Run instead of exiting the process.
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func extractCmd(deps cliDeps) *cli.Command {
	return &cli.Command{
		Name:  "extract",
		Usage: "Extract structured commentary from a transcript (file, stdin or sample)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Transcript file (.txt, .md, .html, .pdf, .docx)"},
			&cli.BoolFlag{Name: "sample", Usage: "Use the built-in sample transcript"},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Write commentary JSON to this file"},
		},
		Action: func(c *cli.Context) error {
			transcript, err := readTranscript(c, deps.Stdin)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			ctrl := commentary.New(commentary.Options{SessionID: "cli", Generator: deps.Generator})
			defer ctrl.Close()
			if err := ctrl.SetTranscript(transcript); err != nil {
				return cli.Exit(err.Error(), 1)
			}

			parsed, err := ctrl.Extract(c.Context)
			if err != nil {
				return cli.Exit(commentary.UserMessage(commentary.CycleExtract, err), 1)
			}
			out := parsed.Indented()
			if path := c.String("out"); path != "" {
				if err := os.WriteFile(path, []byte(out+"\n"), 0o644); err != nil {
					return cli.Exit(fmt.Sprintf("write %s: %v", path, err), 1)
				}
			}
			_, err = fmt.Fprintln(c.App.Writer, out)
			return err
		},
	}
}

func askCmd(deps cliDeps) *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Answer a question against extracted commentary",
		ArgsUsage: "QUERY",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "commentary", Aliases: []string{"c"}, Usage: "Commentary JSON produced by extract"},
			&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Transcript file to extract from first"},
			&cli.BoolFlag{Name: "sample", Usage: "Extract from the built-in sample transcript first"},
		},
		Action: func(c *cli.Context) error {
			query := strings.Join(c.Args().Slice(), " ")
			ctrl := commentary.New(commentary.Options{SessionID: "cli", Generator: deps.Generator})
			defer ctrl.Close()

			switch {
			case c.String("commentary") != "":
				parsed, err := loadCommentary(c.String("commentary"))
				if err != nil {
					return cli.Exit(err.Error(), 1)
				}
				ctrl.Restore(commentary.Snapshot{Commentary: parsed})
			case c.String("file") != "" || c.Bool("sample"):
				transcript, err := readTranscript(c, nil)
				if err != nil {
					return cli.Exit(err.Error(), 1)
				}
				if err := ctrl.SetTranscript(transcript); err != nil {
					return cli.Exit(err.Error(), 1)
				}
				if _, err := ctrl.Extract(c.Context); err != nil {
					return cli.Exit(commentary.UserMessage(commentary.CycleExtract, err), 1)
				}
			}

			answer, err := ctrl.Ask(c.Context, query)
			if err != nil {
				return cli.Exit(commentary.UserMessage(commentary.CycleQuery, err), 1)
			}
			_, err = fmt.Fprintln(c.App.Writer, answer)
			return err
		},
	}
}

func sampleCmd() *cli.Command {
	return &cli.Command{
		Name:  "sample",
		Usage: "Print the built-in sample transcript",
		Action: func(c *cli.Context) error {
			_, err := fmt.Fprintln(c.App.Writer, commentary.SampleTranscript)
			return err
		},
	}
}

func tokenCmd(deps cliDeps) *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Mint a custom token for the jwt identity provider",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "uid", Required: true, Usage: "Subject to sign in as"},
			&cli.DurationFlag{Name: "ttl", Value: time.Hour, Usage: "Token lifetime"},
		},
		Action: func(c *cli.Context) error {
			settings, ok, err := identity.ParseSettings(deps.IdentityConfig)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			if !ok || settings.Provider != identity.ProviderJWT {
				return cli.Exit("IDENTITY_CONFIG must select the jwt provider", 1)
			}
			audience := settings.Audience
			if audience == "" {
				audience = deps.AppID
			}
			token, err := identity.SignToken([]byte(settings.Secret), identity.Claims{
				Sub: c.String("uid"),
				Aud: audience,
			}, c.Duration("ttl"))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			_, err = fmt.Fprintln(c.App.Writer, token)
			return err
		},
	}
}

// readTranscript resolves --sample, then --file, then stdin when provided.
func readTranscript(c *cli.Context, stdin io.Reader) (string, error) {
	if c.Bool("sample") {
		return commentary.SampleTranscript, nil
	}
	if path := c.String("file"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return "", err
		}
		defer f.Close()
		return transcripts.Load(contextOf(c), f, "", path)
	}
	if stdin == nil {
		return "", errors.New("transcript required: use --file, --sample or pipe text on stdin")
	}
	return transcripts.Load(contextOf(c), stdin, "text/plain", "")
}

func loadCommentary(path string) (*commentary.Commentary, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var parsed commentary.Commentary
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("read commentary %s: %w", path, err)
	}
	return &parsed, nil
}

func contextOf(c *cli.Context) context.Context {
	if c.Context != nil {
		return c.Context
	}
	return context.Background()
}
