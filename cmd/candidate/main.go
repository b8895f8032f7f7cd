// Command candidate is a terminal client that walks a candidate through the
// interview against a running server.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fairyhunter13/ai-interviewer/internal/adapter/apiclient"
	"github.com/fairyhunter13/ai-interviewer/internal/chatflow"
)

func main() {
	apiURL := flag.String("api", envOr("INTERVIEW_API_URL", "http://localhost:8080"), "interview API base URL")
	email := flag.String("email", "", "email of a returning candidate, restores the saved session")
	resumePath := flag.String("resume", "", "path to a PDF or DOCX resume")
	verbose := flag.Bool("v", false, "log client diagnostics to stderr")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	var in chatflow.Input
	in.Email = strings.ToLower(strings.TrimSpace(*email))
	if *resumePath != "" {
		data, err := os.ReadFile(*resumePath) // #nosec G304 -- user supplied path
		if err != nil {
			fmt.Fprintln(os.Stderr, "read resume:", err)
			os.Exit(1)
		}
		in.Resume = data
		in.ResumeName = filepath.Base(*resumePath)
	}
	if in.Email == "" && len(in.Resume) == 0 {
		fmt.Fprintln(os.Stderr, "usage: candidate -resume cv.pdf | -email you@example.com")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := apiclient.New(apiclient.Options{BaseURL: *apiURL, MaxRetries: 3})
	term := newTerminal(os.Stdin, os.Stdout)
	ctl := &chatflow.Controller{Backend: client, Sessions: client, Candidate: term}

	final, err := ctl.Run(ctx, in)
	if err != nil {
		fmt.Fprintln(os.Stderr, "interview stopped:", err)
		os.Exit(1)
	}
	if final.Result != nil {
		fmt.Printf("\nAttempt %s: total %.1f, average %.1f/10\n", final.Result.AttemptID, final.Result.TotalScore, final.Result.AverageScore)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// terminal reads stdin lines on one goroutine so a pending read can lose
// the race against the countdown.
type terminal struct {
	out   io.Writer
	lines chan string
}

func newTerminal(r io.Reader, w io.Writer) *terminal {
	t := &terminal{out: w, lines: make(chan string)}
	go func() {
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			t.lines <- sc.Text()
		}
		close(t.lines)
	}()
	return t
}

func (t *terminal) Say(text string) {
	if text != "" {
		fmt.Fprintln(t.out, "> "+text)
	}
}

func (t *terminal) Ask(ctx context.Context, prompt string) (string, error) {
	fmt.Fprint(t.out, "> "+prompt+"\n$ ")
	return t.read(ctx)
}

func (t *terminal) Answer(ctx context.Context, r chatflow.Round) (string, error) {
	fmt.Fprintf(t.out, "(answer within %s, press Enter to submit)\n$ ", time.Duration(r.Remaining)*time.Second)
	v, err := t.read(ctx)
	if err != nil {
		fmt.Fprintln(t.out, "\n> Time's up!")
	}
	return v, err
}

func (t *terminal) read(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-t.lines:
		if !ok {
			return "", io.EOF
		}
		return strings.TrimSpace(line), nil
	}
}
