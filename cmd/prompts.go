// File: cmd/prompts.go
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xkilldash9x/parley-cli/internal/orchestrator"
)

// promptSequence yields the initial prompt, then the reply prompt. A reply
// given on the command line is always sent, even after a failed first
// exchange. A missing reply is asked for interactively, and only once the
// first response has been shown.
type promptSequence struct {
	initial, reply string
	in             *bufio.Reader
	out            io.Writer
	asked          int
}

func newPromptSequence(initial, reply string, in *bufio.Reader, out io.Writer) *promptSequence {
	return &promptSequence{initial: initial, reply: reply, in: in, out: out}
}

// Next satisfies orchestrator.PromptSource.
func (s *promptSequence) Next(ctx context.Context, previous *orchestrator.ExchangeOutcome) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.asked >= 2 {
		return "", nil
	}
	s.asked++
	if s.asked == 1 {
		return s.initial, nil
	}
	if strings.TrimSpace(s.reply) != "" {
		return s.reply, nil
	}
	if previous == nil || !previous.Result.OK {
		return "", nil
	}
	return ask(s.in, s.out, "Enter your reply prompt: ")
}

// isReply reports whether the prompt most recently handed out was the reply.
func (s *promptSequence) isReply() bool {
	return s.asked > 1
}

// ask prints label and reads one line. A closed input counts as an empty answer.
func ask(in *bufio.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	return readLine(in)
}

func readLine(in *bufio.Reader) (string, error) {
	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
