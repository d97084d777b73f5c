package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// UI abstracts user interaction so the confirmation gate works both
// interactively and in tests.
type UI interface {
	Println(a ...any)
	Printf(format string, a ...any)
	Ask(prompt string) (string, error)
	Confirm(prompt string) (bool, error)
}

type stdUI struct {
	in  io.Reader
	out io.Writer
}

// NewStdUI returns a UI backed by stdin/stdout.
func NewStdUI() UI {
	return &stdUI{
		in:  os.Stdin,
		out: os.Stdout,
	}
}

func (u *stdUI) Println(a ...any) {
	fmt.Fprintln(u.out, a...)
}

func (u *stdUI) Printf(format string, a ...any) {
	fmt.Fprintf(u.out, format, a...)
}

func (u *stdUI) Ask(prompt string) (string, error) {
	u.Printf("%s", prompt)
	reader := bufio.NewReader(u.in)
	text, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (u *stdUI) Confirm(prompt string) (bool, error) {
	ans, err := u.Ask(fmt.Sprintf("%s (yes/no): ", prompt))
	if err != nil {
		return false, err
	}
	ans = strings.ToLower(strings.TrimSpace(ans))
	return ans == "y" || ans == "yes", nil
}
