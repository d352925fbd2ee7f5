// File: cmd/credentials.go
package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"golang.org/x/term"

	"github.com/xkilldash9x/parley-cli/internal/auth"
)

// credentialResolver finds the login credentials. Each value is taken from
// the first source that has it: flag or PARLEY_ env, the legacy unprefixed
// env var, the .env file, and finally an interactive prompt.
type credentialResolver struct {
	v            *viper.Viper
	getenv       func(string) string
	dotenvPath   string
	in           *bufio.Reader
	out          io.Writer
	readPassword func(in *bufio.Reader) (string, error)

	dotenv gotenv.Env
}

func newCredentialResolver(v *viper.Viper, deps dependencies, in *bufio.Reader, out io.Writer) *credentialResolver {
	r := &credentialResolver{
		v:            v,
		getenv:       deps.getenv,
		dotenvPath:   deps.dotenvPath,
		in:           in,
		out:          out,
		readPassword: deps.readPassword,
	}
	if r.readPassword == nil {
		r.readPassword = readLine
	}
	return r
}

func (r *credentialResolver) Resolve() (auth.Credentials, error) {
	if r.dotenvPath != "" {
		env, err := gotenv.Read(r.dotenvPath)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return auth.Credentials{}, fmt.Errorf("failed to read %s: %w", r.dotenvPath, err)
		}
		r.dotenv = env
	}

	email := r.lookup("email", "EMAIL")
	if email == "" {
		var err error
		if email, err = ask(r.in, r.out, "Enter your email: "); err != nil {
			return auth.Credentials{}, fmt.Errorf("failed to read email: %w", err)
		}
	}

	password := r.lookup("password", "PASSWORD")
	if password == "" {
		fmt.Fprint(r.out, "Enter your password: ")
		p, err := r.readPassword(r.in)
		fmt.Fprintln(r.out)
		if err != nil {
			return auth.Credentials{}, fmt.Errorf("failed to read password: %w", err)
		}
		password = p
	}

	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return auth.Credentials{}, errors.New("email and password are required")
	}
	return auth.Credentials{Email: email, Password: password}, nil
}

func (r *credentialResolver) lookup(key, legacy string) string {
	if val := r.v.GetString(key); val != "" {
		return val
	}
	if r.getenv != nil {
		if val := r.getenv(legacy); val != "" {
			return val
		}
	}
	for _, name := range []string{"PARLEY_" + legacy, legacy} {
		if val := r.dotenv[name]; val != "" {
			return val
		}
	}
	return ""
}

// readTerminalPassword reads without echo when stdin is a terminal, and a
// plain line from in otherwise so piped input keeps working.
func readTerminalPassword(in *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return readLine(in)
	}
	b, err := term.ReadPassword(fd)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
