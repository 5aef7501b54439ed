// Command taskctl is a terminal client for the taskboard API.
package main

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"taskboard/internal/client"
	"taskboard/internal/domain/models"

	"github.com/spf13/pflag"
	"golang.org/x/term"
)

const defaultServer = "http://localhost:8080"

const usage = `usage: taskctl [--server URL] <command> [flags]

commands:
  signup   create an account
  login    log in and save the session
  logout   revoke the saved session
  users    list users that tasks can be assigned to
  list     list your tasks
  show     show one task
  add      create a task
  edit     change a task's title, description or status
  toggle   flip a task between pending and completed
  rm       delete a task
`

type app struct {
	stdin       io.Reader
	stdout      io.Writer
	stderr      io.Writer
	server      string
	sessionPath string

	// readPassword prompts without echo; replaced in tests.
	readPassword func(prompt string) (string, error)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr}
	a.readPassword = a.promptPassword
	os.Exit(a.run(ctx, os.Args[1:]))
}

func (a *app) run(ctx context.Context, args []string) int {
	fs := pflag.NewFlagSet("taskctl", pflag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.SetOutput(a.stderr)
	fs.Usage = func() { fmt.Fprint(a.stderr, usage) }
	server := fs.StringP("server", "s", "", "taskboard base URL (default $TASKBOARD_URL or "+defaultServer+")")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprint(a.stderr, usage)
		return 2
	}

	if a.sessionPath == "" {
		path, err := sessionFilePath()
		if err != nil {
			fmt.Fprintln(a.stderr, "taskctl:", err)
			return 1
		}
		a.sessionPath = path
	}
	a.server = *server

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	handlers := map[string]func(context.Context, []string) error{
		"signup": a.signup,
		"login":  a.login,
		"logout": a.logout,
		"users":  a.users,
		"list":   a.list,
		"show":   a.show,
		"add":    a.add,
		"edit":   a.edit,
		"toggle": a.toggle,
		"rm":     a.remove,
	}
	handler, ok := handlers[cmd]
	if !ok {
		fmt.Fprintf(a.stderr, "taskctl: unknown command %q\n\n%s", cmd, usage)
		return 2
	}

	if err := handler(ctx, rest); err != nil {
		if stderrors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(a.stderr, "taskctl:", err)
		return 1
	}
	return 0
}

// serverURL picks the flag, then the saved session, then the environment.
func (a *app) serverURL(s *Session) string {
	switch {
	case a.server != "":
		return a.server
	case s != nil && s.Server != "":
		return s.Server
	case os.Getenv("TASKBOARD_URL") != "":
		return os.Getenv("TASKBOARD_URL")
	default:
		return defaultServer
	}
}

func (a *app) anonymousClient() (*client.Client, error) {
	return client.New(a.serverURL(nil))
}

func (a *app) authedClient() (*client.Client, *Session, error) {
	s, err := loadSession(a.sessionPath)
	if err != nil {
		return nil, nil, err
	}
	c, err := client.New(a.serverURL(s), client.WithToken(s.Token))
	if err != nil {
		return nil, nil, err
	}
	return c, s, nil
}

func newFlagSet(name string, a *app) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

func (a *app) password(given, prompt string) (string, error) {
	if given != "" {
		return given, nil
	}
	return a.readPassword(prompt)
}

// promptPassword reads without echo on a terminal and a single line otherwise,
// so passwords can be piped in.
func (a *app) promptPassword(prompt string) (string, error) {
	if f, ok := a.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(a.stderr, prompt)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(a.stderr)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(a.stdin).ReadString('\n')
	if err != nil && !stderrors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (a *app) signup(ctx context.Context, args []string) error {
	fs := newFlagSet("signup", a)
	username := fs.StringP("username", "u", "", "username (3-50 printable characters)")
	email := fs.StringP("email", "e", "", "email address")
	pw := fs.StringP("password", "p", "", "password (prompted when omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" || *email == "" {
		return fmt.Errorf("signup needs --username and --email")
	}
	password, err := a.password(*pw, "Password: ")
	if err != nil {
		return err
	}

	c, err := a.anonymousClient()
	if err != nil {
		return err
	}
	if err := c.Signup(ctx, *username, *email, password); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "account %s created, now run \"taskctl login -e %s\"\n", *username, *email)
	return nil
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := newFlagSet("login", a)
	email := fs.StringP("email", "e", "", "email address")
	pw := fs.StringP("password", "p", "", "password (prompted when omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return fmt.Errorf("login needs --email")
	}
	password, err := a.password(*pw, "Password: ")
	if err != nil {
		return err
	}

	c, err := a.anonymousClient()
	if err != nil {
		return err
	}
	resp, err := c.Login(ctx, *email, password)
	if err != nil {
		return err
	}
	s := &Session{Server: a.serverURL(nil), UserID: resp.UserID, Token: resp.Token, ExpiresAt: resp.ExpiresAt}
	if err := saveSession(a.sessionPath, s); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "logged in as %s\n", resp.UserID)
	return nil
}

func (a *app) logout(ctx context.Context, _ []string) error {
	c, _, err := a.authedClient()
	if err != nil {
		if stderrors.Is(err, errNoSession) {
			fmt.Fprintln(a.stdout, "not logged in")
			return nil
		}
		if err := removeSession(a.sessionPath); err != nil {
			return err
		}
		fmt.Fprintln(a.stdout, "logged out")
		return nil
	}
	// A token the server already rejects is as good as revoked.
	if err := c.Logout(ctx); err != nil && !client.IsStatus(err, http.StatusUnauthorized) {
		return err
	}
	if err := removeSession(a.sessionPath); err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, "logged out")
	return nil
}

func (a *app) users(ctx context.Context, _ []string) error {
	c, _, err := a.authedClient()
	if err != nil {
		return err
	}
	users, err := c.Users(ctx)
	if err != nil {
		return err
	}
	printUsers(a.stdout, users)
	return nil
}

func (a *app) list(ctx context.Context, args []string) error {
	fs := newFlagSet("list", a)
	status := fs.String("status", "", "only show tasks with this status (pending or completed)")
	mine := fs.Bool("assigned", false, "only show tasks assigned to me")
	if err := fs.Parse(args); err != nil {
		return err
	}

	c, s, err := a.authedClient()
	if err != nil {
		return err
	}
	tasks, err := c.ListTodos(ctx)
	if err != nil {
		return err
	}

	filtered := tasks[:0]
	for _, t := range tasks {
		if *status != "" && t.Status != *status {
			continue
		}
		if *mine && t.AssigneeID != s.UserID {
			continue
		}
		filtered = append(filtered, t)
	}
	printTasks(a.stdout, filtered)
	return nil
}

func (a *app) show(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: taskctl show <id>")
	}
	c, _, err := a.authedClient()
	if err != nil {
		return err
	}
	task, err := c.GetTodo(ctx, args[0])
	if err != nil {
		return err
	}
	printTask(a.stdout, task)
	return nil
}

func (a *app) add(ctx context.Context, args []string) error {
	fs := newFlagSet("add", a)
	description := fs.StringP("description", "d", "", "task description")
	assignee := fs.StringP("assignee", "a", "", "username or id of the assignee (default: yourself)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	title := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if title == "" {
		return fmt.Errorf("usage: taskctl add [flags] <title>")
	}

	c, _, err := a.authedClient()
	if err != nil {
		return err
	}
	assigneeID, err := resolveUser(ctx, c, *assignee)
	if err != nil {
		return err
	}
	task, err := c.CreateTodo(ctx, title, *description, assigneeID)
	if err != nil {
		return err
	}
	printTask(a.stdout, task)
	return nil
}

func (a *app) edit(ctx context.Context, args []string) error {
	fs := newFlagSet("edit", a)
	title := fs.StringP("title", "t", "", "new title")
	description := fs.StringP("description", "d", "", "new description")
	status := fs.String("status", "", "new status (pending or completed)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: taskctl edit [flags] <id>")
	}

	var req models.UpdateTaskRequest
	if fs.Changed("title") {
		req.Title = title
	}
	if fs.Changed("description") {
		req.Description = description
	}
	if fs.Changed("status") {
		req.Status = status
	}
	if req.Title == nil && req.Description == nil && req.Status == nil {
		return fmt.Errorf("nothing to change, pass --title, --description or --status")
	}

	c, _, err := a.authedClient()
	if err != nil {
		return err
	}
	task, err := c.UpdateTodo(ctx, fs.Arg(0), req)
	if err != nil {
		return err
	}
	printTask(a.stdout, task)
	return nil
}

func (a *app) toggle(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: taskctl toggle <id>")
	}
	c, _, err := a.authedClient()
	if err != nil {
		return err
	}
	task, err := c.ToggleStatus(ctx, args[0])
	if err != nil {
		if client.IsStatus(err, http.StatusConflict) {
			return fmt.Errorf("task changed while toggling, try again")
		}
		return err
	}
	printTask(a.stdout, task)
	return nil
}

func (a *app) remove(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: taskctl rm <id>")
	}
	c, _, err := a.authedClient()
	if err != nil {
		return err
	}
	if err := c.DeleteTodo(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "deleted %s\n", args[0])
	return nil
}

// resolveUser accepts either a username or a user id.
func resolveUser(ctx context.Context, c *client.Client, who string) (string, error) {
	if who == "" {
		return "", nil
	}
	users, err := c.Users(ctx)
	if err != nil {
		return "", err
	}
	for _, u := range users {
		if u.ID == who || strings.EqualFold(u.Username, who) {
			return u.ID, nil
		}
	}
	return "", fmt.Errorf("no user named %q", who)
}
