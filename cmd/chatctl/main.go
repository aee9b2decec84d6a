// Command chatctl is the operator tool of the chat server: it issues tokens,
// reads history, follows a team live and inspects the badger store offline.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"team-chat/auth"
	"team-chat/client"
	"team-chat/domain"
	"team-chat/internal"
	"team-chat/repositories"
	"team-chat/services"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
)

const usage = `usage: chatctl <command> [flags]

commands:
  token    issue a bearer token (needs JWT_SECRET)
  history  print the latest messages of a team
  tail     follow a team live
  say      post one message to a team
  inspect  dump stored messages from a badger directory`

type tokenConfig struct {
	JwtSecret         string        `env:"JWT_SECRET,required=true"`
	JwtIssuer         string        `env:"JWT_ISSUER,default=team-chat"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`
}

func main() {
	_ = godotenv.Load()
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "token":
		err = runToken(os.Args[2:])
	case "history":
		err = runHistory(ctx, os.Args[2:])
	case "tail":
		err = runTail(ctx, os.Args[2:])
	case "say":
		err = runSay(ctx, os.Args[2:])
	case "inspect":
		err = runInspect(os.Args[2:])
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, color.Red.Sprintf("chatctl %s: %v", os.Args[1], err))
		os.Exit(1)
	}
}

func runToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	userID := fs.String("user", "", "User id carried in the token subject")
	username := fs.String("name", "", "Display name shown in the chat")
	roles := fs.String("roles", "", "Comma separated roles")
	_ = fs.Parse(args)

	var config tokenConfig
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	service := services.NewAuthService(auth.NewTokenService(config.JwtSecret, config.JwtIssuer), config.AuthTokenDuration)
	token, err := service.Issue(*userID, *username, internal.SplitList(*roles))
	if err != nil {
		return err
	}
	fmt.Println(token.String())
	return nil
}

type connectionFlags struct {
	server   *string
	token    *string
	username *string
	team     *int
}

func registerConnectionFlags(fs *flag.FlagSet) connectionFlags {
	return connectionFlags{
		server:   fs.String("server", "http://localhost:8080", "Chat server base url"),
		token:    fs.String("token", os.Getenv("CHAT_TOKEN"), "Bearer token, defaults to $CHAT_TOKEN"),
		username: fs.String("name", "", "Display name on anonymous servers"),
		team:     fs.Int("team", 0, "Team id"),
	}
}

func (f connectionFlags) dial(ctx context.Context) (*client.Client, error) {
	if *f.team <= 0 {
		return nil, fmt.Errorf("-team must be a positive team id")
	}
	log := logs.GetLoggerFromString("WARN")
	return client.Dial(ctx, log, client.Options{ServerURL: *f.server, Token: *f.token, Username: *f.username})
}

func runHistory(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	conn := registerConnectionFlags(fs)
	limit := fs.Int("limit", 0, "Page size, the server default when 0")
	before := fs.String("before", "", "Cursor of the previous page")
	_ = fs.Parse(args)

	if *conn.team <= 0 {
		return fmt.Errorf("-team must be a positive team id")
	}
	rest, err := client.NewREST(*conn.server, *conn.token)
	if err != nil {
		return err
	}

	var cursor *string
	if *before != "" {
		cursor = before
	}
	messages, next, err := rest.History(ctx, *conn.team, *limit, cursor)
	if err != nil {
		return err
	}
	renderMessages(messages)
	if next != nil {
		color.FgDarkGray.Printf("next page: -before %s\n", *next)
	}
	return nil
}

// runTail joins the team and prints the latest page followed by live messages until interrupted.
func runTail(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("tail", flag.ExitOnError)
	conn := registerConnectionFlags(fs)
	limit := fs.Int("limit", 10, "Messages of history printed first")
	_ = fs.Parse(args)

	c, err := conn.dial(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	timeline, err := c.Open(ctx, *conn.team, *limit)
	if err != nil {
		return err
	}
	history := timeline.Messages()
	for i := len(history) - 1; i >= 0; i-- {
		printMessage(history[i])
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case joined := <-c.Joined():
			color.Green.Printf("joined team %d as %s\n", joined.TeamID, joined.Username)
		case refused := <-c.Errors():
			color.Yellow.Printf("%s refused: %s\n", refused.Event, refused.Message)
		case m, ok := <-c.Messages():
			if !ok {
				return c.Err()
			}
			if timeline.Receive(m) {
				printMessage(m)
			}
		}
	}
}

func runSay(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("say", flag.ExitOnError)
	conn := registerConnectionFlags(fs)
	text := fs.String("text", "", "Message text")
	_ = fs.Parse(args)

	if strings.TrimSpace(*text) == "" {
		return fmt.Errorf("-text is required")
	}
	c, err := conn.dial(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	if err := c.Send(*conn.team, *text); err != nil {
		return err
	}
	// The server answers errors only, wait a moment for a refusal.
	select {
	case refused := <-c.Errors():
		return fmt.Errorf("%s: %s", refused.Code, refused.Message)
	case <-time.After(500 * time.Millisecond):
		return nil
	}
}

// runInspect opens the store read-only, it works while the server holds the lock.
func runInspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	path := fs.String("db", os.Getenv("BADGER_FILEPATH"), "Path to the badger directory")
	team := fs.Int("team", 0, "Only this team when positive")
	_ = fs.Parse(args)

	db, err := badger.Open(badger.DefaultOptions(*path).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLogger(nil))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	prefix := repositories.MessagePrefix
	if *team > 0 {
		prefix = fmt.Sprintf("%s%d:", repositories.MessagePrefix, *team)
	}

	table := newTable("Key", "Team", "At", "User", "Text")
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			key := string(item.KeyCopy(nil))
			err := item.Value(func(v []byte) error {
				m, err := repositories.DecodeMessage(v)
				if err != nil {
					color.Yellow.Printf("skipping %s: %v\n", key, err)
					return nil
				}
				table.Append([]string{
					key,
					fmt.Sprint(m.TeamID),
					m.CreatedAt.Format(time.RFC3339),
					m.Username,
					m.Text,
				})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	table.Render()
	return nil
}

func newTable(header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
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

// renderMessages keeps the newest first order of the history endpoint.
func renderMessages(messages []domain.ChatMessage) {
	table := newTable("At", "User", "Text")
	for _, m := range messages {
		table.Append([]string{m.CreatedAt.Local().Format("15:04:05"), m.Username, m.Text})
	}
	table.Render()
}

func printMessage(m domain.ChatMessage) {
	fmt.Printf("%s %s %s\n",
		color.FgDarkGray.Sprint(m.CreatedAt.Local().Format("15:04:05")),
		color.Cyan.Sprintf("%s:", m.Username),
		m.Text)
}
