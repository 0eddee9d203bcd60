package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ZRosserMcIntosh/railgun-sub001/internal/chat"
	"github.com/ZRosserMcIntosh/railgun-sub001/internal/config"
	"github.com/ZRosserMcIntosh/railgun-sub001/internal/credstore"
	"github.com/ZRosserMcIntosh/railgun-sub001/internal/socket"
	"github.com/ZRosserMcIntosh/railgun-sub001/internal/store"
	"github.com/ZRosserMcIntosh/railgun-sub001/pkg/logger"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
	UserID  string `json:"userId"`
	Error   string `json:"error,omitempty"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err == nil {
		logger.SetLevel(level)
	}
	if cfg.Debug {
		logger.SetLevel(logger.LevelDebug)
	}

	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		return nil
	}

	switch args[0] {
	case "login":
		return loginCommand(cfg, args[1:])
	case "logout":
		return logoutCommand(cfg)
	case "chat":
		return chatCommand(cfg, args[1:])
	case "help", "--help", "-h":
		printUsage()
		return nil
	case "version", "--version", "-v":
		fmt.Println("railgun v1.0.0")
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func creds(cfg *config.Config) *credstore.Store {
	return credstore.New(cfg.AccessToken, cfg.MasterKey)
}

func loginCommand(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	username := fs.String("user", "", "Username")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" {
		return fmt.Errorf("usage: railgun login -user <name>")
	}

	fmt.Print("Password: ")
	reader := bufio.NewReader(os.Stdin)
	password, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	password = strings.TrimSpace(password)

	body, err := json.Marshal(loginRequest{Username: *username, Password: password})
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, cfg.ServerURL+"/v1/login", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login failed: %s - %s", resp.Status, string(respBody))
	}

	var login loginResponse
	if err := json.Unmarshal(respBody, &login); err != nil {
		return fmt.Errorf("failed to parse login response: %w", err)
	}
	if !login.Success {
		return fmt.Errorf("login failed: %s", login.Error)
	}

	cs := creds(cfg)
	if err := cs.SaveToken(login.Token); err != nil {
		return err
	}
	if err := cs.SaveUser(login.UserID); err != nil {
		return err
	}
	if _, err := cs.MasterKey(); err != nil {
		return err
	}

	fmt.Printf("Logged in as %s\n", *username)
	return nil
}

func logoutCommand(cfg *config.Config) error {
	if err := creds(cfg).ClearToken(); err != nil {
		return err
	}
	fmt.Println("Logged out")
	return nil
}

// consoleListener renders engine events as terminal output.
type consoleListener struct {
	client *chat.Client
	conv   store.ConversationKey
	seen   map[string]bool
}

func (l *consoleListener) OnConnectivity(connected bool) {
	if connected {
		fmt.Println("* connected")
	} else {
		fmt.Println("* connection lost, reconnecting...")
	}
}

func (l *consoleListener) OnConversationUpdated(conv store.ConversationKey) {
	if conv != l.conv {
		return
	}
	for _, msg := range l.client.Messages(conv) {
		key := msg.ID
		if key == "" {
			key = msg.LocalID
		}
		if l.seen[key] {
			continue
		}
		l.seen[key] = true
		marker := ""
		if msg.Status == store.StatusPending {
			marker = " (sending)"
		}
		if msg.Status == store.StatusFailed {
			marker = fmt.Sprintf(" (FAILED: %s)", msg.Error)
		}
		fmt.Printf("[%s] %s: %s%s\n",
			time.UnixMilli(msg.Timestamp).Format("15:04:05"), msg.SenderID, msg.Content, marker)
	}
}

func (l *consoleListener) OnTyping(conv store.ConversationKey) {
	if conv != l.conv {
		return
	}
	typing := l.client.Typing(conv)
	if len(typing) == 0 {
		return
	}
	names := make([]string, 0, len(typing))
	for _, entry := range typing {
		name := entry.Username
		if name == "" {
			name = entry.UserID
		}
		names = append(names, name)
	}
	fmt.Printf("* typing: %s\n", strings.Join(names, ", "))
}

func (l *consoleListener) OnAuthExpired(err error) {
	fmt.Printf("* session expired (%v), run `railgun login` again\n", err)
}

func chatCommand(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	channel := fs.String("channel", "", "Channel to join")
	peer := fs.String("peer", "", "User to message directly")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var conv store.ConversationKey
	switch {
	case *channel != "" && *peer == "":
		conv = store.ChannelKey(*channel)
	case *peer != "" && *channel == "":
		conv = store.DirectKey(*peer)
	default:
		return fmt.Errorf("usage: railgun chat -channel <name> | -peer <user>")
	}

	cs := creds(cfg)
	userID, err := cs.User()
	if err != nil {
		return fmt.Errorf("not logged in, run `railgun login` first")
	}

	listener := &consoleListener{conv: conv, seen: make(map[string]bool)}
	client, err := chat.New(chat.Options{
		Config:    cfg,
		Creds:     cs,
		Transport: &socket.Transport{},
		UserID:    userID,
		Listener:  listener,
	})
	if err != nil {
		return err
	}
	listener.client = client
	defer client.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	err = client.Connect(ctx)
	cancel()
	if err != nil {
		return fmt.Errorf("connect failed: %w", err)
	}
	if err := client.Join(conv); err != nil {
		return fmt.Errorf("join failed: %w", err)
	}

	if _, err := client.LoadOlder(context.Background(), conv); err != nil {
		logger.Warnf("history load failed: %v", err)
	}

	fmt.Printf("Joined %s. Type a message, /history for older messages, /quit to exit.\n", conv.String())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-sigCh:
			fmt.Println("\nBye")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			switch {
			case line == "":
				continue
			case line == "/quit":
				return nil
			case line == "/history":
				added, err := client.LoadOlder(context.Background(), conv)
				if err != nil {
					fmt.Printf("* history load failed: %v\n", err)
					continue
				}
				fmt.Printf("* loaded %d older message(s)\n", added)
			default:
				if _, err := client.Send(context.Background(), conv, line, ""); err != nil {
					fmt.Printf("* send failed: %v\n", err)
				}
			}
		}
	}
}

func printUsage() {
	fmt.Println(`railgun - end-to-end encrypted chat client

Usage:
  railgun login -user <name>     Authenticate and store the session token
  railgun logout                 Discard the stored session token
  railgun chat -channel <name>   Open a channel conversation
  railgun chat -peer <user>      Open a direct conversation
  railgun help                   Show this help message
  railgun version                Show version information

Environment Variables:
  RAILGUN_SERVER_URL   Server URL (default: https://api.railgun.chat)
  RAILGUN_HOME_DIR     State directory (default: ~/.railgun)
  RAILGUN_LOG_LEVEL    Log level (trace|debug|info|warn|error)
  DEBUG                Enable debug logging (true/1)

Examples:
  # Log in against a local server
  RAILGUN_SERVER_URL=http://localhost:3005 railgun login -user alice

  # Chat in a channel
  railgun chat -channel general`)
}
