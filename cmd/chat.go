package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/salebot/internal/inbound"
	"github.com/nextlevelbuilder/salebot/internal/tasks"
)

func chatCmd() *cobra.Command {
	var (
		businessID string
		userID     string
	)
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Run messages through the pipeline against a tenant, with in-memory context",
		Long: "With a message argument, prints one reply and exits. Without one, reads messages " +
			"from stdin line by line. Conversation state lives in memory and is discarded on exit; " +
			"nothing is written to Redis or the ledger.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), businessID, userID, strings.Join(args, " "))
		},
	}
	cmd.Flags().StringVarP(&businessID, "business", "b", "", "business id (default: businesses.default_id)")
	cmd.Flags().StringVarP(&userID, "user", "u", "cli", "customer id")
	return cmd
}

func runChat(ctx context.Context, businessID, userID, message string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// The rate limiter would get in the way of scripted runs.
	cfg.Guard.MaxMessages = 1 << 20
	cfg.Channels.Line.Enabled = false
	cfg.Channels.Facebook.Enabled = false

	mr, err := miniredis.Run()
	if err != nil {
		return fmt.Errorf("in-memory store: %w", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	a, err := buildApp(cfg, rdb, nil, tasks.Inline{})
	if err != nil {
		return err
	}
	if businessID == "" {
		businessID = cfg.Businesses.DefaultID
	}

	send := func(text string) error {
		reply, err := a.service.Handle(ctx, inbound.Message{BusinessID: businessID, UserID: userID, Content: text})
		if err != nil {
			return err
		}
		switch {
		case reply.Content == "":
			fmt.Printf("(%s)\n", reply.Status)
		case reply.LayerName != "":
			fmt.Printf("[L%d %s] %s\n", reply.LayerID, reply.LayerName, reply.Content)
		default:
			fmt.Printf("[%s] %s\n", reply.Status, reply.Content)
		}
		return nil
	}

	if message != "" {
		return send(message)
	}

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Fprintf(os.Stderr, "chatting as %s with %s (Ctrl-D to quit)\n", userID, a.resolver.Get(businessID).ID)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := send(line); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
	}
	return scanner.Err()
}
