package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/loomlabs/loom/internal/app"
	"github.com/loomlabs/loom/internal/config"
	"github.com/loomlabs/loom/internal/workflow"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	RunE:  runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Warn("shutdown error", "error", err)
		}
	}()

	threadID, _, _, _, err := application.Orchestrator.Start(ctx, app.ConversationWorkflow, "", workflow.Options{UserID: userID})
	if err != nil {
		return err
	}

	fmt.Println("loom chat - type 'exit' to quit")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}

		if err := streamTurn(ctx, application, threadID, input); err != nil {
			if errors.Is(err, workflow.ErrAlreadyFinished) {
				fmt.Println("This conversation has ended.")
				break
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
	return scanner.Err()
}

// streamTurn runs one streaming turn and prints the assistant's reply.
func streamTurn(ctx context.Context, application *app.App, threadID, input string) error {
	events, err := application.Orchestrator.ChatStream(ctx, app.ConversationWorkflow, threadID, input, workflow.Options{})
	if err != nil {
		return err
	}

	var final *workflow.State
	for ev := range events {
		switch ev := ev.(type) {
		case workflow.InterruptEvent:
			fmt.Printf("[paused: %s]\n", ev.Value)
		case workflow.DoneEvent:
			if ev.Err != nil {
				return ev.Err
			}
			final = ev.State
		}
	}
	if final == nil {
		return errors.New("stream ended without a final state")
	}
	if final.Error != "" {
		fmt.Printf("(turn failed: %s)\n", final.Error)
		return nil
	}
	if text, ok := final.ResponsePayload["text"].(string); ok && text != "" {
		fmt.Println(text)
	}
	return nil
}
