// Command watch joins a list and streams its view state to the terminal.
// It is the smallest complete consumer of pkg/client: one line per change
// burst, rendered entirely from the local index. Useful for watching
// convergence while other collaborators edit.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"duffel/pkg/client"
	"duffel/pkg/model"
)

func main() {
	addr := flag.String("addr", "http://localhost:8080", "server base URL")
	list := flag.String("list", "", "list id to watch (required)")
	token := flag.String("token", "", "bearer token; minted from the server when empty")
	actor := flag.String("actor", "", "actor id; generated when empty")
	level := flag.String("log", "warn", "log level")
	flag.Parse()

	log := newLogger(*level)
	if err := run(log, *addr, *list, *token, *actor); err != nil {
		fmt.Fprintln(os.Stderr, "watch:", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func run(log *slog.Logger, addr, list, token, actor string) error {
	if list == "" {
		return fmt.Errorf("-list is required")
	}
	listID, err := model.ParseListID(list)
	if err != nil {
		return fmt.Errorf("parse list id: %w", err)
	}

	if token == "" {
		token, actor, err = mintToken(addr, actor)
		if err != nil {
			return fmt.Errorf("mint token: %w", err)
		}
	}
	actorID, err := model.ParseActorID(actor)
	if err != nil {
		return fmt.Errorf("parse actor id: %w", err)
	}

	c, err := client.New(client.Config{
		BaseURL: addr,
		Token:   token,
		ListID:  listID,
		ActorID: actorID,
		Logger:  log,
	})
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("load list: %w", err)
	}

	fmt.Printf("watching list %s as %s\n", listID, actorID)
	printState(c)

	for {
		select {
		case <-ctx.Done():
			fmt.Println("bye")
			return nil
		case _, ok := <-c.Updates():
			if !ok {
				return nil
			}
			printState(c)
		}
	}
}

// printState renders one line per container kind: how many items sit
// unassigned and how many are packed overall.
func printState(c *client.Client) {
	items := c.Items()
	packed := 0
	for _, it := range items {
		if it.Packed {
			packed++
		}
	}
	fmt.Printf("%s  items=%d packed=%d", time.Now().Format("15:04:05"), len(items), packed)
	for _, kind := range model.Kinds() {
		v := c.View(kind, model.Ref{})
		fmt.Printf("  %s/unassigned=%d", kind, v.Total)
	}
	fmt.Println()
}

// mintToken asks the server's development token endpoint for a credential.
func mintToken(addr, actor string) (token, actorID string, err error) {
	body, err := json.Marshal(map[string]string{"actorId": actor})
	if err != nil {
		return "", "", err
	}
	httpClient := &http.Client{Timeout: 10 * time.Second}
	resp, err := httpClient.Post(addr+"/v1/auth/token", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("token endpoint returned %s", resp.Status)
	}

	var out struct {
		Token   string `json:"token"`
		ActorID string `json:"actorId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", "", err
	}
	return out.Token, out.ActorID, nil
}
