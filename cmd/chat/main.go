// Chat CLI - command line client for the chat server
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/kwonkwonn/chatting-sever/clients/go/chat"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("CHAT_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	client := chat.NewClient(baseURL)
	cmd := os.Args[1]

	switch cmd {
	case "health":
		resp, err := client.Health()
		exitOnError(err)
		printJSON(resp)

	case "rooms":
		resp, err := client.ListRooms()
		exitOnError(err)
		for _, room := range resp.Rooms {
			fmt.Printf("  %s  %s\n", room.ID, room.Name)
		}

	case "create":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: chat create <name>")
			os.Exit(1)
		}
		room, err := client.CreateRoom(os.Args[2])
		exitOnError(err)
		fmt.Printf("Created: %s (%s)\n", room.Name, room.ID)

	case "read":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: chat read <room_id>")
			os.Exit(1)
		}
		resp, err := client.GetMessages(os.Args[2], 50)
		exitOnError(err)
		for _, msg := range resp.Messages {
			printMessage(msg.Sender, msg.Body, msg.Timestamp)
		}

	case "join":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: chat join <room_id>")
			os.Exit(1)
		}
		joinRoom(client, os.Args[2])

	case "stats":
		resp, err := client.Stats()
		exitOnError(err)
		printJSON(resp)

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

// joinRoom runs an interactive session: incoming events print to stdout,
// stdin lines are sent to the room.
func joinRoom(client *chat.Client, roomID string) {
	id, err := client.Handshake()
	exitOnError(err)

	// Show recent history before going live.
	history, err := client.GetMessages(roomID, 50)
	exitOnError(err)
	for _, msg := range history.Messages {
		printMessage(msg.Sender, msg.Body, msg.Timestamp)
	}

	sess, err := client.Join(roomID)
	exitOnError(err)
	defer sess.Close()

	fmt.Printf("Joined %s as %s. Type to send, Ctrl-D to leave.\n", roomID, id)

	go func() {
		for {
			evt, err := sess.Next()
			if err != nil {
				fmt.Fprintln(os.Stderr, "connection closed:", err)
				os.Exit(1)
			}
			printMessage(evt.Sender, evt.Body, evt.Timestamp)
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if err := sess.Send(line); err != nil {
			exitOnError(err)
		}
	}
}

func printMessage(sender, body string, ts int64) {
	when := time.UnixMilli(ts).Format("2006-01-02 15:04:05")
	if len(sender) > 8 {
		sender = sender[:8]
	}
	fmt.Printf("[%s] %s: %s\n", when, sender, body)
}

func usage() {
	fmt.Println(`Chat CLI - terminal client for the chat server

Usage: chat <command> [options]

Commands:
  rooms                   List rooms
  create <name>           Create a room
  read <room_id>          Print recent messages from a room
  join <room_id>          Join a room interactively
  stats                   Show server counters
  health                  Check server health

Environment:
  CHAT_URL      Server URL (default: http://localhost:8080)`)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
