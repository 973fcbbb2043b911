package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"os/signal"

	diceland "github.com/pepeant/diceland-server"
	"github.com/pepeant/diceland-server/pkg/protocol"
)

func main() {
	addr := flag.String("addr", "ws://localhost:8080/ws", "lobby websocket URL")
	nickname := flag.String("nickname", "", "display name to announce")
	room := flag.String("room", "", "chat room (server default when empty)")
	flag.Parse()

	client, err := diceland.Dial(*addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	if *nickname != "" {
		if err := client.Hello(*nickname); err != nil {
			fmt.Fprintf(os.Stderr, "hello: %v\n", err)
			os.Exit(1)
		}
	}

	go printEvents(client)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

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
		case <-client.Done():
			fmt.Println("disconnected")
			return
		case <-interrupt:
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if line == "" {
				continue
			}
			if err := client.SendChat(line, *room); err != nil {
				fmt.Fprintf(os.Stderr, "send: %v\n", err)
				return
			}
		}
	}
}

func printEvents(client *diceland.Client) {
	for msg := range client.Events() {
		switch m := msg.(type) {
		case *protocol.Hello:
			fmt.Printf("* you are %s\n", m.PlayerID)
		case *protocol.Presence:
			fmt.Printf("* %d online\n", m.Online)
		case *protocol.Chat:
			fmt.Printf("[%s] %s: %s\n", m.Room, m.Nickname, m.Text)
		case *protocol.Sys:
			fmt.Printf("* %s\n", m.Text)
		case *protocol.PlayerJoin:
			fmt.Printf("* %s joined\n", m.Player.Nickname)
		case *protocol.PlayerLeave:
			fmt.Printf("* %s left\n", m.PlayerID)
		}
	}
}
