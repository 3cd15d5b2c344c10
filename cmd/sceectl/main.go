// Licensed under the MIT License. See LICENSE file in the project root for details.

// Command sceectl is an interactive REPL for the case-study key/value
// store: it dials a running sceed server and sends its commands straight
// over the wire, rather than driving the engine in-process.
//
// # Usage
//
//	go run ./cmd/sceectl -addr 127.0.0.1:9000
//
// Available commands:
//
//	get <key>           retrieve a value by key
//	set <key> <value>   store a key/value pair
//	del <key>           delete a key/value pair
//	quit, exit          close the connection and exit
//
// Example session:
//
//	> set user1 alice
//	CREATED
//	> get user1
//	Value: alice
//	> del user1
//	Deleted
//	> get user1
//	Key not found
//	> quit
//	Goodbye!
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kianostad/scee/internal/protocol"
)

// REPL owns one connection to a sceed server and turns typed commands into
// line-protocol requests.
type REPL struct {
	conn   net.Conn
	reader *bufio.Reader
}

func Dial(addr string) (*REPL, error) {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("sceectl: failed to connect to %s: %w", addr, err)
	}
	return &REPL{conn: conn, reader: bufio.NewReader(conn)}, nil
}

func (r *REPL) Close() { r.conn.Close() }

func (r *REPL) sendLine(line string) (string, error) {
	if _, err := r.conn.Write([]byte(line)); err != nil {
		return "", err
	}
	return r.reader.ReadString('\n')
}

func (r *REPL) Run() {
	fmt.Println("Self-checking key/value store REPL")
	fmt.Println("Commands: get <key>, set <key> <value>, del <key>, quit")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		cmd := fields[0]
		args := fields[1:]

		switch cmd {
		case "get":
			if len(args) != 1 {
				fmt.Println("Usage: get <key>")
				continue
			}
			reply, err := r.sendLine("get " + args[0] + "\r\n")
			if err != nil {
				fmt.Printf("connection error: %v\n", err)
				return
			}
			switch {
			case reply == protocol.ReplyNotFound:
				fmt.Println("Key not found")
			case strings.HasPrefix(reply, "VALUE "):
				fmt.Printf("Value: %s", strings.TrimPrefix(reply, "VALUE "))
			default:
				fmt.Print(reply)
			}

		case "set":
			if len(args) != 2 {
				fmt.Println("Usage: set <key> <value>")
				continue
			}
			reply, err := r.sendLine("set " + args[0] + " " + args[1] + "\r\n")
			if err != nil {
				fmt.Printf("connection error: %v\n", err)
				return
			}
			fmt.Print(reply)

		case "del":
			if len(args) != 1 {
				fmt.Println("Usage: del <key>")
				continue
			}
			reply, err := r.sendLine("del " + args[0] + "\r\n")
			if err != nil {
				fmt.Printf("connection error: %v\n", err)
				return
			}
			switch reply {
			case protocol.ReplyDeleted:
				fmt.Println("Deleted")
			case protocol.ReplyNotFound:
				fmt.Println("Key not found")
			default:
				fmt.Print(reply)
			}

		case "quit", "exit":
			fmt.Println("Goodbye!")
			r.sendLine("quit\n")
			return

		default:
			fmt.Printf("Unknown command: %s\n", cmd)
		}
	}
}

func main() {
	addr := flag.String("addr", "127.0.0.1:9000", "address of a running sceed server")
	flag.Parse()

	repl, err := Dial(*addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer repl.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nReceived shutdown signal. Closing connection...")
		repl.Close()
		os.Exit(0)
	}()

	repl.Run()
}
