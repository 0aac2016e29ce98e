package main

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"
)

// MeteorGridCLI is a line client for a node's admin port.
type MeteorGridCLI struct {
	conn      net.Conn
	responses *bufio.Reader
	host      string
	port      string
	connected bool
	reader    *bufio.Reader
}

func NewMeteorGridCLI(host, port string) *MeteorGridCLI {
	return &MeteorGridCLI{
		host:   host,
		port:   port,
		reader: bufio.NewReader(os.Stdin),
	}
}

func (cli *MeteorGridCLI) Connect() error {
	conn, err := net.Dial("tcp", net.JoinHostPort(cli.host, cli.port))
	if err != nil {
		return fmt.Errorf("failed to connect to meteorgrid node: %w", err)
	}
	cli.conn = conn
	cli.responses = bufio.NewReader(conn)
	cli.connected = true
	fmt.Printf("Connected to meteorgrid node at %s:%s\n", cli.host, cli.port)
	return nil
}

func (cli *MeteorGridCLI) Disconnect() {
	if cli.connected && cli.conn != nil {
		cli.conn.Close()
		cli.connected = false
		fmt.Println("Disconnected")
	}
}

// SendCommand sends one line and returns the node's one-line reply.
func (cli *MeteorGridCLI) SendCommand(command string) (string, error) {
	if !cli.connected {
		return "", errors.New("not connected")
	}
	if _, err := fmt.Fprintf(cli.conn, "%s\n", command); err != nil {
		return "", fmt.Errorf("failed to send command: %w", err)
	}
	cli.conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	response, err := cli.responses.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	return strings.TrimSpace(response), nil
}

// usage holds the minimum argument count and usage line of each command.
var usage = map[string]struct {
	minArgs int
	text    string
}{
	"PUT":    {2, `PUT <key> '<json object>'`},
	"GET":    {1, "GET <key>"},
	"REMOVE": {1, "REMOVE <key>"},
	"SIZE":   {0, "SIZE"},
	"COUNT":  {1, `COUNT "<query>"`},
	"QUERY":  {1, `QUERY "<query>" [offset] [limit]`},
}

// ParseCommand handles local commands and forwards the rest unchanged.
func (cli *MeteorGridCLI) ParseCommand(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", nil
	}
	parts := strings.Fields(input)
	operation := strings.ToUpper(parts[0])

	switch operation {
	case "HELP", "\\H":
		cli.showHelp()
		return "", nil
	case "QUIT", "\\Q", "EXIT":
		return "QUIT", nil
	case "STATUS":
		cli.showStatus()
		return "", nil
	}

	u, ok := usage[operation]
	if !ok {
		return "", fmt.Errorf("unknown command: %s. Type 'help' for available commands", operation)
	}
	if len(parts)-1 < u.minArgs {
		return "", fmt.Errorf("usage: %s", u.text)
	}
	return cli.SendCommand(input)
}

func (cli *MeteorGridCLI) showHelp() {
	fmt.Println("meteorgrid CLI commands:")
	for _, op := range []string{"PUT", "GET", "REMOVE", "SIZE", "COUNT", "QUERY"} {
		fmt.Printf("  %s\n", usage[op].text)
	}
	fmt.Println("  STATUS")
	fmt.Println("  HELP")
	fmt.Println("  QUIT")
	fmt.Println("")
	fmt.Println("Queries: [SELECT p, score(a)] FROM Entity [a] [WHERE cond] [ORDER BY p [DESC]]")
	fmt.Println("Values are JSON objects; a \"$type\" member names the entity.")
}

func (cli *MeteorGridCLI) showStatus() {
	fmt.Printf("Connected: %t\n", cli.connected)
	if cli.connected {
		fmt.Printf("Node: %s:%s\n", cli.host, cli.port)
	}
}

// Run starts the REPL.
func (cli *MeteorGridCLI) Run() {
	fmt.Println("meteorgrid CLI")
	fmt.Println("Type 'help' for available commands or 'quit' to exit")
	fmt.Println()

	for {
		fmt.Print("meteorgrid> ")
		input, err := cli.reader.ReadString('\n')
		if err != nil {
			fmt.Println()
			return
		}
		response, err := cli.ParseCommand(input)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}
		if response == "QUIT" {
			return
		}
		if response != "" {
			fmt.Println(response)
		}
	}
}

func main() {
	host := "localhost"
	port := "7653"

	if len(os.Args) > 1 {
		if os.Args[1] == "--help" || os.Args[1] == "-h" {
			fmt.Println("Usage: meteorgrid-cli [host] [port]")
			fmt.Println("Default: meteorgrid-cli localhost 7653")
			return
		}
		host = os.Args[1]
	}
	if len(os.Args) > 2 {
		port = os.Args[2]
	}

	cli := NewMeteorGridCLI(host, port)
	if err := cli.Connect(); err != nil {
		fmt.Printf("Failed to connect: %v\n", err)
		fmt.Println("Make sure a meteorgrid node is running")
		os.Exit(1)
	}
	defer cli.Disconnect()
	cli.Run()
}
