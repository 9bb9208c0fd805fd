// Package cli is an interactive REPL over a lob.Store, the same
// scanner-driven command loop shape as the teacher's original db CLI,
// generalized from raw key/value SET/GET/DEL to the LOB store's
// put/get/len/rm/gc/save/clear surface.
package cli

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"lob/lob"
)

type CLI struct {
	scanner *bufio.Scanner
	store   *lob.Store
}

func NewCLI(s *bufio.Scanner, store *lob.Store) *CLI {
	return &CLI{s, store}
}

func (c *CLI) Start() {
	c.printHelp()
	c.printPrompt()
	for {
		if c.scanner.Scan() {
			c.processInput(c.scanner.Text())
		}
	}
}

func (c *CLI) printHelp() {
	fmt.Println(`
LOB CLI

Available Commands:
  PUT <text>      Store <text> as a new LOB, printing its id (hex)
  GET <id>        Read back the full payload for an id (hex)
  LEN <id>        Print the declared payload length of an id
  RM <id>         Remove every block an id references
  MAXKEY <id>     Print the largest block-map key reachable from an id
  PRETTY <id>     Dump an id's records for diagnostics
  SAVE            Flush buffered state to durable storage
  GC              Reclaim space used by removed blocks
  CLEAR           Remove every block and reset key allocation
  EXIT            Terminate this session
`)
}

func (c *CLI) printPrompt() {
	fmt.Print("> ")
}

func (c *CLI) processInput(line string) {
	fields := strings.Fields(line)
	if len(fields) < 1 {
		c.printPrompt()
		return
	}
	command := strings.ToLower(fields[0])

	switch command {
	default:
		fmt.Printf("Unknown command %q\n", command)
	case "put":
		c.processPut(fields[1:], line)
	case "get":
		c.processGet(fields[1:])
	case "len":
		c.processLen(fields[1:])
	case "rm":
		c.processRemove(fields[1:])
	case "maxkey":
		c.processMaxKey(fields[1:])
	case "pretty":
		c.processPretty(fields[1:])
	case "save":
		c.report(c.store.Save())
	case "gc":
		c.report(c.store.GC())
	case "clear":
		c.report(c.store.Clear())
	case "exit":
		os.Exit(0)
	}
	c.printPrompt()
}

func (c *CLI) report(err error) {
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	fmt.Println("OK.")
}

func (c *CLI) processPut(args []string, line string) {
	// The command word matched "put" case-insensitively, so drop its first
	// len("put") bytes whatever their case.
	payload := strings.TrimSpace(strings.TrimSpace(line)[len("put"):])
	if len(args) == 0 {
		fmt.Println("Usage: PUT <text>")
		return
	}
	id, err := c.store.Put(strings.NewReader(payload))
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	fmt.Printf("%x\n", id)
}

func (c *CLI) parseID(args []string, usage string) ([]byte, bool) {
	if len(args) != 1 {
		fmt.Println(usage)
		return nil, false
	}
	id, err := decodeHex(args[0])
	if err != nil {
		fmt.Println("Error: not a valid hex id:", err)
		return nil, false
	}
	return id, true
}

func (c *CLI) processGet(args []string) {
	id, ok := c.parseID(args, "Usage: GET <id>")
	if !ok {
		return
	}
	stream, err := c.store.GetInputStream(id)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	defer stream.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(readerFunc(stream.Read)); err != nil {
		fmt.Println("Error:", err)
		return
	}
	fmt.Println(buf.String())
}

func (c *CLI) processLen(args []string) {
	id, ok := c.parseID(args, "Usage: LEN <id>")
	if !ok {
		return
	}
	n, err := c.store.Length(id)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	fmt.Println(n)
}

func (c *CLI) processRemove(args []string) {
	id, ok := c.parseID(args, "Usage: RM <id>")
	if !ok {
		return
	}
	c.report(c.store.Remove(id))
}

func (c *CLI) processMaxKey(args []string) {
	id, ok := c.parseID(args, "Usage: MAXKEY <id>")
	if !ok {
		return
	}
	k, err := c.store.MaxBlockKey(id)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	fmt.Println(k)
}

func (c *CLI) processPretty(args []string) {
	id, ok := c.parseID(args, "Usage: PRETTY <id>")
	if !ok {
		return
	}
	fmt.Print(c.store.ToString(id))
}

func decodeHex(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, strconv.ErrSyntax
	}
	out := make([]byte, len(s)/2)
	for i := range out {
		hi, err := hexDigit(s[2*i])
		if err != nil {
			return nil, err
		}
		lo, err := hexDigit(s[2*i+1])
		if err != nil {
			return nil, err
		}
		out[i] = hi<<4 | lo
	}
	return out, nil
}

func hexDigit(b byte) (byte, error) {
	switch {
	case b >= '0' && b <= '9':
		return b - '0', nil
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10, nil
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10, nil
	default:
		return 0, strconv.ErrSyntax
	}
}

// readerFunc adapts a Read method value to io.Reader so it can be passed to
// bytes.Buffer.ReadFrom without exporting a named wrapper type.
type readerFunc func(p []byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }
