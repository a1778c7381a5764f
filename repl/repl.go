package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/drpcorg/feedview"
	"github.com/drpcorg/feedview/feeds"
	"github.com/drpcorg/feedview/utils"
	"github.com/ergochat/readline"
)

// REPL per se.
type REPL struct {
	View *feedview.View
	Logs *feeds.PebbleLogs

	rl  *readline.Instance
	out io.Writer

	lock sync.Mutex
	live map[string]context.CancelFunc
}

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),

	readline.PcItem("append"),
	readline.PcItem("index"),
	readline.PcItem("indexes"),

	readline.PcItem("read"),
	readline.PcItem("explain"),
	readline.PcItem("live"),
	readline.PcItem("stop"),

	readline.PcItem("serve"),

	readline.PcItem("exit"),
	readline.PcItem("quit"),
)

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

// Open opens the logs and the view kept under dir. Indexes declared in
// earlier sessions come back with the view.
func (repl *REPL) Open(dir string) (err error) {
	repl.live = make(map[string]context.CancelFunc)
	if repl.out == nil {
		repl.out = os.Stdout
	}
	repl.Logs, err = feeds.OpenPebbleLogs(filepath.Join(dir, "logs"), &pebble.Options{})
	if err != nil {
		return err
	}
	repl.View, err = feedview.Open(filepath.Join(dir, "view"), feedview.Options{
		Logs:           repl.Logs,
		RestoreIndexes: true,
		Logger:         utils.NewWriterLogger(os.Stderr, slog.LevelWarn),
	})
	if err != nil {
		repl.Logs.Close()
		return err
	}
	return nil
}

func (repl *REPL) OpenConsole() (err error) {
	repl.rl, err = readline.NewEx(&readline.Config{
		Prompt:          "◌ ",
		HistoryFile:     ".feedview_cmd_log.txt",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		return
	}
	repl.rl.CaptureExitSignal()
	return
}

func (repl *REPL) Close() error {
	repl.lock.Lock()
	for id, cancel := range repl.live {
		cancel()
		delete(repl.live, id)
	}
	repl.lock.Unlock()
	var errs []error
	if repl.View != nil {
		errs = append(errs, repl.View.Close())
		repl.View = nil
	}
	if repl.Logs != nil {
		errs = append(errs, repl.Logs.Close())
		repl.Logs = nil
	}
	if repl.rl != nil {
		_ = repl.rl.Close()
		repl.rl = nil
	}
	return errors.Join(errs...)
}

// REPL reads one line and runs it.
func (repl *REPL) REPL() (err error) {
	var line string
	line, err = repl.rl.Readline()
	if err == readline.ErrInterrupt && len(line) != 0 {
		return nil
	}
	if err != nil {
		return err
	}
	return repl.Execute(context.Background(), line)
}

func (repl *REPL) Execute(ctx context.Context, line string) (err error) {
	line = strings.TrimSpace(line)
	if len(line) == 0 {
		return nil
	}
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "help":
		err = repl.CommandHelp(arg)
	case "append":
		err = repl.CommandAppend(ctx, arg)
	case "index":
		err = repl.CommandIndex(ctx, arg)
	case "indexes":
		err = repl.CommandIndexes()
	case "read":
		err = repl.CommandRead(ctx, arg)
	case "explain":
		err = repl.CommandExplain(arg)
	case "live":
		err = repl.CommandLive(arg)
	case "stop":
		err = repl.CommandStop(arg)
	case "serve":
		err = repl.CommandServe(arg)
	case "exit", "quit":
		err = io.EOF
	default:
		_, _ = fmt.Fprintf(os.Stderr, "command unknown: %s\n", cmd)
	}
	return
}

func main() {
	dir := ".feedview"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}

	repl := REPL{}
	err := repl.Open(dir)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(-1)
	}
	defer repl.Close()
	if err = repl.OpenConsole(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(-1)
	}

	for err != io.EOF {
		if err != nil {
			_, _ = fmt.Fprintf(os.Stdout, "%s\n", err.Error())
		}
		err = repl.REPL()
	}
}
