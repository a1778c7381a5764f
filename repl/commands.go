package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/drpcorg/feedview/feeds"
	"github.com/drpcorg/feedview/indexes"
	"github.com/drpcorg/feedview/query"
	"github.com/google/uuid"
	"github.com/valyala/fastjson"
)

var HelpAppend = errors.New(`append alice {"type":"chat/message","timestamp":739}`)
var HelpIndex = errors.New(`index {"key":"typ","value":[["value","type"],["value","timestamp"]]}`)
var HelpRead = errors.New(`read [reverse] [limit=N] {"value":{"type":"chat/message"}}`)
var HelpLive = errors.New(`live [new] [reverse] [limit=N] {"value":{"type":"chat/message"}}`)
var HelpStop = errors.New("stop <live query id>")

func (repl *REPL) CommandHelp(arg string) error {
	for _, help := range []error{HelpAppend, HelpIndex, HelpRead, HelpLive, HelpStop} {
		_, _ = fmt.Fprintln(repl.out, help.Error())
	}
	_, _ = fmt.Fprintln(repl.out, "explain, indexes, serve :8080, exit")
	return nil
}

func (repl *REPL) CommandAppend(ctx context.Context, arg string) error {
	log, value, ok := strings.Cut(arg, " ")
	if !ok || log == "" {
		return HelpAppend
	}
	if err := fastjson.Validate(value); err != nil {
		return err
	}
	rec, err := repl.Logs.Append(ctx, feeds.LogID(log), []byte(strings.TrimSpace(value)))
	if err != nil {
		return err
	}
	if _, err = repl.View.CatchUp(ctx); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(repl.out, rec.Locator().String())
	return nil
}

func (repl *REPL) CommandIndex(ctx context.Context, arg string) error {
	if arg == "" {
		return HelpIndex
	}
	def, err := indexes.ParseDefinition([]byte(arg))
	if err != nil {
		return err
	}
	if err = repl.View.RegisterIndex(ctx, *def); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(repl.out, "index %s registered\n", def)
	return nil
}

func (repl *REPL) CommandIndexes() error {
	for _, e := range repl.View.Indexes() {
		status := "ready"
		if !e.Ready {
			status = "backfilling"
		}
		_, _ = fmt.Fprintf(repl.out, "%s\t%s\n", &e.Definition, status)
	}
	return nil
}

// parseRead splits leading option words off a query.
func parseRead(arg string) (*query.Query, query.Options, error) {
	var opts query.Options
	for {
		word, rest, _ := strings.Cut(arg, " ")
		switch {
		case word == "reverse":
			opts.Reverse = true
		case word == "new":
			opts.SkipOld = true
		case strings.HasPrefix(word, "limit="):
			n, err := strconv.Atoi(strings.TrimPrefix(word, "limit="))
			if err != nil {
				return nil, opts, err
			}
			opts.Limit = n
		default:
			q, err := query.Parse([]byte(arg))
			return q, opts, err
		}
		arg = strings.TrimSpace(rest)
	}
}

func (repl *REPL) CommandRead(ctx context.Context, arg string) error {
	q, opts, err := parseRead(arg)
	if err != nil {
		return errors.Join(err, HelpRead)
	}
	n := 0
	for rec, err := range repl.View.Read(ctx, q, opts) {
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(repl.out, rec.String())
		n++
	}
	_, _ = fmt.Fprintf(repl.out, "%d records\n", n)
	return nil
}

func (repl *REPL) CommandExplain(arg string) error {
	q, opts, err := parseRead(arg)
	if err != nil {
		return errors.Join(err, HelpRead)
	}
	_, _ = fmt.Fprintln(repl.out, repl.View.Explain(q, opts).String())
	return nil
}

func (repl *REPL) CommandLive(arg string) error {
	q, opts, err := parseRead(arg)
	if err != nil {
		return errors.Join(err, HelpLive)
	}
	opts.Live = true
	id := uuid.NewString()[:8]
	ctx, cancel := context.WithCancel(context.Background())
	repl.lock.Lock()
	repl.live[id] = cancel
	repl.lock.Unlock()
	_, _ = fmt.Fprintf(repl.out, "live %s\n", id)

	go func() {
		defer repl.stop(id)
		for rec, err := range repl.View.Read(ctx, q, opts) {
			switch {
			case errors.Is(err, context.Canceled):
				return
			case err != nil:
				_, _ = fmt.Fprintf(repl.out, "live %s: %s\n", id, err)
				return
			case rec.IsSync():
				_, _ = fmt.Fprintf(repl.out, "live %s: synced\n", id)
			default:
				_, _ = fmt.Fprintf(repl.out, "live %s: %s\n", id, rec)
			}
		}
	}()
	return nil
}

func (repl *REPL) stop(id string) bool {
	repl.lock.Lock()
	defer repl.lock.Unlock()
	cancel, ok := repl.live[id]
	if ok {
		cancel()
		delete(repl.live, id)
	}
	return ok
}

func (repl *REPL) CommandStop(arg string) error {
	if !repl.stop(arg) {
		return HelpStop
	}
	return nil
}
