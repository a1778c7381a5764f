package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/drpcorg/feedview/feeds"
	"github.com/drpcorg/feedview/query"
)

func AddCorsHeaders(f func(w http.ResponseWriter, req *http.Request)) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.Header().Set("Access-Control-Max-Age", "86400")
		f(w, req)
	}
}

// requestQuery reads the query from the body and options from the URL.
func requestQuery(req *http.Request) (*query.Query, query.Options, error) {
	var opts query.Options
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, opts, err
	}
	params := req.URL.Query()
	opts.Reverse = params.Has("reverse")
	if limit := params.Get("limit"); limit != "" {
		if opts.Limit, err = strconv.Atoi(limit); err != nil {
			return nil, opts, err
		}
	}
	q, err := query.Parse(body)
	return q, opts, err
}

// ReadHandler streams matching records as newline separated JSON envelopes.
func ReadHandler(repl *REPL) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		switch method := req.Method; method {
		case "OPTIONS":
			w.Header().Set("Access-Control-Allow-Methods", "POST")
			w.WriteHeader(http.StatusNoContent)
		case "POST":
			q, opts, err := requestQuery(req)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "application/x-ndjson")
			w.WriteHeader(http.StatusOK)
			for rec, err := range repl.View.Read(req.Context(), q, opts) {
				if err != nil {
					_, _ = fmt.Fprintf(w, "{\"error\":%q}\n", err.Error())
					return
				}
				doc, err := rec.Doc()
				if err != nil {
					continue
				}
				_, _ = w.Write(append(doc.MarshalTo(nil), '\n'))
			}
		default:
			http.Error(w, fmt.Sprintf("Unsupported method %s", req.Method), http.StatusMethodNotAllowed)
		}
	}
}

func ExplainHandler(repl *REPL) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		switch method := req.Method; method {
		case "OPTIONS":
			w.Header().Set("Access-Control-Allow-Methods", "POST")
			w.WriteHeader(http.StatusNoContent)
		case "POST":
			q, opts, err := requestQuery(req)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(repl.View.Explain(q, opts).String()))
		default:
			http.Error(w, fmt.Sprintf("Unsupported method %s", req.Method), http.StatusMethodNotAllowed)
		}
	}
}

func AppendHandler(repl *REPL) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		switch method := req.Method; method {
		case "OPTIONS":
			w.Header().Set("Access-Control-Allow-Methods", "POST")
			w.WriteHeader(http.StatusNoContent)
		case "POST":
			log := req.PathValue("log")
			body, err := io.ReadAll(req.Body)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			rec, err := repl.Logs.Append(req.Context(), feeds.LogID(log), body)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if _, err = repl.View.CatchUp(req.Context()); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(rec.Locator().String()))
		default:
			http.Error(w, fmt.Sprintf("Unsupported method %s", req.Method), http.StatusMethodNotAllowed)
		}
	}
}

func (repl *REPL) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/read", AddCorsHeaders(ReadHandler(repl)))
	mux.HandleFunc("/explain", AddCorsHeaders(ExplainHandler(repl)))
	mux.HandleFunc("/append/{log}", AddCorsHeaders(AppendHandler(repl)))
	return mux
}

func (repl *REPL) CommandServe(addr string) error {
	if addr == "" {
		addr = ":8080"
	}
	go func() {
		if err := http.ListenAndServe(addr, repl.Handler()); err != nil {
			_, _ = fmt.Fprintln(os.Stderr, err.Error())
		}
	}()
	_, _ = fmt.Fprintf(repl.out, "serving on %s\n", addr)
	return nil
}
