package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/otapi-bridge/heap"
	"github.com/wippyai/otapi-bridge/marshal"
	"github.com/wippyai/otapi-bridge/otapi"
	"github.com/wippyai/otapi-bridge/wasmheap"
)

type options struct {
	backend     string
	servers     string
	nym         string
	memoryPages uint
	verbose     bool
}

func main() {
	var (
		opts        options
		list        = flag.Bool("list", false, "List native classes and fields and exit")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.StringVar(&opts.backend, "backend", "go", "Native heap backend (go, wasm)")
	flag.UintVar(&opts.memoryPages, "memory-pages", wasmheap.DefaultMemoryLimitPages, "Guest memory limit in 64KB pages (wasm backend)")
	flag.StringVar(&opts.servers, "servers", "", "Servers to create (id:type:label,id2:type2:label2)")
	flag.StringVar(&opts.nym, "nym", "", "Create a contact nym with this ID and move the servers into it")
	flag.BoolVar(&opts.verbose, "v", false, "Log native calls")
	flag.Parse()

	if *list {
		printSchema(marshal.Default)
		return
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode requires a terminal")
			os.Exit(1)
		}
		if err := runInteractive(opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if opts.servers == "" {
		fmt.Fprintln(os.Stderr, "Usage: otbridge -servers id:type:label,... [-nym id] [-backend go|wasm]")
		fmt.Fprintln(os.Stderr, "       otbridge -list")
		fmt.Fprintln(os.Stderr, "       otbridge -i  (interactive mode)")
		os.Exit(1)
	}

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type serverSpec struct {
	id, typ, label string
}

// parseServers parses "id:type:label" entries separated by commas.
// Type and label may be omitted.
func parseServers(s string) ([]serverSpec, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []serverSpec
	for _, entry := range strings.Split(s, ",") {
		parts := strings.SplitN(strings.TrimSpace(entry), ":", 3)
		if parts[0] == "" {
			return nil, fmt.Errorf("server entry %q has no id", entry)
		}
		spec := serverSpec{id: parts[0]}
		if len(parts) > 1 {
			spec.typ = parts[1]
		}
		if len(parts) > 2 {
			spec.label = parts[2]
		}
		out = append(out, spec)
	}
	return out, nil
}

// session owns the native heap and every proxy created by the CLI.
type session struct {
	table   marshal.Table
	log     *zap.Logger
	closeFn func() error
	live    func() int
	nym     *otapi.ContactNym
	servers []*otapi.ServerInfo
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if !verbose {
		return zap.NewNop(), nil
	}
	return zap.NewDevelopment()
}

func openSession(ctx context.Context, opts options, log *zap.Logger) (*session, error) {
	s := &session{log: log}

	switch opts.backend {
	case "go":
		h := heap.New(&heap.Config{Logger: log})
		s.table = h
		s.closeFn = h.Close
		s.live = h.Records
	case "wasm":
		h, err := wasmheap.New(ctx, &wasmheap.Config{
			Logger:           log,
			MemoryLimitPages: uint32(opts.memoryPages),
		})
		if err != nil {
			return nil, fmt.Errorf("create wasm heap: %w", err)
		}
		s.table = h
		s.closeFn = func() error { return h.Close(ctx) }
		s.live = h.Records
	default:
		return nil, fmt.Errorf("unknown backend %q", opts.backend)
	}

	if opts.verbose {
		s.table = marshal.Logged(s.table, log)
	}
	otapi.SetLogger(log)
	return s, nil
}

func (s *session) addServer(spec serverSpec) (*otapi.ServerInfo, error) {
	si, err := otapi.NewServerInfo(s.table)
	if err != nil {
		return nil, err
	}
	for _, set := range []struct {
		fn func(string) error
		v  string
	}{
		{si.SetServerID, spec.id},
		{si.SetServerType, spec.typ},
		{si.SetGUILabel, spec.label},
	} {
		if err := set.fn(set.v); err != nil {
			_ = si.Release()
			return nil, err
		}
	}
	s.servers = append(s.servers, si)
	return si, nil
}

func (s *session) createNym(id string) error {
	cn, err := otapi.NewContactNym(s.table)
	if err != nil {
		return err
	}
	if err := cn.SetNymID(id); err != nil {
		_ = cn.Release()
		return err
	}
	s.nym = cn
	return nil
}

// release releases every proxy and returns the number of records still live.
func (s *session) release() int {
	for _, si := range s.servers {
		_ = si.Release()
	}
	if s.nym != nil {
		_ = s.nym.Release()
	}
	return s.live()
}

func (s *session) close() error {
	s.release()
	return s.closeFn()
}

func run(opts options) error {
	ctx := context.Background()

	specs, err := parseServers(opts.servers)
	if err != nil {
		return err
	}

	log, err := newLogger(opts.verbose)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	s, err := openSession(ctx, opts, log)
	if err != nil {
		return err
	}
	defer s.close()

	fmt.Printf("Backend: %s\n\n", opts.backend)
	if err := populate(s, specs, opts.nym); err != nil {
		return err
	}

	live := s.release()
	fmt.Printf("\nLive records after release: %d\n", live)
	if live != 0 {
		return fmt.Errorf("%d native records leaked", live)
	}
	return nil
}

func populate(s *session, specs []serverSpec, nymID string) error {
	fmt.Printf("Servers:\n")
	for _, spec := range specs {
		si, err := s.addServer(spec)
		if err != nil {
			return fmt.Errorf("create server %s: %w", spec.id, err)
		}
		fmt.Printf("  %s\n", describeServer(si))
	}

	if nymID == "" {
		return nil
	}

	if err := s.createNym(nymID); err != nil {
		return fmt.Errorf("create nym: %w", err)
	}
	for _, si := range s.servers {
		if err := s.nym.AddServerInfo(si); err != nil {
			return fmt.Errorf("add server to nym: %w", err)
		}
	}

	n, err := s.nym.ServerInfoCount()
	if err != nil {
		return err
	}
	fmt.Printf("\nNym %s (%d servers):\n", nymID, n)
	for i := 0; i < n; i++ {
		view, err := s.nym.ServerInfo(i)
		if err != nil {
			return fmt.Errorf("server %d: %w", i, err)
		}
		fmt.Printf("  [%d] %s\n", i, describeServer(view))
		_ = view.Release()
	}

	if cast, err := otapi.CastServerInfo(s.nym); err != nil {
		return err
	} else if cast == nil {
		fmt.Printf("\nCastServerInfo(nym) = nil\n")
	}
	return nil
}

func describeServer(si *otapi.ServerInfo) string {
	id, err := si.ServerID()
	if err != nil {
		return "error: " + err.Error()
	}
	typ, _ := si.ServerType()
	label, _ := si.GUILabel()
	return fmt.Sprintf("%-16s type=%-10s label=%q owned=%v", id, typ, label, si.Owns())
}

func printSchema(s *marshal.Schema) {
	for _, c := range s.Classes() {
		def, _ := s.Lookup(c)
		header := string(c)
		if def.Parent != "" {
			header += " : " + string(def.Parent)
		}
		fmt.Println(header)
		for _, f := range s.Fields(c) {
			fmt.Printf("  %s: %s\n", f.Name, marshal.TypeName(f.Type))
		}
		for _, l := range s.Lists(c) {
			fmt.Printf("  %s: list<%s>\n", l.Name, l.Elem)
		}
	}
}
