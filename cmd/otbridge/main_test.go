package main

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/wippyai/otapi-bridge/marshal"
	"github.com/wippyai/otapi-bridge/otapi"
)

func TestParseServers(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    []serverSpec
		wantErr bool
	}{
		{name: "empty", in: ""},
		{name: "id only", in: "srv", want: []serverSpec{{id: "srv"}}},
		{name: "full", in: "a:notary:Main, b:mint:Backup", want: []serverSpec{
			{id: "a", typ: "notary", label: "Main"},
			{id: "b", typ: "mint", label: "Backup"},
		}},
		{name: "label with colon", in: "a:t:host:8080", want: []serverSpec{{id: "a", typ: "t", label: "host:8080"}}},
		{name: "missing id", in: "a,:t", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseServers(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d entries, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("entry %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSession(t *testing.T) {
	for _, backend := range []string{"go", "wasm"} {
		t.Run(backend, func(t *testing.T) {
			s, err := openSession(context.Background(), options{backend: backend, memoryPages: 16, verbose: true}, zap.NewNop())
			if err != nil {
				t.Fatalf("openSession: %v", err)
			}

			si, err := s.addServer(serverSpec{id: "a", typ: "notary", label: "Main"})
			if err != nil {
				t.Fatalf("addServer: %v", err)
			}
			if err := s.createNym("nym-1"); err != nil {
				t.Fatalf("createNym: %v", err)
			}
			if err := s.nym.AddServerInfo(si); err != nil {
				t.Fatalf("AddServerInfo: %v", err)
			}

			view, err := s.nym.ServerInfo(0)
			if err != nil {
				t.Fatalf("ServerInfo(0): %v", err)
			}
			if label, _ := view.GUILabel(); label != "Main" {
				t.Fatalf("label = %q", label)
			}

			if live := s.release(); live != 0 {
				t.Fatalf("live records after release = %d", live)
			}
			if err := s.close(); err != nil {
				t.Fatalf("close: %v", err)
			}
		})
	}
}

func TestOpenSession_UnknownBackend(t *testing.T) {
	if _, err := openSession(context.Background(), options{backend: "rust"}, zap.NewNop()); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestAccessors(t *testing.T) {
	s, err := openSession(context.Background(), options{backend: "go"}, zap.NewNop())
	if err != nil {
		t.Fatalf("openSession: %v", err)
	}
	defer s.close()

	cn, err := otapi.NewContactNym(s.table)
	if err != nil {
		t.Fatalf("NewContactNym: %v", err)
	}
	defer cn.Release()

	fields := accessors(cn)
	want := marshal.Default.Fields(marshal.ClassContactNym)
	if len(fields) != len(want) {
		t.Fatalf("got %d accessors, want %d", len(fields), len(want))
	}
	for i, f := range fields {
		if f.name != want[i].Name {
			t.Errorf("accessor %d = %s, want %s", i, f.name, want[i].Name)
		}
		if f.typeStr != "string" {
			t.Errorf("accessor %s type = %s", f.name, f.typeStr)
		}
		if err := f.set("v-" + string(f.name)); err != nil {
			t.Fatalf("set %s: %v", f.name, err)
		}
		if got, _ := f.get(); got != "v-"+string(f.name) {
			t.Errorf("get %s = %q", f.name, got)
		}
	}
}
