package guest

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestParseTypes(t *testing.T) {
	types, err := ParseTypes("nosev, SNP,,seves")
	if err != nil {
		t.Fatalf("ParseTypes: %v", err)
	}
	want := []Type{NoSEV, SNP, SEVES}
	if !slices.Equal(types, want) {
		t.Fatalf("ParseTypes = %v, want %v", types, want)
	}

	if _, err := ParseTypes("sev,tdx"); err == nil {
		t.Fatalf("expected error for unknown type")
	}
	if _, err := ParseTypes(" , "); err == nil {
		t.Fatalf("expected error for empty list")
	}
}

func TestDefaultTable(t *testing.T) {
	tbl := DefaultTable("charts")

	for _, typ := range Types {
		p, err := tbl.Lookup(typ)
		if err != nil {
			t.Fatalf("Lookup(%s): %v", typ, err)
		}
		if p.AxisMax != DefaultAxisMax {
			t.Fatalf("%s: expected shared axis bound, got %d", typ, p.AxisMax)
		}
		if !strings.HasPrefix(p.Output, "charts/") {
			t.Fatalf("%s: unexpected output %q", typ, p.Output)
		}
	}

	if _, err := (Table{}).Lookup(SNP); err == nil {
		t.Fatalf("expected missing profile error")
	}
}

func TestArgs(t *testing.T) {
	paths := Paths{
		Hypervisor:    "/usr/bin/qemu-system-x86_64",
		Firmware:      "/fw/OVMF.fd",
		DebugSocket:   "/tmp/dbg.sock",
		QMPSocket:     "/tmp/qmp.sock",
		ConsoleSocket: "/tmp/console.sock",
	}

	nosev := strings.Join(Args(NoSEV, paths), " ")
	if strings.Contains(nosev, "confidential-guest-support") {
		t.Fatalf("nosev guest must not request confidential computing: %s", nosev)
	}
	if !strings.Contains(nosev, "socket,path=/tmp/dbg.sock,id=fwdbg") {
		t.Fatalf("debug console not wired to socket: %s", nosev)
	}
	if !strings.Contains(nosev, "file=/fw/OVMF.fd") {
		t.Fatalf("firmware not passed: %s", nosev)
	}

	snp := strings.Join(Args(SNP, paths), " ")
	if !strings.Contains(snp, "sev-snp-guest") {
		t.Fatalf("snp guest missing sev-snp-guest object: %s", snp)
	}
	if !strings.Contains(strings.Join(Args(SEVES, paths), " "), "policy=0x5") {
		t.Fatalf("seves guest must use policy 0x5")
	}

	l := &Launcher{Paths: paths}
	if argv := l.Command(SEV); argv[0] != paths.Hypervisor {
		t.Fatalf("expected hypervisor first, got %q", argv[0])
	}
	l.Paths.UseSudo = true
	if argv := l.Command(SEV); argv[0] != "sudo" || argv[1] != paths.Hypervisor {
		t.Fatalf("expected sudo wrapper, got %v", argv[:2])
	}
}

func TestLauncherTerminate(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "fake-qemu")
	if err := os.WriteFile(script, []byte("#!/bin/sh\nexec sleep 60\n"), 0o755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	l := &Launcher{Paths: Paths{Hypervisor: script}}
	inst, err := l.Start(context.Background(), NoSEV)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := inst.Terminate(); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	// A second request is a no-op.
	if err := inst.Terminate(); err != nil {
		t.Fatalf("Terminate again: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- inst.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("guest did not exit after Terminate")
	}
}

func TestLauncherNoHypervisor(t *testing.T) {
	l := &Launcher{}
	if _, err := l.Start(context.Background(), NoSEV); err == nil {
		t.Fatalf("expected error without hypervisor")
	}
}
