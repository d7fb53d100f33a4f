// Package fault terminates the current process in ways no worker can contain.
// It exists to exercise supervisor restarts.
package fault

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// ErrUnknownKind is returned by ParseKind for an unrecognised fault name.
var ErrUnknownKind = errors.New("fault: unknown kind")

// Kind selects how the process dies.
type Kind int

const (
	// KindTerminate sends SIGTERM to the process.
	KindTerminate Kind = iota
	// KindAbort sends SIGABRT to the process; the Go runtime dumps goroutines and exits with status 2.
	KindAbort
	// KindNilDereference dereferences nil on a goroutine that never recovers.
	KindNilDereference
)

var kindNames = map[Kind]string{
	KindTerminate:      "terminate",
	KindAbort:          "abort",
	KindNilDereference: "nil-deref",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps a name accepted on the command line to a Kind.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if s == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q (want terminate, abort or nil-deref)", ErrUnknownKind, s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Trigger kills the process with k. It does not return.
func Trigger(k Kind) {
	switch k {
	case KindAbort:
		Abort()
	case KindNilDereference:
		NilDereference()
	default:
		Terminate()
	}
}

// Abort raises SIGABRT.
func Abort() { raise(unix.SIGABRT) }

// Terminate raises SIGTERM. With no handler installed the process dies of the signal.
func Terminate() { raise(unix.SIGTERM) }

// NilDereference crashes the process with a nil pointer dereference on a fresh goroutine.
// The panic happens outside any recover, so the runtime ends the process.
func NilDereference() {
	go func() {
		var p *int
		*p = 42
	}()
	select {}
}

// raise signals the process and blocks until delivery. Should the signal be ignored or handled,
// the process exits with the conventional 128+signal status so the fault is never silently lost.
func raise(sig unix.Signal) {
	_ = unix.Kill(os.Getpid(), sig)
	time.Sleep(time.Second)
	os.Exit(128 + int(sig))
}
