// SPDX-License-Identifier: MPL-2.0

package shell

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func spawnedCommand(t *testing.T, pid int) (*Command, *fakePeer, *Registry) {
	t.Helper()

	peer := newFakePeer()
	peer.reply(ActionSpawn, func(any) any { return SpawnReply{PID: pid} })
	reg := NewRegistry()
	cmd := NewCommand(peer, reg, "echo hi")
	if err := cmd.Spawn(context.Background(), Instructions{}); err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	return cmd, peer, reg
}

func TestCommandSpawn(t *testing.T) {
	t.Parallel()

	peer := newFakePeer()
	peer.reply(ActionSpawn, func(any) any { return SpawnReply{PID: 42} })
	reg := NewRegistry()
	cmd := NewCommand(peer, reg, "ls -l")

	var events []Event
	cmd.Subscribe(func(ev Event) { events = append(events, ev) })

	stdin := "input"
	if err := cmd.Spawn(context.Background(), Instructions{Cwd: "/tmp", Stdin: &stdin}); err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}

	if !cmd.IsRunning() || cmd.IsDone() {
		t.Errorf("IsRunning, IsDone = %v, %v; want true, false", cmd.IsRunning(), cmd.IsDone())
	}
	if got, ok := reg.Find(42); !ok || got != cmd {
		t.Error("Registry().Find(42) should return the command")
	}
	if !cmd.WhenStarted().Settled() {
		t.Error("WhenStarted() should be settled")
	}
	if len(events) != 1 || events[0].Kind != EventPID || events[0].PID != 42 {
		t.Errorf("events = %v, want one pid event", events)
	}

	sent := peer.sent(ActionSpawn)
	if len(sent) != 1 {
		t.Fatalf("sent %d spawn requests, want 1", len(sent))
	}
	req := sent[0].Data.(SpawnRequest)
	if sent[0].Target != TrackerID {
		t.Errorf("Target = %q, want %q", sent[0].Target, TrackerID)
	}
	if req.Command != "ls -l" || req.Cwd == nil || *req.Cwd != "/tmp" || req.Stdin == nil || *req.Stdin != "input" {
		t.Errorf("SpawnRequest = %+v", req)
	}
	if req.Env == nil {
		t.Error("SpawnRequest.Env should be an empty object, not null")
	}

	if err := cmd.Spawn(context.Background(), Instructions{}); !errors.Is(err, ErrAlreadySpawned) {
		t.Errorf("second Spawn() error = %v, want ErrAlreadySpawned", err)
	}
}

func TestCommandSpawnError(t *testing.T) {
	t.Parallel()

	peer := newFakePeer()
	peer.reply(ActionSpawn, func(any) any { return SpawnReply{Error: "boom"} })
	reg := NewRegistry()
	cmd := NewCommand(peer, reg, "false")

	var kinds []EventKind
	cmd.Subscribe(func(ev Event) { kinds = append(kinds, ev.Kind) })

	err := cmd.Spawn(context.Background(), Instructions{})
	if !errors.Is(err, ErrRemote) {
		t.Fatalf("Spawn() error = %v, want ErrRemote", err)
	}
	var re *RemoteError
	if !errors.As(err, &re) || re.Message != "boom" {
		t.Errorf("Spawn() error = %#v, want RemoteError{Message: boom}", err)
	}

	if code, ok := cmd.ExitCode(); !ok || code != 1 {
		t.Errorf("ExitCode() = %d, %v; want 1, true", code, ok)
	}
	if cmd.IsRunning() {
		t.Error("IsRunning() = true after failed spawn")
	}
	if reg.Len() != 0 {
		t.Errorf("Registry().Len() = %d, want 0", reg.Len())
	}
	if len(kinds) != 1 || kinds[0] != EventError {
		t.Errorf("events = %v, want [error]", kinds)
	}
	if _, err := cmd.WhenStarted().Wait(context.Background()); err == nil {
		t.Error("WhenStarted() should be rejected")
	}
	if _, err := cmd.WhenDone().Wait(context.Background()); err == nil {
		t.Error("WhenDone() should be rejected")
	}
}

func TestCommandSpawnTransportError(t *testing.T) {
	t.Parallel()

	peer := newFakePeer()
	peer.err = errors.New("connection reset")
	cmd := NewCommand(peer, NewRegistry(), "true")

	if err := cmd.Spawn(context.Background(), Instructions{}); err == nil {
		t.Fatal("Spawn() error = nil, want transport error")
	}
	if !cmd.IsDone() {
		t.Error("IsDone() = false after transport failure")
	}
}

func TestCommandOutputChunks(t *testing.T) {
	t.Parallel()

	cmd, _, _ := spawnedCommand(t, 7)

	var chunks []Event
	cmd.Subscribe(func(ev Event) { chunks = append(chunks, ev) })

	cmd.OnOutput("hel", "")
	cmd.OnOutput("lo", "warn")

	if cmd.Stdout() != "hello" || cmd.Stderr() != "warn" {
		t.Errorf("Stdout, Stderr = %q, %q; want hello, warn", cmd.Stdout(), cmd.Stderr())
	}
	want := []Event{
		{Kind: EventStdout, PID: 7, Chunk: "hel"},
		{Kind: EventStdout, PID: 7, Chunk: "lo"},
		{Kind: EventStderr, PID: 7, Chunk: "warn"},
	}
	if len(chunks) != len(want) {
		t.Fatalf("events = %v, want %v", chunks, want)
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("event %d = %+v, want %+v", i, chunks[i], want[i])
		}
	}
}

func TestCommandOnClose(t *testing.T) {
	t.Parallel()

	cmd, _, reg := spawnedCommand(t, 9)
	cmd.OnClose(0)

	if !cmd.IsDone() || cmd.IsRunning() {
		t.Errorf("IsDone, IsRunning = %v, %v; want true, false", cmd.IsDone(), cmd.IsRunning())
	}
	if _, ok := reg.Find(9); ok {
		t.Error("Find(9) should not return a closed command")
	}
	got, err := cmd.WhenDone().Wait(context.Background())
	if err != nil || got != cmd {
		t.Errorf("WhenDone().Wait() = %v, %v; want the command", got, err)
	}

	// Terminal: later notifications change nothing.
	cmd.OnClose(3)
	cmd.OnOutput("late", "")
	if code, _ := cmd.ExitCode(); code != 0 {
		t.Errorf("ExitCode() = %d after second close, want 0", code)
	}
	if cmd.Stdout() != "" {
		t.Errorf("Stdout() = %q, want nothing after close", cmd.Stdout())
	}
}

func TestCommandOnError(t *testing.T) {
	t.Parallel()

	cmd, _, reg := spawnedCommand(t, 11)
	cmd.OnOutput("", "partial ")
	cmd.OnError(errors.New("lost"))

	if code, ok := cmd.ExitCode(); !ok || code != 1 {
		t.Errorf("ExitCode() = %d, %v; want 1, true", code, ok)
	}
	if cmd.Stderr() != "partial lost" {
		t.Errorf("Stderr() = %q, want %q", cmd.Stderr(), "partial lost")
	}
	if reg.Len() != 0 {
		t.Error("errored command should leave the registry")
	}
	if _, err := cmd.WhenDone().Wait(context.Background()); err == nil || err.Error() != "lost" {
		t.Errorf("WhenDone().Wait() error = %v, want lost", err)
	}
}

func TestCommandWriteToStdin(t *testing.T) {
	t.Parallel()

	peer := newFakePeer()
	peer.reply(ActionSpawn, func(any) any { return SpawnReply{PID: 5} })
	peer.reply(ActionWriteToStdin, func(any) any { return StatusReply{Error: "ignored"} })
	cmd := NewCommand(peer, NewRegistry(), "cat")

	// Not running yet: no request.
	if err := cmd.WriteToStdin(context.Background(), "early"); err != nil {
		t.Errorf("WriteToStdin() before spawn error = %v", err)
	}
	if len(peer.sent(ActionWriteToStdin)) != 0 {
		t.Error("WriteToStdin() before spawn sent a request")
	}

	if err := cmd.Spawn(context.Background(), Instructions{}); err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	if err := cmd.WriteToStdin(context.Background(), "data"); err != nil {
		t.Errorf("WriteToStdin() error = %v, want tracker errors swallowed", err)
	}
	if err := cmd.CloseStdin(context.Background()); err != nil {
		t.Errorf("CloseStdin() error = %v", err)
	}

	sent := peer.sent(ActionWriteToStdin)
	if len(sent) != 2 {
		t.Fatalf("sent %d stdin requests, want 2", len(sent))
	}
	if req := sent[0].Data.(StdinRequest); req.PID != 5 || req.Stdin != "data" || req.End {
		t.Errorf("first StdinRequest = %+v", req)
	}
	if req := sent[1].Data.(StdinRequest); !req.End {
		t.Errorf("second StdinRequest = %+v, want End", req)
	}
}

func TestCommandKill(t *testing.T) {
	t.Parallel()

	cmd, peer, _ := spawnedCommand(t, 3)

	peer.reply(ActionKill, func(any) any { return StatusReply{Error: "no such process"} })
	if _, err := cmd.Kill(context.Background(), ""); !errors.Is(err, ErrRemote) {
		t.Errorf("Kill() error = %v, want ErrRemote", err)
	}

	peer.reply(ActionKill, func(any) any { return StatusReply{Status: "ok"} })
	done, err := cmd.Kill(context.Background(), "TERM")
	if err != nil {
		t.Fatalf("Kill() error = %v", err)
	}
	if done != cmd.WhenDone() {
		t.Error("Kill() should return the WhenDone future")
	}
	if cmd.LastSignal() != "TERM" {
		t.Errorf("LastSignal() = %q, want TERM", cmd.LastSignal())
	}
	if req := peer.sent(ActionKill)[0].Data.(KillRequest); req.Signal != DefaultSignal || req.PID != 3 {
		t.Errorf("first KillRequest = %+v, want default signal for pid 3", req)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := done.Wait(ctx); err != nil {
			t.Errorf("done.Wait() error = %v", err)
		}
	}()
	cmd.OnClose(137)
	wg.Wait()

	if f, err := cmd.Kill(context.Background(), ""); f != nil || err != nil {
		t.Errorf("Kill() on finished command = %v, %v; want nil, nil", f, err)
	}
}

func TestCommandUnsubscribe(t *testing.T) {
	t.Parallel()

	cmd, _, _ := spawnedCommand(t, 1)
	n := 0
	unsubscribe := cmd.Subscribe(func(Event) { n++ })
	cmd.OnOutput("a", "")
	unsubscribe()
	cmd.OnOutput("b", "")
	if n != 1 {
		t.Errorf("subscriber called %d times, want 1", n)
	}
}
