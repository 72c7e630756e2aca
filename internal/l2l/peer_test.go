// SPDX-License-Identifier: MPL-2.0

package l2l

import (
	"context"
	"errors"
	"io"
	"net"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

type pipePair struct {
	a, b   *Peer
	served sync.WaitGroup
	errs   [2]error
}

func newPipePair(t *testing.T) *pipePair {
	t.Helper()

	ca, cb := net.Pipe()
	quiet := log.New(io.Discard)
	pp := &pipePair{
		a: NewPeer(ca, Config{ID: "a", Logger: quiet}),
		b: NewPeer(cb, Config{ID: "b", Logger: quiet}),
	}
	pp.served.Add(2)
	go func() { defer pp.served.Done(); pp.errs[0] = pp.a.Serve(context.Background()) }()
	go func() { defer pp.served.Done(); pp.errs[1] = pp.b.Serve(context.Background()) }()
	t.Cleanup(func() {
		_ = pp.a.Close()
		_ = pp.b.Close()
		pp.served.Wait()
	})
	return pp
}

type echoData struct {
	Text string `json:"text"`
}

func TestPeerRequestResponse(t *testing.T) {
	t.Parallel()

	pp := newPipePair(t)
	pp.b.AddService("echo", func(_ context.Context, msg *Message, reply ReplyFunc) {
		var in echoData
		if err := msg.Decode(&in); err != nil {
			_ = reply(map[string]string{"error": err.Error()})
			return
		}
		_ = reply(echoData{Text: in.Text + "!"})
	})

	resp, err := pp.a.SendAndWait(context.Background(), "b", "echo", echoData{Text: "hi"})
	if err != nil {
		t.Fatalf("SendAndWait() error = %v", err)
	}
	if resp.Action != "echo-response" {
		t.Errorf("Action = %q, want %q", resp.Action, "echo-response")
	}
	if resp.Sender != "b" || resp.Target != "a" {
		t.Errorf("Sender, Target = %q, %q; want b, a", resp.Sender, resp.Target)
	}
	var out echoData
	if err := resp.Decode(&out); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if out.Text != "hi!" {
		t.Errorf("Text = %q, want %q", out.Text, "hi!")
	}
}

func TestPeerUnknownAction(t *testing.T) {
	t.Parallel()

	pp := newPipePair(t)
	resp, err := pp.a.SendAndWait(context.Background(), "b", "nope", nil)
	if err != nil {
		t.Fatalf("SendAndWait() error = %v", err)
	}
	var out struct {
		Error string `json:"error"`
	}
	if err := resp.Decode(&out); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if out.Error == "" {
		t.Error("unknown action reply should carry an error")
	}
}

func TestPeerNotificationsKeepOrder(t *testing.T) {
	t.Parallel()

	pp := newPipePair(t)

	const n = 200
	got := make(chan int, n)
	pp.b.AddService("tick", func(_ context.Context, msg *Message, _ ReplyFunc) {
		var v struct{ N int }
		if err := msg.Decode(&v); err == nil {
			got <- v.N
		}
	})

	for i := range n {
		if err := pp.a.Notify("b", "tick", struct{ N int }{i}); err != nil {
			t.Fatalf("Notify(%d) error = %v", i, err)
		}
	}
	for i := range n {
		select {
		case v := <-got:
			if v != i {
				t.Fatalf("notification %d arrived as %d", i, v)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for notification %d", i)
		}
	}
}

func TestPeerNestedRequest(t *testing.T) {
	t.Parallel()

	pp := newPipePair(t)
	pp.a.AddService("whoami", func(_ context.Context, _ *Message, reply ReplyFunc) {
		_ = reply(echoData{Text: "a"})
	})
	// b's service calls back into a before answering.
	pp.b.AddService("ask", func(ctx context.Context, _ *Message, reply ReplyFunc) {
		resp, err := pp.b.SendAndWait(ctx, "a", "whoami", nil)
		if err != nil {
			_ = reply(echoData{Text: err.Error()})
			return
		}
		var who echoData
		_ = resp.Decode(&who)
		_ = reply(echoData{Text: "asked " + who.Text})
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := pp.a.SendAndWait(ctx, "b", "ask", nil)
	if err != nil {
		t.Fatalf("SendAndWait() error = %v", err)
	}
	var out echoData
	_ = resp.Decode(&out)
	if out.Text != "asked a" {
		t.Errorf("Text = %q, want %q", out.Text, "asked a")
	}
}

func TestPeerRequestTimeout(t *testing.T) {
	t.Parallel()

	pp := newPipePair(t)
	pp.b.AddService("silent", func(context.Context, *Message, ReplyFunc) {})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := pp.a.SendAndWait(ctx, "b", "silent", nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("SendAndWait() error = %v, want DeadlineExceeded", err)
	}
}

func TestPeerClose(t *testing.T) {
	t.Parallel()

	pp := newPipePair(t)
	pp.b.AddService("silent", func(context.Context, *Message, ReplyFunc) {})

	errCh := make(chan error, 1)
	go func() {
		_, err := pp.a.SendAndWait(context.Background(), "b", "silent", nil)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	_ = pp.b.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrPeerClosed) {
			t.Errorf("SendAndWait() error = %v, want ErrPeerClosed", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("SendAndWait() did not return after the remote closed")
	}

	<-pp.a.Done()
	if err := pp.a.Send(&Message{ID: "x", Action: "y"}); !errors.Is(err, ErrPeerClosed) {
		t.Errorf("Send() after close error = %v, want ErrPeerClosed", err)
	}
}

func TestReplyOnce(t *testing.T) {
	t.Parallel()

	pp := newPipePair(t)
	second := make(chan error, 1)
	pp.b.AddService("twice", func(_ context.Context, _ *Message, reply ReplyFunc) {
		_ = reply(echoData{Text: "one"})
		second <- reply(echoData{Text: "two"})
	})

	if _, err := pp.a.SendAndWait(context.Background(), "b", "twice", nil); err != nil {
		t.Fatalf("SendAndWait() error = %v", err)
	}
	if err := <-second; err == nil {
		t.Error("second reply should fail")
	}
}

func TestMessageValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		msg     Message
		wantErr bool
	}{
		{Message{ID: "1", Action: "a"}, false},
		{Message{Action: "a"}, true},
		{Message{ID: "1"}, true},
	}
	for _, tt := range tests {
		err := tt.msg.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("Validate(%+v) = %v, wantErr %v", tt.msg, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidMessage) {
			t.Errorf("Validate(%+v) = %v, want ErrInvalidMessage", tt.msg, err)
		}
	}
}

func TestPeerServicesSorted(t *testing.T) {
	t.Parallel()

	p := NewPeer(nil, Config{ID: "p", Logger: log.New(io.Discard)})
	for _, action := range []string{"shell.spawn", "issue.list", "shell.kill"} {
		p.AddService(action, func(context.Context, *Message, ReplyFunc) {})
	}

	got := p.Services()
	want := []string{"issue.list", "shell.kill", "shell.spawn"}
	if !slices.Equal(got, want) {
		t.Errorf("Services() = %v, want %v", got, want)
	}
	if !p.HasService("shell.kill") || p.HasService("shell.exec") {
		t.Error("HasService() disagrees with AddService")
	}
}
