// console.go - Interactive command console

/*
 ██▓ ███▄    █ ▄▄▄█████▓ █    ██  ██▓▄▄▄█████▓ ██▓ ▒█████   ███▄    █    ▓█████  ███▄    █   ▄████  ██▓ ███▄    █ ▓█████
▓██▒ ██ ▀█   █ ▓  ██▒ ▓▒ ██  ▓██▒▓██▒▓  ██▒ ▓▒▓██▒▒██▒  ██▒ ██ ▀█   █    ▓█   ▀  ██ ▀█   █  ██▒ ▀█▒▓██▒ ██ ▀█   █ ▓█   ▀
▒██▒▓██  ▀█ ██▒▒ ▓██░ ▒░▓██  ▒██░▒██▒▒ ▓██░ ▒░▒██▒▒██░  ██▒▓██  ▀█ ██▒   ▒███   ▓██  ▀█ ██▒▒██░▄▄▄░▒██▒▓██  ▀█ ██▒▒███
░██░▓██▒  ▐▌██▒░ ▓██▓ ░ ▓▓█  ░██░░██░░ ▓██▓ ░ ░██░▒██   ██░▓██▒  ▐▌██▒   ▒▓█  ▄ ▓██▒  ▐▌██▒░▓█  ██▓░██░▓██▒  ▐▌██▒▒▓█  ▄
░██░▒██░   ▓██░  ▒██▒ ░ ▒▒█████▓ ░██░  ▒██▒ ░ ░██░░ ████▓▒░▒██░   ▓██░   ░▒████▒▒██░   ▓██░░▒▓███▀▒░██░▒██░   ▓██░░▒████▒
░▓  ░ ▒░   ▒ ▒   ▒ ░░   ░▒▓▒ ▒ ▒ ░▓    ▒ ░░   ░▓  ░ ▒░▒░▒░ ░ ▒░   ▒ ▒    ░░ ▒░ ░░ ▒░   ▒ ▒  ░▒   ▒ ░▓  ░ ▒░   ▒ ▒ ░░ ▒░ ░
 ▒ ░░ ░░   ░ ▒░    ░    ░░▒░ ░ ░  ▒ ░    ░     ▒ ░  ░ ▒ ▒░ ░ ░░   ░ ▒░    ░ ░  ░░ ░░   ░ ▒░  ░   ░  ▒ ░░ ░░   ░ ▒░ ░ ░  ░
 ▒ ░   ░   ░ ░   ░       ░░░ ░ ░  ▒ ░  ░       ▒ ░░ ░ ░ ▒     ░   ░ ░       ░      ░   ░ ░ ░ ░   ░  ▒ ░   ░   ░ ░    ░
 ░           ░             ░      ░            ░      ░ ░           ░       ░  ░         ░       ░  ░           ░    ░  ░

(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/IntuitionEngine
License: GPLv3 or later
*/

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/term"
)

const consolePrompt = "live> "

type lineReader interface {
	ReadLine() (string, error)
}

type scannerLines struct{ s *bufio.Scanner }

func (l scannerLines) ReadLine() (string, error) {
	if l.s.Scan() {
		return l.s.Text(), nil
	}
	if err := l.s.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

// logSink is the writer behind the logger. While the raw-mode console is
// up, log lines go through the terminal so the prompt is redrawn below
// them.
type logSink struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *logSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (s *logSink) redirect(w io.Writer) io.Writer {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.w
	s.w = w
	return prev
}

// Console feeds command lines to a Runtime.
type Console struct {
	rt  *Runtime
	in  lineReader
	out io.Writer
}

// run serves lines until EOF or quit.
func (c *Console) run() error {
	for {
		line, err := c.in.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		out, err := c.rt.ExecLine(line)
		if out != "" {
			io.WriteString(c.out, out)
		}
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(c.out, "error: %v\n", err)
		}
	}
}

// startConsole serves stdin on a goroutine and calls quit when the user
// leaves. The returned stop function restores the terminal.
func startConsole(rt *Runtime, sink *logSink, quit func()) (stop func()) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		c := &Console{rt: rt, in: scannerLines{bufio.NewScanner(os.Stdin)}, out: os.Stdout}
		go func() {
			if err := c.run(); err != nil {
				rt.log.Error("console failed", "err", err)
			}
			quit()
		}()
		return func() {}
	}

	host := NewTerminalHost()
	if err := host.Start(); err != nil {
		rt.log.Warn("console unavailable", "err", err)
		return func() {}
	}
	t := term.NewTerminal(struct {
		io.Reader
		io.Writer
	}{host, os.Stdout}, consolePrompt)
	prev := sink.redirect(t)

	c := &Console{rt: rt, in: t, out: t}
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := c.run(); err != nil {
			rt.log.Error("console failed", "err", err)
		}
		quit()
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			host.Stop()
			<-done
			sink.redirect(prev)
			fmt.Println()
		})
	}
}
