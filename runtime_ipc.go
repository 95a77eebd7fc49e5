// runtime_ipc.go - Unix domain socket IPC for editor integration

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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sugawarayuuta/sonnet"
)

const (
	ipcMaxRequestSize  = 4096
	ipcMaxResponseSize = 1 << 20
	ipcTimeout         = 10 * time.Second
)

var allowedExtensions = map[string]bool{
	".lua": true,
}

type ipcRequest struct {
	Cmd  string `json:"cmd"`
	Path string `json:"path,omitempty"`
	Name string `json:"name,omitempty"`
	Full bool   `json:"full,omitempty"`
}

type ipcResponse struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Data    *runtimeStatusSnapshot `json:"data,omitempty"`
}

func ipcError(err error) ipcResponse {
	return ipcResponse{Status: "err", Message: err.Error()}
}

// IPCServer listens on a Unix socket and hands each request to handler.
type IPCServer struct {
	listener net.Listener
	handler  func(ipcRequest) ipcResponse
	done     chan struct{}
	sockPath string
	log      *slog.Logger
}

func resolveSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "intuition-live.sock")
	}
	return "/tmp/intuition-live.sock"
}

// NewIPCServer binds the socket at sockPath, or the default path if empty.
func NewIPCServer(sockPath string, handler func(ipcRequest) ipcResponse, logger *slog.Logger) (*IPCServer, error) {
	if sockPath == "" {
		sockPath = resolveSocketPath()
	}
	return newIPCServerAt(sockPath, handler, logger)
}

func newIPCServerAt(sockPath string, handler func(ipcRequest) ipcResponse, logger *slog.Logger) (*IPCServer, error) {
	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		// Stale socket cleanup: try connecting. If peer is dead, remove and retry.
		conn, dialErr := net.DialTimeout("unix", sockPath, 2*time.Second)
		if dialErr != nil {
			os.Remove(sockPath)
			ln, err = net.Listen("unix", sockPath)
			if err != nil {
				return nil, fmt.Errorf("ipc bind failed: %w", err)
			}
		} else {
			conn.Close()
			return nil, fmt.Errorf("another instance is already running")
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IPCServer{
		listener: ln,
		handler:  handler,
		done:     make(chan struct{}),
		sockPath: sockPath,
		log:      logger.With("component", "ipc", "socket", sockPath),
	}, nil
}

// Start begins accepting IPC connections in a goroutine.
func (s *IPCServer) Start() {
	go s.acceptLoop()
}

// Stop closes the listener and waits for the accept loop to exit.
func (s *IPCServer) Stop() {
	s.listener.Close()
	<-s.done
	os.Remove(s.sockPath)
}

func (s *IPCServer) acceptLoop() {
	defer close(s.done)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handleConn(conn)
	}
}

func (s *IPCServer) handleConn(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(ipcTimeout))

	buf := make([]byte, ipcMaxRequestSize)
	n, err := conn.Read(buf)
	if err != nil || n == 0 {
		return
	}

	var req ipcRequest
	if err := sonnet.Unmarshal(buf[:n], &req); err != nil {
		s.writeResponse(conn, ipcResponse{Status: "err", Message: "invalid json"})
		return
	}
	s.log.Debug("ipc request", "cmd", req.Cmd, "path", req.Path, "name", req.Name)
	s.writeResponse(conn, s.handler(req))
}

func (s *IPCServer) writeResponse(conn net.Conn, resp ipcResponse) {
	data, err := sonnet.Marshal(resp)
	if err != nil {
		s.log.Error("ipc response encoding failed", "err", err)
		return
	}
	conn.Write(data)
}

func validateIPCPath(path string) error {
	if !filepath.IsAbs(path) {
		return fmt.Errorf("absolute path required")
	}
	ext := strings.ToLower(filepath.Ext(path))
	if !allowedExtensions[ext] {
		return fmt.Errorf("unsupported extension: %s", ext)
	}
	info, err := os.Lstat(path)
	if err != nil {
		return fmt.Errorf("file not found: %s", path)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("not a regular file: %s", path)
	}
	return nil
}

// HandleIPC executes one IPC request against the runtime.
func (r *Runtime) HandleIPC(req ipcRequest) ipcResponse {
	switch req.Cmd {
	case "load":
		if err := validateIPCPath(req.Path); err != nil {
			return ipcError(err)
		}
		res, err := r.patches.Load(req.Path)
		if err != nil {
			return ipcError(err)
		}
		return ipcResponse{Status: "ok", Message: strings.Join(res.Registered, ",")}
	case "unload":
		if !filepath.IsAbs(req.Path) {
			return ipcError(errors.New("absolute path required"))
		}
		removed, err := r.patches.Unload(req.Path)
		if err != nil {
			return ipcError(err)
		}
		return ipcResponse{Status: "ok", Message: strings.Join(removed, ",")}
	case "remove":
		if err := r.eng.Unregister(req.Name); err != nil {
			return ipcError(err)
		}
		return ipcResponse{Status: "ok"}
	case "clear":
		r.Clear(req.Full)
		return ipcResponse{Status: "ok"}
	case "status":
		snap := r.status.snapshot()
		return ipcResponse{Status: "ok", Data: &snap}
	}
	return ipcResponse{Status: "err", Message: "unknown command"}
}

// SendIPCLoad asks a running instance to load path.
func SendIPCLoad(sockPath, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if sockPath == "" {
		sockPath = resolveSocketPath()
	}
	_, err = sendIPCAt(sockPath, ipcRequest{Cmd: "load", Path: abs})
	return err
}

// sendIPCAt sends req to the instance at sockPath and returns its reply.
func sendIPCAt(sockPath string, req ipcRequest) (ipcResponse, error) {
	conn, err := net.DialTimeout("unix", sockPath, ipcTimeout)
	if err != nil {
		return ipcResponse{}, fmt.Errorf("cannot connect to running instance: %w", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(ipcTimeout))

	data, err := sonnet.Marshal(req)
	if err != nil {
		return ipcResponse{}, err
	}
	if _, err := conn.Write(data); err != nil {
		return ipcResponse{}, fmt.Errorf("send failed: %w", err)
	}

	reply, err := io.ReadAll(io.LimitReader(conn, ipcMaxResponseSize))
	if err != nil {
		return ipcResponse{}, fmt.Errorf("read response failed: %w", err)
	}

	var resp ipcResponse
	if err := sonnet.Unmarshal(reply, &resp); err != nil {
		return ipcResponse{}, fmt.Errorf("invalid response: %w", err)
	}
	if resp.Status != "ok" {
		return resp, fmt.Errorf("remote error: %s", resp.Message)
	}
	return resp, nil
}
