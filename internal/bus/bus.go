// Package bus is the control socket between the CLI and the running daemon.
//
// A request is one line: a command byte, optionally followed by a space and
// an argument. The daemon answers with a single line starting with OK,
// STATUS, HISTORY or ERR.
package bus

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const SockName = "control.sock"
const PidName = "hyprcoach.pid"
const ProtoVer = "0.2"

const appDir = "hyprcoach"

// replies can take a while when a command waits on the coach loop
const replyTimeout = 10 * time.Second

// ~/.cache/hyprcoach/control.sock
func SockPath() (string, error) {
	return getSockPath()
}

// ~/.cache/hyprcoach/hyprcoach.pid
func PidPath() (string, error) {
	return getPidPath()
}

func getSockPath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appDir, SockName), nil
}

func getPidPath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appDir, PidName), nil
}

type socketManager struct {
	path string
}

func (s *socketManager) listen() (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return nil, err
	}
	_ = os.Remove(s.path) // stale socket from last run
	return net.Listen("unix", s.path)
}

func (s *socketManager) dial() (net.Conn, error) {
	return net.Dial("unix", s.path)
}

func (s *socketManager) send(cmd byte, arg string) (string, error) {
	if strings.ContainsAny(arg, "\r\n") {
		return "", fmt.Errorf("argument must be a single line")
	}
	c, err := s.dial()
	if err != nil {
		return "", err
	}
	defer c.Close()
	_ = c.SetDeadline(time.Now().Add(replyTimeout))

	if _, err := c.Write([]byte(FormatRequest(cmd, arg))); err != nil {
		return "", err
	}
	return bufio.NewReader(c).ReadString('\n')
}

type pidManager struct {
	path string
}

func (p *pidManager) create() error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(p.path, []byte(strconv.Itoa(os.Getpid())), 0o600)
}

func (p *pidManager) remove() error {
	return os.Remove(p.path)
}

// checkExisting fails if another daemon holds the pid file. Stale or garbled
// pid files are removed.
func (p *pidManager) checkExisting() error {
	data, err := os.ReadFile(p.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || !p.isProcessAlive(pid) {
		_ = os.Remove(p.path)
		return nil
	}
	return fmt.Errorf("daemon already running with PID %d", pid)
}

func (p *pidManager) isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || err == syscall.EPERM
}

func defaultSocket() (*socketManager, error) {
	sp, err := getSockPath()
	if err != nil {
		return nil, err
	}
	return &socketManager{path: sp}, nil
}

func defaultPid() (*pidManager, error) {
	pp, err := getPidPath()
	if err != nil {
		return nil, err
	}
	return &pidManager{path: pp}, nil
}

func Listen() (net.Listener, error) {
	s, err := defaultSocket()
	if err != nil {
		return nil, err
	}
	return s.listen()
}

func Dial() (net.Conn, error) {
	s, err := defaultSocket()
	if err != nil {
		return nil, err
	}
	return s.dial()
}

func SendCommand(cmd byte) (string, error) {
	return SendCommandArg(cmd, "")
}

// SendCommandArg sends a command with a single-line argument, such as the
// text for the submit command.
func SendCommandArg(cmd byte, arg string) (string, error) {
	s, err := defaultSocket()
	if err != nil {
		return "", err
	}
	return s.send(cmd, arg)
}

func CheckExistingDaemon() error {
	p, err := defaultPid()
	if err != nil {
		return err
	}
	return p.checkExisting()
}

func CreatePidFile() error {
	p, err := defaultPid()
	if err != nil {
		return err
	}
	return p.create()
}

func RemovePidFile() error {
	p, err := defaultPid()
	if err != nil {
		return err
	}
	return p.remove()
}

func FormatRequest(cmd byte, arg string) string {
	if arg == "" {
		return string([]byte{cmd, '\n'})
	}
	return string(cmd) + " " + arg + "\n"
}

// ParseRequest splits a request line into its command byte and argument.
func ParseRequest(line string) (byte, string, error) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return 0, "", fmt.Errorf("empty")
	}
	cmd := line[0]
	arg := strings.TrimSpace(line[1:])
	return cmd, arg, nil
}

// ParseStatus reads the key=value fields of a STATUS reply.
func ParseStatus(resp string) (map[string]string, error) {
	resp = strings.TrimSpace(resp)
	rest, ok := strings.CutPrefix(resp, "STATUS ")
	if !ok {
		return nil, fmt.Errorf("unexpected reply: %s", resp)
	}
	fields := make(map[string]string)
	for _, f := range strings.Fields(rest) {
		k, v, _ := strings.Cut(f, "=")
		fields[k] = v
	}
	return fields, nil
}
