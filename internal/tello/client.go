// Package tello drives a DJI Tello through its SDK text protocol over UDP.
//
// Commands go to the drone's command port (8889) and are answered with "ok",
// "error ..." or a value. The drone also streams "key:value;" state packets
// to local port 8890.
package tello

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ayusman/handpilot/internal/logging"
	"go.uber.org/zap"
)

// Defaults for a Tello in access-point mode.
const (
	DefaultAddress         = "192.168.10.1"
	DefaultCommandPort     = 8889
	DefaultLocalPort       = 8889
	DefaultStatePort       = 8890
	DefaultVideoPort       = 11111
	DefaultResponseTimeout = 7 * time.Second
	DefaultRetryCount      = 1
)

const maxPacket = 2048

var (
	// ErrConnect is returned when the drone does not accept SDK mode.
	ErrConnect = errors.New("tello: connection failed")

	// ErrTimeout is returned when no reply arrives within the response timeout.
	ErrTimeout = errors.New("tello: command timed out")

	// ErrClosed is returned by commands issued after Close.
	ErrClosed = errors.New("tello: client closed")

	// ErrOutOfRange is returned for distances or angles the SDK rejects.
	ErrOutOfRange = errors.New("tello: argument out of range")
)

// CommandError is a reply other than "ok" to a control command.
type CommandError struct {
	Command  string
	Response string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("tello: %q rejected: %s", e.Command, e.Response)
}

// Config holds the network settings of the command channel.
type Config struct {
	Address     string `yaml:"address"`
	CommandPort int    `yaml:"command_port"`
	// LocalPort is the local UDP port commands are sent from; 0 picks one.
	LocalPort int `yaml:"local_port"`
	// StatePort is the local UDP port state packets arrive on; 0 picks one
	// and a negative value disables the state listener.
	StatePort int `yaml:"state_port"`
	VideoPort int `yaml:"video_port"`

	ResponseTimeout time.Duration `yaml:"response_timeout"`
	// RetryCount is how many times a command is sent before giving up.
	RetryCount int `yaml:"retry_count"`
}

// DefaultConfig returns the settings of a factory Tello.
func DefaultConfig() Config {
	return Config{
		Address:         DefaultAddress,
		CommandPort:     DefaultCommandPort,
		LocalPort:       DefaultLocalPort,
		StatePort:       DefaultStatePort,
		VideoPort:       DefaultVideoPort,
		ResponseTimeout: DefaultResponseTimeout,
		RetryCount:      DefaultRetryCount,
	}
}

// StreamURL is the URL the video stream can be opened at after StreamOn.
func (c Config) StreamURL() string {
	return "udp://0.0.0.0:" + strconv.Itoa(c.VideoPort)
}

// Client is a connection to one drone.
type Client struct {
	cfg       Config
	log       *zap.Logger
	drone     *net.UDPAddr
	conn      *net.UDPConn
	stateConn *net.UDPConn
	responses chan string

	// cmdMu serializes command/response exchanges so replies are never
	// attributed to the wrong command.
	cmdMu sync.Mutex

	stateMu sync.RWMutex
	state   map[string]string

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Dial opens the command socket (and the state socket unless disabled) and
// starts their listeners. It does not talk to the drone; call Connect.
func Dial(cfg Config, log *zap.Logger) (*Client, error) {
	log = logging.OrNop(log)
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = DefaultResponseTimeout
	}
	if cfg.RetryCount <= 0 {
		cfg.RetryCount = DefaultRetryCount
	}

	drone, err := net.ResolveUDPAddr("udp", net.JoinHostPort(cfg.Address, strconv.Itoa(cfg.CommandPort)))
	if err != nil {
		return nil, fmt.Errorf("resolve drone address: %w", err)
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: cfg.LocalPort})
	if err != nil {
		return nil, fmt.Errorf("listen on command port: %w", err)
	}

	c := &Client{
		cfg:       cfg,
		log:       log,
		drone:     drone,
		conn:      conn,
		responses: make(chan string, 4),
		state:     make(map[string]string),
		done:      make(chan struct{}),
	}

	if cfg.StatePort >= 0 {
		c.stateConn, err = net.ListenUDP("udp", &net.UDPAddr{Port: cfg.StatePort})
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("listen on state port: %w", err)
		}
		c.wg.Add(1)
		go c.stateListener()
	}

	c.wg.Add(1)
	go c.responseListener()

	return c, nil
}

// Connect enters SDK mode. Any failure wraps ErrConnect.
func (c *Client) Connect() error {
	if err := c.sendControl("command"); err != nil {
		return fmt.Errorf("%w: %w", ErrConnect, err)
	}
	c.log.Info("connected to tello", zap.Stringer("addr", c.drone))
	return nil
}

// Close stops both listeners and closes the sockets. It is safe to call more
// than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
		if c.stateConn != nil {
			c.stateConn.Close()
		}
		c.wg.Wait()
	})
	return err
}

// LocalAddr returns the address commands are sent from.
func (c *Client) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// StateAddr returns the address state packets are read on, or nil when the
// state listener is disabled.
func (c *Client) StateAddr() net.Addr {
	if c.stateConn == nil {
		return nil
	}
	return c.stateConn.LocalAddr()
}

func (c *Client) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// sendCommand sends cmd and waits for its reply, resending up to RetryCount
// times.
func (c *Client) sendCommand(cmd string) (string, error) {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	if c.closed() {
		return "", ErrClosed
	}
	c.drainResponses()

	for attempt := 1; attempt <= c.cfg.RetryCount; attempt++ {
		if _, err := c.conn.WriteToUDP([]byte(cmd), c.drone); err != nil {
			return "", fmt.Errorf("send %q: %w", cmd, err)
		}
		c.log.Debug("sent command", zap.String("cmd", cmd), zap.Int("attempt", attempt))

		timer := time.NewTimer(c.cfg.ResponseTimeout)
		select {
		case resp := <-c.responses:
			timer.Stop()
			c.log.Debug("received response", zap.String("cmd", cmd), zap.String("resp", resp))
			return resp, nil
		case <-timer.C:
			c.log.Debug("no response", zap.String("cmd", cmd), zap.Int("attempt", attempt))
		case <-c.done:
			timer.Stop()
			return "", ErrClosed
		}
	}

	return "", fmt.Errorf("%q: %w", cmd, ErrTimeout)
}

// sendControl sends cmd and requires an "ok" reply.
func (c *Client) sendControl(cmd string) error {
	resp, err := c.sendCommand(cmd)
	if err != nil {
		return err
	}
	if !strings.EqualFold(resp, "ok") {
		return &CommandError{Command: cmd, Response: resp}
	}
	return nil
}

// sendNoReply sends cmd without waiting for a reply.
func (c *Client) sendNoReply(cmd string) error {
	if c.closed() {
		return ErrClosed
	}
	if _, err := c.conn.WriteToUDP([]byte(cmd), c.drone); err != nil {
		return fmt.Errorf("send %q: %w", cmd, err)
	}
	return nil
}

// drainResponses drops replies that arrived with nobody waiting, such as
// late answers to timed-out commands.
func (c *Client) drainResponses() {
	for {
		select {
		case resp := <-c.responses:
			c.log.Debug("dropped stale response", zap.String("resp", resp))
		default:
			return
		}
	}
}

func (c *Client) responseListener() {
	defer c.wg.Done()

	buf := make([]byte, maxPacket)
	for {
		n, _, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			if c.closed() {
				return
			}
			c.log.Warn("command socket read failed", zap.Error(err))
			continue
		}

		resp := strings.TrimSpace(string(buf[:n]))
		select {
		case c.responses <- resp:
		default:
			c.log.Debug("response buffer full, dropping", zap.String("resp", resp))
		}
	}
}

func (c *Client) stateListener() {
	defer c.wg.Done()

	buf := make([]byte, maxPacket)
	for {
		n, _, err := c.stateConn.ReadFromUDP(buf)
		if err != nil {
			if c.closed() {
				return
			}
			c.log.Warn("state socket read failed", zap.Error(err))
			continue
		}

		state := ParseState(string(buf[:n]))
		if len(state) == 0 {
			continue
		}

		c.stateMu.Lock()
		c.state = state
		c.stateMu.Unlock()
	}
}

// ParseState decodes a "key:value;key:value;" state packet.
func ParseState(packet string) map[string]string {
	state := make(map[string]string)
	for _, field := range strings.Split(strings.TrimSpace(packet), ";") {
		key, value, ok := strings.Cut(field, ":")
		if !ok || key == "" {
			continue
		}
		state[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return state
}
