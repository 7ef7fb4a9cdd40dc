package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) call(method string, req, resp any) error {
	return c.client.Call(ServiceName+"."+method, req, resp)
}

// Stop requests the daemon to stop.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.call("Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call("Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Command sends a playback command.
func (c *Client) Command(cmd string) (*CommandResponse, error) {
	var resp CommandResponse
	if err := c.call("Command", CommandRequest{Command: cmd}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetVolume sets the player volume in percent.
func (c *Client) SetVolume(volume int) (*VolumeResponse, error) {
	var resp VolumeResponse
	if err := c.call("SetVolume", VolumeRequest{Volume: volume}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// IdleArm arms idle detection.
func (c *Client) IdleArm(timeout time.Duration) (*IdleResponse, error) {
	var resp IdleResponse
	req := IdleArmRequest{TimeoutSeconds: int(timeout / time.Second)}
	if err := c.call("IdleArm", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// IdleDisarm disarms idle detection.
func (c *Client) IdleDisarm() (*IdleResponse, error) {
	var resp IdleResponse
	if err := c.call("IdleDisarm", IdleDisarmRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// History lists recent plays.
func (c *Client) History(limit int) (*HistoryResponse, error) {
	var resp HistoryResponse
	if err := c.call("History", HistoryRequest{Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LogTail returns log events from the daemon.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	var resp LogTailResponse
	if err := c.call("LogTail", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.call("TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
