package cache

import (
	"encoding/json"
	"errors"
	"net"
	"time"
)

// Client implements Storage over the cache daemon socket.
type Client struct {
	socketPath string
	dial       func() (net.Conn, error)
}

var _ Storage = (*Client)(nil)

func NewClient(socketPath string) *Client {
	c := &Client{socketPath: socketPath}
	c.dial = func() (net.Conn, error) {
		return net.DialTimeout("unix", c.socketPath, 500*time.Millisecond)
	}
	return c
}

// roundTrip sends one request on a fresh connection and decodes the answer.
func (c *Client) roundTrip(req Request) (Response, error) {
	conn, err := c.dial()
	if err != nil {
		return Response{}, err
	}
	defer conn.Close()
	if err := json.NewEncoder(conn).Encode(&req); err != nil {
		return Response{}, err
	}
	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return Response{}, err
	}
	if !resp.OK {
		if resp.Error == ErrNotFound.Error() {
			return resp, ErrNotFound
		}
		return resp, errors.New(resp.Error)
	}
	return resp, nil
}

func (c *Client) Partition(name string) (Partition, error) {
	if _, err := c.roundTrip(Request{Op: opPartition, Partition: name}); err != nil {
		return nil, err
	}
	return &clientPartition{c: c, name: name}, nil
}

func (c *Client) Names() ([]string, error) {
	resp, err := c.roundTrip(Request{Op: opNames})
	return resp.Names, err
}

func (c *Client) Drop(name string) (bool, error) {
	resp, err := c.roundTrip(Request{Op: opDrop, Partition: name})
	return resp.Existed, err
}

type clientPartition struct {
	c    *Client
	name string
}

func (p *clientPartition) Name() string { return p.name }

func (p *clientPartition) Match(method, rawURL string) (*Entry, error) {
	resp, err := p.c.roundTrip(Request{Op: opMatch, Partition: p.name, Method: method, URL: rawURL})
	if err != nil {
		return nil, err
	}
	if resp.Entry == nil {
		return nil, ErrNotFound
	}
	return resp.Entry, nil
}

func (p *clientPartition) Put(e *Entry) error {
	_, err := p.c.roundTrip(Request{Op: opPut, Partition: p.name, Entry: e})
	return err
}

func (p *clientPartition) List() ([]EntryInfo, error) {
	resp, err := p.c.roundTrip(Request{Op: opList, Partition: p.name})
	return resp.Entries, err
}
