package cache

import (
	"encoding/json"
	"errors"
	"io"
	"net"

	"github.com/leonardcser/pse-offline/internal/logger"
)

// Serve accepts daemon connections on l until it is closed.
func Serve(l net.Listener, storage Storage) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			logger.Warnf("cache daemon accept: %v", err)
			continue
		}
		go ServeConn(conn, storage)
	}
}

// ServeConn answers requests on conn until the peer hangs up.
func ServeConn(conn io.ReadWriteCloser, storage Storage) {
	defer conn.Close()
	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)
	for {
		var req Request
		if err := dec.Decode(&req); err != nil {
			return
		}
		if err := enc.Encode(handle(storage, req)); err != nil {
			return
		}
	}
}

func handle(storage Storage, req Request) Response {
	switch req.Op {
	case opNames:
		names, err := storage.Names()
		if err != nil {
			return failure(err)
		}
		return Response{OK: true, Names: names}
	case opDrop:
		existed, err := storage.Drop(req.Partition)
		if err != nil {
			return failure(err)
		}
		return Response{OK: true, Existed: existed}
	case opPartition, opMatch, opPut, opList:
	default:
		return Response{OK: false, Error: "unknown op"}
	}

	p, err := storage.Partition(req.Partition)
	if err != nil {
		return failure(err)
	}
	switch req.Op {
	case opMatch:
		e, err := p.Match(req.Method, req.URL)
		if err != nil {
			return failure(err)
		}
		return Response{OK: true, Entry: e}
	case opPut:
		if err := p.Put(req.Entry); err != nil {
			return failure(err)
		}
		return Response{OK: true}
	case opList:
		infos, err := p.List()
		if err != nil {
			return failure(err)
		}
		return Response{OK: true, Entries: infos}
	}
	return Response{OK: true}
}

func failure(err error) Response { return Response{OK: false, Error: err.Error()} }
