package transport

import (
	"bufio"
	"context"
	"io"
	"os"

	"deribit-gateway/src/helpers"
	"deribit-gateway/src/logger"
	"deribit-gateway/src/rpc"
	"deribit-gateway/src/tools"
)

// -----------------------------------------------------------------------------
// Stdio transport
// -----------------------------------------------------------------------------

const maxFrameSize = 1024 * 1024

// Stdio serves one implicit session over newline-delimited JSON frames on
// the process pipes. Logging must stay on stderr; stdout carries frames
// only.
type Stdio struct {
	session *rpc.Session
	in      io.Reader
	out     io.Writer
	logger  *logger.Logger
}

func NewStdio(parent context.Context, registry *tools.Registry, log *logger.Logger, info rpc.ServerInfo) *Stdio {
	return &Stdio{
		session: rpc.NewSession(parent, registry, log, info),
		in:      os.Stdin,
		out:     os.Stdout,
		logger:  log,
	}
}

// Run reads frames until EOF or context cancellation. One frame in flight
// at a time.
func (t *Stdio) Run(ctx context.Context) error {
	defer t.session.Close()

	scanner := bufio.NewScanner(t.in)
	scanner.Buffer(make([]byte, 64*1024), maxFrameSize)

	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			line := make([]byte, len(scanner.Bytes()))
			copy(line, scanner.Bytes())
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	t.logger.Info("stdio transport ready, session %s", t.session.ID())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case line, open := <-lines:
			if !open {
				select {
				case err := <-scanErr:
					if err != nil {
						return &helpers.TransportError{GatewayError: helpers.GatewayError{
							Message: "reading stdin failed", Cause: err}}
					}
					return nil
				default:
					return nil
				}
			}
			if len(line) == 0 {
				continue
			}
			resp := t.session.HandleMessage(line)
			if resp == nil {
				continue
			}
			if _, err := t.out.Write(append(resp, '\n')); err != nil {
				return err
			}
		}
	}
}
