package pgfixture

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/jackc/pgmock"
	"github.com/jackc/pgproto3/v2"
	"github.com/stretchr/testify/require"
)

// fakeServer plays a pgmock script against the first connection it accepts.
type fakeServer struct {
	l       net.Listener
	errchan chan error
	done    chan struct{}
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:")
	require.NoError(t, err, "can't open port")
	t.Cleanup(func() { _ = l.Close() })

	return &fakeServer{
		l:       l,
		errchan: make(chan error, 1),
		done:    make(chan struct{}, 1),
	}
}

func (s *fakeServer) port() int {
	return s.l.Addr().(*net.TCPAddr).Port
}

func (s *fakeServer) url(database string) string {
	return MakeURL(DefaultUser, "127.0.0.1", s.port(), database)
}

func (s *fakeServer) run(steps ...[]pgmock.Step) {
	script := &pgmock.Script{Steps: pgmock.AcceptUnauthenticatedConnRequestSteps()}
	for _, st := range steps {
		script.Steps = append(script.Steps, st...)
	}
	go s.acceptConnForScript(script)
}

func (s *fakeServer) acceptConnForScript(script *pgmock.Script) {
	conn, err := s.l.Accept()
	if err != nil {
		s.errchan <- err
		return
	}
	defer conn.Close()

	if err = conn.SetDeadline(time.Now().Add(5 * time.Second)); err != nil {
		s.errchan <- err
		return
	}

	be := pgproto3.NewBackend(pgproto3.NewChunkReader(conn), conn)

	if err := script.Run(be); err != nil {
		_ = be.Send(&pgproto3.ErrorResponse{
			Severity:            "ERROR",
			SeverityUnlocalized: "ERROR",
			Code:                "99999",
			Message:             "pgfixture fake server:\n" + err.Error(),
		})
		s.errchan <- err
		return
	}

	s.done <- struct{}{}
}

// wait returns the script error, if any, once the script has finished.
func (s *fakeServer) wait() error {
	select {
	case <-time.After(5 * time.Second):
		return errors.New("fake server timeout")
	case err := <-s.errchan:
		return err
	case <-s.done:
		return nil
	}
}

func simpleQuery(query, tag string, txStatus byte) []pgmock.Step {
	return []pgmock.Step{
		pgmock.ExpectMessage(&pgproto3.Query{String: query}),
		pgmock.SendMessage(&pgproto3.CommandComplete{CommandTag: []byte(tag)}),
		pgmock.SendMessage(&pgproto3.ReadyForQuery{TxStatus: txStatus}),
	}
}

func failingQuery(query, code, message string) []pgmock.Step {
	return []pgmock.Step{
		pgmock.ExpectMessage(&pgproto3.Query{String: query}),
		pgmock.SendMessage(&pgproto3.ErrorResponse{
			Severity:            "ERROR",
			SeverityUnlocalized: "ERROR",
			Code:                code,
			Message:             message,
		}),
		pgmock.SendMessage(&pgproto3.ReadyForQuery{TxStatus: 'E'}),
	}
}
