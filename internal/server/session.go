package server

import (
	"github.com/google/uuid"

	"github.com/thruflo/remoteui/internal/logging"
	"github.com/thruflo/remoteui/internal/protocol"
)

// serveViewer runs one viewer session until the connection drops, the viewer
// detaches, or the server stops. The calling goroutine reads; a second
// goroutine writes whatever the viewer's outbox holds.
func (s *Server) serveViewer(conn protocol.Conn, transport string) {
	v := &viewer{
		id:        uuid.NewString(),
		transport: transport,
		conn:      conn,
		out:       newOutbox(),
	}
	v.log = s.log.WithFields(map[string]interface{}{
		"viewer": v.id,
		"remote": conn.RemoteAddr(),
	})

	hello := protocol.MustEncode(protocol.TypeReady, protocol.Hello{
		Version:  protocol.Version,
		ViewerID: v.id,
	})
	if !s.hub.add(v, hello) {
		conn.Close()
		return
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(v)
	}()

	err := s.readLoop(v)
	switch {
	case err == nil:
		v.log.Debug("viewer detached")
	case protocol.IsDisconnect(err):
		v.log.Debug("viewer disconnected")
	case protocol.IsTimeout(err):
		v.log.Warn("viewer connection timed out", "error", err)
	default:
		v.log.Warn("viewer session ended", "error", err)
	}

	s.hub.remove(v.id)
	v.out.close()
	conn.Close()
	<-writerDone
}

func (s *Server) writeLoop(v *viewer) {
	for {
		batch, ok := v.out.next()
		if !ok {
			return
		}
		if err := v.conn.WriteBatch(batch); err != nil {
			switch {
			case protocol.IsTimeout(err):
				v.log.Warn("viewer stopped taking data", "error", err)
			case !protocol.IsDisconnect(err):
				v.log.Debug("write to viewer failed", "error", err)
			}
			// unblocks the reader
			v.conn.Close()
			return
		}
		if v.log.Enabled(logging.LevelTrace) {
			for _, p := range batch {
				v.log.Trace("sent packet", "type", p.Type, "bytes", len(p.Payload))
			}
		}
	}
}

// readLoop applies viewer packets. It returns nil when the viewer detaches.
func (s *Server) readLoop(v *viewer) error {
	for {
		p, err := v.conn.ReadPacket()
		if err != nil {
			return err
		}
		v.log.Trace("received packet", "type", p.Type, "bytes", len(p.Payload))

		switch {
		case p.Type == protocol.TypeReady:
			v.log.Debug("viewer ready")
		case p.Type == protocol.TypeDetach:
			return nil
		case p.Type.IsControl():
			edit, err := protocol.DecodeEdit(p)
			if err != nil {
				v.log.Warn("ignoring malformed control packet", "type", p.Type, "error", err)
				continue
			}
			if err := s.applyEdit(edit); err != nil {
				v.log.Warn("rejected control edit", "type", p.Type, "error", err)
			}
		default:
			v.log.Warn("ignoring unexpected packet", "type", p.Type)
		}
	}
}
