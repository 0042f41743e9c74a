// Package server implements the interface server: an embedded server that a
// render loop drives to stream frames to viewers, report progress, and pick up
// control edits made by those viewers.
//
// The producer owns the loop. A typical one looks like:
//
//	srv.Start(ctx)
//	srv.WaitUntilReady(0)
//	srv.InitialiseVideoStream(w, h)
//	for {
//		srv.SendImage(frame, true)
//		srv.UpdateProgress(step, total)
//		if changed, _ := srv.StateChanged(); changed {
//			st, _ := srv.ConsumeState()
//			if st.Stop {
//				break
//			}
//		}
//	}
//	srv.Stop()
//
// None of the producer calls block on viewers. Frames and progress are
// latest-wins: a viewer that falls behind skips to the newest value.
//
// # Transports
//
// Native viewers connect over TCP and exchange packets defined in the protocol
// package. When enabled, a second HTTP listener serves the same packets over a
// websocket, plus:
//
//   - GET / - embedded viewer page
//   - POST /auth - password authentication, returns a bearer token
//   - GET /ws - websocket viewer session
//   - GET /state - JSON control state
//   - POST /control - JSON control edit
//   - GET /stats - JSON counters
//
// # Authentication
//
// When a password hash is configured, every route except / and /auth requires
// a token obtained from /auth, sent as a Bearer header or a token query
// parameter. Login attempts are rate limited per client IP.
package server
